package reference

import (
	"fmt"
	"sort"

	"skill-assessment-service/internal/domain"
)

// MappingTable is an immutable source -> targets index.
type MappingTable struct {
	name    string
	entries []domain.MappingEntry
	index   map[string][]domain.MappingEntry
}

// NewMappingTable validates every row and rejects duplicate source/target pairs.
func NewMappingTable(name string, rows []domain.MappingEntry) (*MappingTable, error) {
	t := &MappingTable{name: name, index: make(map[string][]domain.MappingEntry)}
	seen := make(map[[2]string]struct{}, len(rows))
	for i, row := range rows {
		entry, err := domain.NewMappingEntry(row.Source, row.Target, row.Weight)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
		key := [2]string{entry.Source, entry.Target}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%s row %d: %w: duplicate %s -> %s", name, i+1, domain.ErrInvalidMapping, entry.Source, entry.Target)
		}
		seen[key] = struct{}{}
		t.entries = append(t.entries, entry)
		t.index[entry.Source] = append(t.index[entry.Source], entry)
	}
	for src := range t.index {
		targets := t.index[src]
		sort.Slice(targets, func(i, j int) bool { return targets[i].Target < targets[j].Target })
	}
	return t, nil
}

func (t *MappingTable) Name() string { return t.name }

// Targets returns a copy of the entries for source, ordered by target.
func (t *MappingTable) Targets(source string) []domain.MappingEntry {
	if t == nil {
		return nil
	}
	src := t.index[source]
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.MappingEntry, len(src))
	copy(out, src)
	return out
}

// Entries returns a copy of all rows in load order.
func (t *MappingTable) Entries() []domain.MappingEntry {
	if t == nil {
		return nil
	}
	out := make([]domain.MappingEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// TargetSkills lists the distinct target skills of the table, sorted.
func (t *MappingTable) TargetSkills() []string {
	if t == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, e := range t.entries {
		set[e.Target] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (t *MappingTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
