package reference

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"skill-assessment-service/internal/domain"
)

// Sheet names read from a mapping workbook. Each sheet has a header row followed by
// source, target, weight columns.
const (
	SheetCourseSkills  = "course_skills"
	SheetChildToParent = "child_to_parent"
	SheetChildToJob    = "child_to_job"
)

type document struct {
	CourseSkills  []domain.MappingEntry   `yaml:"course_skills"`
	ChildToParent []domain.MappingEntry   `yaml:"child_to_parent"`
	ChildToJob    []domain.MappingEntry   `yaml:"child_to_job"`
	Jobs          []domain.JobRequirement `yaml:"jobs"`
}

// FileLoader reads the reference YAML document and, when Workbook is set, replaces
// any table that has a sheet of the same name in the workbook.
type FileLoader struct {
	Path     string
	Workbook string
}

func (l FileLoader) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read reference %s: %w", l.Path, err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", l.Path, err)
	}
	source := l.Path
	if l.Workbook != "" {
		sheets, err := ReadWorkbook(l.Workbook)
		if err != nil {
			return nil, err
		}
		if rows, ok := sheets[SheetCourseSkills]; ok {
			doc.CourseSkills = rows
		}
		if rows, ok := sheets[SheetChildToParent]; ok {
			doc.ChildToParent = rows
		}
		if rows, ok := sheets[SheetChildToJob]; ok {
			doc.ChildToJob = rows
		}
		source += "+" + l.Workbook
	}
	return doc.snapshot(source)
}

// parseDocument validates raw YAML against the reference schema and decodes it.
func parseDocument(data []byte) (document, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return document{}, fmt.Errorf("decode yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if err := validateDocument(referenceSchema, raw); err != nil {
		return document{}, err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode yaml: %w", err)
	}
	return doc, nil
}

func (d document) snapshot(source string) (*Snapshot, error) {
	for i := range d.CourseSkills {
		d.CourseSkills[i].Source = strings.ToUpper(strings.TrimSpace(d.CourseSkills[i].Source))
	}
	courses, err := NewMappingTable(SheetCourseSkills, d.CourseSkills)
	if err != nil {
		return nil, err
	}
	parents, err := NewMappingTable(SheetChildToParent, d.ChildToParent)
	if err != nil {
		return nil, err
	}
	jobs, err := NewMappingTable(SheetChildToJob, d.ChildToJob)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(source, courses, parents, jobs, d.Jobs)
}

// ReadWorkbook returns the mapping rows of every known sheet present in the workbook.
func ReadWorkbook(path string) (map[string][]domain.MappingEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	present := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		present[name] = true
	}
	out := make(map[string][]domain.MappingEntry)
	for _, sheet := range []string{SheetCourseSkills, SheetChildToParent, SheetChildToJob} {
		if !present[sheet] {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		entries, err := parseSheet(sheet, rows)
		if err != nil {
			return nil, err
		}
		out[sheet] = entries
	}
	return out, nil
}

func parseSheet(sheet string, rows [][]string) ([]domain.MappingEntry, error) {
	var entries []domain.MappingEntry
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "source") {
			continue
		}
		if isBlank(row) {
			continue
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("%s row %d: %w: want source, target, weight", sheet, i+1, domain.ErrInvalidMapping)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w: weight %q", sheet, i+1, domain.ErrInvalidMapping, row[2])
		}
		entries = append(entries, domain.MappingEntry{
			Source: strings.TrimSpace(row[0]),
			Target: strings.TrimSpace(row[1]),
			Weight: weight,
		})
	}
	return entries, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
