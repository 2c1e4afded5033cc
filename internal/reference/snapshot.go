package reference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/scoring"
)

// Snapshot is one immutable version of the reference tables. It is never edited after
// construction; updates build a new Snapshot and swap it into a Store.
type Snapshot struct {
	Version       int64
	Source        string
	LoadedAt      time.Time
	CourseSkills  *MappingTable
	ChildToParent *MappingTable
	ChildToJob    *MappingTable

	jobs   map[string]domain.JobRequirement
	jobIDs []string
}

// NewSnapshot validates jobs and freezes the tables. Version is assigned by the Store.
func NewSnapshot(source string, courseSkills, childToParent, childToJob *MappingTable, jobs []domain.JobRequirement) (*Snapshot, error) {
	s := &Snapshot{
		Source:        source,
		LoadedAt:      time.Now().UTC(),
		CourseSkills:  courseSkills,
		ChildToParent: childToParent,
		ChildToJob:    childToJob,
		jobs:          make(map[string]domain.JobRequirement, len(jobs)),
	}
	for _, job := range jobs {
		job.JobID = strings.TrimSpace(job.JobID)
		if job.JobID == "" {
			return nil, fmt.Errorf("reference: job without id")
		}
		if _, dup := s.jobs[job.JobID]; dup {
			return nil, fmt.Errorf("reference: duplicate job %s", job.JobID)
		}
		skills := make([]domain.RequiredSkill, 0, len(job.RequiredSkills))
		for _, rs := range job.RequiredSkills {
			rs.SkillName = strings.TrimSpace(rs.SkillName)
			if rs.SkillName == "" {
				return nil, fmt.Errorf("reference: job %s has a required skill without a name", job.JobID)
			}
			if rs.Importance < 0 {
				return nil, fmt.Errorf("reference: job %s skill %s has negative importance", job.JobID, rs.SkillName)
			}
			if rs.Importance == 0 {
				rs.Importance = 1
			}
			skills = append(skills, rs)
		}
		job.RequiredSkills = skills
		s.jobs[job.JobID] = job
		s.jobIDs = append(s.jobIDs, job.JobID)
	}
	sort.Strings(s.jobIDs)
	return s, nil
}

// Tables returns the mapping tables in the shape the scoring pipeline reads.
func (s *Snapshot) Tables() scoring.Tables {
	return scoring.Tables{
		CourseSkills:  s.CourseSkills,
		ChildToParent: s.ChildToParent,
		ChildToJob:    s.ChildToJob,
	}
}

// Job returns a copy of one job requirement.
func (s *Snapshot) Job(id string) (domain.JobRequirement, error) {
	job, ok := s.jobs[id]
	if !ok {
		return domain.JobRequirement{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	job.RequiredSkills = append([]domain.RequiredSkill(nil), job.RequiredSkills...)
	return job, nil
}

// Jobs returns every job ordered by id.
func (s *Snapshot) Jobs() []domain.JobRequirement {
	out := make([]domain.JobRequirement, 0, len(s.jobIDs))
	for _, id := range s.jobIDs {
		job, _ := s.Job(id)
		out = append(out, job)
	}
	return out
}

// Loader builds a fresh snapshot from its backing source.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

var ErrNoSnapshot = errors.New("reference snapshot not loaded")

// Store publishes the current snapshot. Readers take one pointer and use it for a
// whole computation, so they never see two versions at once.
type Store struct {
	loader  Loader
	current atomic.Pointer[Snapshot]
	version atomic.Int64
	mu      sync.Mutex // serialises reloads
}

func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Current returns the published snapshot.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Swap stamps snap with the next version and publishes it.
func (s *Store) Swap(snap *Snapshot) *Snapshot {
	snap.Version = s.version.Add(1)
	return s.current.Swap(snap)
}

// Reload loads a new snapshot and swaps it in. On error the current snapshot stays.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	if s.loader == nil {
		return nil, fmt.Errorf("reference: store has no loader")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.Swap(snap)
	return snap, nil
}
