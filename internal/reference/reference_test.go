package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"skill-assessment-service/internal/domain"
)

const sampleReference = `
course_skills:
  - {source: it1090, target: Python, weight: 0.35}
  - {source: IT2040, target: Python, weight: 0.35}
  - {source: IT2040, target: Algorithms, weight: 0.6}
child_to_parent:
  - {source: Python, target: Programming, weight: 1}
child_to_job:
  - {source: Python, target: Backend Development, weight: 0.8}
jobs:
  - id: se-intern
    title: Software Engineering Intern
    required_skills:
      - skill: Backend Development
        importance: 2
      - skill: Programming
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileLoaderBuildsSnapshot(t *testing.T) {
	path := writeFile(t, "reference.yaml", sampleReference)
	snap, err := FileLoader{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	targets := snap.CourseSkills.Targets("IT1090")
	if len(targets) != 1 || targets[0].Target != "Python" {
		t.Fatalf("expected upper-cased course source to map to Python, got %+v", targets)
	}
	targets = snap.CourseSkills.Targets("IT2040")
	if len(targets) != 2 || targets[0].Target != "Algorithms" {
		t.Fatalf("expected targets sorted by name, got %+v", targets)
	}

	job, err := snap.Job("se-intern")
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if len(job.RequiredSkills) != 2 || job.RequiredSkills[1].Importance != 1 {
		t.Fatalf("expected default importance 1, got %+v", job.RequiredSkills)
	}
	if _, err := snap.Job("unknown"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestFileLoaderRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"weight above one": "course_skills:\n  - {source: IT1090, target: Python, weight: 1.5}\n",
		"missing target":   "course_skills:\n  - {source: IT1090, weight: 0.5}\n",
		"no course table":  "jobs: []\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "reference.yaml", doc)
			if _, err := (FileLoader{Path: path}).Load(context.Background()); err == nil {
				t.Fatal("expected schema error")
			}
		})
	}
}

func TestMappingTableRejectsDuplicates(t *testing.T) {
	_, err := NewMappingTable("course_skills", []domain.MappingEntry{
		{Source: "IT1090", Target: "Python", Weight: 0.3},
		{Source: "IT1090", Target: "Python", Weight: 0.5},
	})
	if !errors.Is(err, domain.ErrInvalidMapping) {
		t.Fatalf("expected ErrInvalidMapping, got %v", err)
	}
}

func TestWorkbookReplacesTables(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "mappings.xlsx")

	f := excelize.NewFile()
	if _, err := f.NewSheet(SheetCourseSkills); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	rows := [][]interface{}{
		{"source", "target", "weight"},
		{"IT1090", "SQL", 0.9},
		{"IT3010", "SQL", 0.4},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetCourseSkills, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if err := f.SaveAs(book); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	_ = f.Close()

	path := writeFile(t, "reference.yaml", sampleReference)
	snap, err := FileLoader{Path: path, Workbook: book}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.CourseSkills.Len() != 2 {
		t.Fatalf("expected workbook rows to replace course table, got %d rows", snap.CourseSkills.Len())
	}
	if got := snap.CourseSkills.Targets("IT1090"); len(got) != 1 || got[0].Target != "SQL" || got[0].Weight != 0.9 {
		t.Fatalf("unexpected workbook mapping %+v", got)
	}
	if snap.ChildToParent.Len() != 1 {
		t.Fatalf("tables without a sheet should come from yaml")
	}
}

type stubLoader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *stubLoader) Load(context.Context) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	table, _ := NewMappingTable("course_skills", nil)
	return NewSnapshot("stub", table, table, table, nil)
}

func TestStoreReloadSwapsVersions(t *testing.T) {
	loader := &stubLoader{}
	store := NewStore(loader)
	if _, err := store.Current(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot before first load, got %v", err)
	}

	first, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	second, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first == second || second.Version != first.Version+1 {
		t.Fatalf("expected a new snapshot with the next version, got %d then %d", first.Version, second.Version)
	}

	loader.err = errors.New("disk gone")
	if _, err := store.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	cur, _ := store.Current()
	if cur != second {
		t.Fatal("failed reload must keep the previous snapshot")
	}
}

func TestParseQuestions(t *testing.T) {
	raw := `
questions:
  - id: q1
    skill_name: Python
    difficulty: easy
    prompt: What does len([]) return?
    options: ["0", "1", "None", "error"]
    correct_option: A
  - id: q2
    skill_name: Python
    difficulty: hard
    prompt: Which statement creates a generator?
    options: ["return", "yield", "lambda", "with"]
    correct_option: B
    explanation: yield turns a function into a generator.
`
	items, err := ParseQuestions([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 2 || items[1].Difficulty != domain.DifficultyHard || items[1].CorrectOption != "B" {
		t.Fatalf("unexpected items %+v", items)
	}

	bad := "questions:\n  - {id: q1, skill_name: Python, difficulty: easy, prompt: x, options: [a, b, c], correct_option: A}\n"
	if _, err := ParseQuestions([]byte(bad)); err == nil {
		t.Fatal("expected three options to be rejected")
	}
}
