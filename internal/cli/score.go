package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/config"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/logger"
	"skill-assessment-service/internal/reference"
)

type scoreOptions struct {
	coursesPath string
	outPath     string
	workers     int
	evidence    bool
	topJobs     int
}

// NewScoreCmd scores a batch of transcripts offline against the configured reference.
func NewScoreCmd(configPath *string) *cobra.Command {
	opts := scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute claimed scores for a YAML file of student course records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			out := cmd.OutOrStdout()
			if opts.outPath != "" {
				f, err := os.Create(opts.outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return runScore(cmd.Context(), cfg, opts, out, log)
		},
	}
	cmd.Flags().StringVar(&opts.coursesPath, "courses", "", "YAML file with students and their course records")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "write JSON here instead of stdout")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "students scored in parallel")
	cmd.Flags().BoolVar(&opts.evidence, "evidence", false, "include evidence records in the output")
	cmd.Flags().IntVar(&opts.topJobs, "top-jobs", 0, "also rank this many jobs per student")
	_ = cmd.MarkFlagRequired("courses")
	return cmd
}

type transcriptFile struct {
	Students []struct {
		ID      string                `yaml:"id"`
		Courses []domain.CourseRecord `yaml:"courses"`
	} `yaml:"students"`
}

type studentReport struct {
	StudentID       string                   `json:"studentId"`
	SnapshotVersion int64                    `json:"snapshotVersion"`
	Scores          []domain.SkillScore      `json:"scores"`
	Finals          []domain.FinalSkillScore `json:"finals"`
	Evidence        []domain.EvidenceRecord  `json:"evidence,omitempty"`
	Jobs            []domain.MatchReport     `json:"jobs,omitempty"`
}

func runScore(ctx context.Context, cfg config.Config, opts scoreOptions, out io.Writer, log *logger.Logger) error {
	students, err := readTranscripts(opts.coursesPath)
	if err != nil {
		return err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	_, snap, err := loadReference(ctx, cfg)
	if err != nil {
		return err
	}

	reports := make([]studentReport, len(students))
	g, gctx := errgroup.WithContext(ctx)
	if opts.workers > 0 {
		g.SetLimit(opts.workers)
	}
	for i, st := range students {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := scoreStudent(eng, snap, st.id, st.courses, opts)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("batch scored", "students", len(reports), "snapshot_version", snap.Version)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func scoreStudent(eng engine, snap *reference.Snapshot, studentID string, courses []domain.CourseRecord, opts scoreOptions) (studentReport, error) {
	res, err := eng.pipeline.Compute(studentID, courses, snap.Tables())
	if err != nil {
		return studentReport{}, fmt.Errorf("student %s: %w", studentID, err)
	}
	finals := eng.blender.BlendAll(studentID, app.ClaimedVector(res.Scores), nil)
	report := studentReport{
		StudentID:       studentID,
		SnapshotVersion: snap.Version,
		Scores:          res.Scores,
		Finals:          finals,
	}
	if opts.evidence {
		report.Evidence = res.Evidence
	}
	if opts.topJobs > 0 {
		vector := make(map[string]domain.SkillValue, len(finals))
		for _, f := range finals {
			vector[f.SkillName] = domain.SkillValue{Score: f.FinalScore, Level: f.FinalLevel}
		}
		report.Jobs = eng.matcher.Recommend(studentID, vector, snap.Jobs(), opts.topJobs)
	}
	return report, nil
}

type transcript struct {
	id      string
	courses []domain.CourseRecord
}

func readTranscripts(path string) ([]transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file transcriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]transcript, 0, len(file.Students))
	for _, st := range file.Students {
		t := transcript{id: st.ID}
		for _, c := range st.Courses {
			rec, err := domain.NewCourseRecord(st.ID, c.CourseCode, c.Grade, c.Credits, c.AcademicYear)
			if err != nil {
				return nil, fmt.Errorf("student %s: %w", st.ID, err)
			}
			t.courses = append(t.courses, rec)
		}
		out = append(out, t)
	}
	return out, nil
}
