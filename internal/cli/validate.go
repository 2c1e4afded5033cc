package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"skill-assessment-service/internal/config"
	"skill-assessment-service/internal/infra/memory"
	"skill-assessment-service/internal/reference"
)

// NewValidateReferenceCmd checks the reference document, the optional workbook and the
// question bank file without starting anything.
func NewValidateReferenceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-reference",
		Short: "Validate mapping tables, jobs and the question bank file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			_, snap, err := loadReference(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reference %s\n", snap.Source)
			fmt.Fprintf(out, "  course_skills    %d rows\n", snap.CourseSkills.Len())
			fmt.Fprintf(out, "  child_to_parent  %d rows\n", snap.ChildToParent.Len())
			fmt.Fprintf(out, "  child_to_job     %d rows\n", snap.ChildToJob.Len())
			fmt.Fprintf(out, "  jobs             %d\n", len(snap.Jobs()))

			if cfg.Questions.Path == "" {
				return nil
			}
			items, err := reference.LoadQuestions(cfg.Questions.Path)
			if err != nil {
				return err
			}
			bank, err := memory.NewStaticQuestionBank(items)
			if err != nil {
				return err
			}
			counts, _ := bank.Counts(cmd.Context())
			fmt.Fprintf(out, "questions %s: %d items across %d skills\n", cfg.Questions.Path, len(items), len(counts))
			return nil
		},
	}
}
