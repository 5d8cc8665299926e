// Package cli provides the seed command.
package cli

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/config"
	"github.com/tOgg1/gradebook/internal/db"
)

var (
	seedClass       string
	seedMarkSet     string
	seedStudents    int
	seedAssessments int
	seedFill        float64
	seedRandSeed    int64
	seedNoUse       bool
)

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedClass, "class", "Class", "class name")
	seedCmd.Flags().StringVar(&seedMarkSet, "mark-set", "Term 1", "mark set name")
	seedCmd.Flags().IntVar(&seedStudents, "students", 30, "number of students (rows)")
	seedCmd.Flags().IntVar(&seedAssessments, "assessments", 12, "number of assessments (columns)")
	seedCmd.Flags().Float64Var(&seedFill, "fill", 0.8, "share of cells given a random mark (0-1)")
	seedCmd.Flags().Int64Var(&seedRandSeed, "seed", 0, "random seed for generated marks (0 picks one)")
	seedCmd.Flags().BoolVar(&seedNoUse, "no-use", false, "do not select the new mark set")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a class with a generated mark set",
	Long: `Create a class, a mark set and a roster of generated students and
assessments, filling a share of the cells with random marks.

The new mark set becomes the current context unless --no-use is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if seedStudents < 0 || seedAssessments < 0 {
			return fmt.Errorf("--students and --assessments must not be negative")
		}
		if seedFill < 0 || seedFill > 1 {
			return fmt.Errorf("--fill must be between 0 and 1")
		}

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		opts := db.SeedOptions{
			ClassName:   seedClass,
			MarkSetName: seedMarkSet,
			Students:    seedStudents,
			Assessments: seedAssessments,
			FillRatio:   seedFill,
		}
		if seedRandSeed != 0 {
			opts.Rand = rand.New(rand.NewSource(seedRandSeed))
		}

		repo := db.NewMarkSetRepository(database)
		markSet, err := repo.Seed(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}

		if !seedNoUse {
			current := &config.Context{}
			current.SetClass(markSet.ClassID, seedClass)
			current.SetMarkSet(markSet.ID, markSet.Name)
			if err := contextStore().Save(current); err != nil {
				return fmt.Errorf("failed to save context: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, markSet)
		}

		fmt.Fprintf(out, "Seeded %s / %s (%d students x %d assessments)\n",
			seedClass, markSet.Name, seedStudents, seedAssessments)
		PrintNextSteps(out, HintContext{
			Action:      "seed",
			ClassName:   seedClass,
			MarkSetName: markSet.Name,
		})
		return nil
	},
}
