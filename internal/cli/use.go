// Package cli provides context selection commands.
package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/db"
	"github.com/tOgg1/gradebook/internal/models"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(classesCmd)

	useCmd.Flags().BoolVar(&useClear, "clear", false, "clear the current context")
}

var useCmd = &cobra.Command{
	Use:   "use [CLASS] [MARK_SET]",
	Short: "Select the class and mark set to work on",
	Long: `Select the class and mark set that grid commands operate on.

Both arguments accept a name, an ID, or an unambiguous prefix of either.
With one argument the class is selected and its only mark set, if it has
exactly one. Without arguments the current context is printed.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		store := contextStore()

		if useClear {
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear context: %w", err)
			}
			fmt.Fprintln(out, "Context cleared.")
			return nil
		}

		current, err := store.Load()
		if err != nil {
			return fmt.Errorf("failed to load context: %w", err)
		}
		if len(args) == 0 {
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(out, current)
			}
			fmt.Fprintln(out, current.String())
			return nil
		}

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewMarkSetRepository(database)

		class, err := findClass(ctx, repo, args[0])
		if err != nil {
			return err
		}
		current.SetClass(class.ID, class.Name)

		var markSet *models.MarkSet
		if len(args) == 2 {
			markSet, err = findMarkSet(ctx, repo, class.ID, args[1])
			if err != nil {
				return err
			}
		} else {
			markSets, err := repo.ListMarkSets(ctx, class.ID)
			if err != nil {
				return fmt.Errorf("failed to list mark sets: %w", err)
			}
			if len(markSets) == 1 {
				markSet = markSets[0]
			}
		}
		if markSet != nil {
			current.SetMarkSet(markSet.ID, markSet.Name)
		}

		if err := store.Save(current); err != nil {
			return fmt.Errorf("failed to save context: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, current)
		}
		fmt.Fprintf(out, "Context set to %s\n", current.String())
		PrintNextSteps(out, HintContext{
			Action:      "use",
			ClassName:   current.ClassName,
			MarkSetName: current.MarkSetName,
		})
		return nil
	},
}

// classListing is one mark set row of the classes listing.
type classListing struct {
	ClassID     string `json:"class_id"`
	ClassName   string `json:"class_name"`
	MarkSetID   string `json:"mark_set_id,omitempty"`
	MarkSetName string `json:"mark_set_name,omitempty"`
	Students    int    `json:"students"`
	Assessments int    `json:"assessments"`
	Current     bool   `json:"current"`
}

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List classes and their mark sets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewMarkSetRepository(database)

		current, err := contextStore().Load()
		if err != nil {
			return fmt.Errorf("failed to load context: %w", err)
		}

		classes, err := repo.ListClasses(ctx)
		if err != nil {
			return fmt.Errorf("failed to list classes: %w", err)
		}

		listing := make([]classListing, 0, len(classes))
		for _, class := range classes {
			markSets, err := repo.ListMarkSets(ctx, class.ID)
			if err != nil {
				return fmt.Errorf("failed to list mark sets: %w", err)
			}
			if len(markSets) == 0 {
				listing = append(listing, classListing{ClassID: class.ID, ClassName: class.Name})
				continue
			}
			for _, ms := range markSets {
				dims, err := repo.Dims(ctx, ms.Ref())
				if err != nil {
					return err
				}
				listing = append(listing, classListing{
					ClassID:     class.ID,
					ClassName:   class.Name,
					MarkSetID:   ms.ID,
					MarkSetName: ms.Name,
					Students:    dims.Rows,
					Assessments: dims.Cols,
					Current:     ms.ID == current.MarkSetID,
				})
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, listing)
		}
		if len(listing) == 0 {
			fmt.Fprintln(out, "No classes found.")
			return nil
		}

		writer := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "\tCLASS\tMARK SET\tID\tSTUDENTS\tASSESSMENTS")
		for _, row := range listing {
			marker := ""
			if row.Current {
				marker = "*"
			}
			markSet := row.MarkSetName
			if markSet == "" {
				markSet = "-"
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\n",
				marker, row.ClassName, markSet, shortID(row.MarkSetID), row.Students, row.Assessments)
		}
		return writer.Flush()
	},
}
