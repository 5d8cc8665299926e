// Package cli provides the grid viewer command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/gridtui"
	"github.com/tOgg1/gradebook/internal/models"
	"golang.org/x/term"
)

func init() {
	gridCmd.AddCommand(gridViewCmd)
}

var gridViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse and edit the grid interactively",
	Long: `Open the interactive grid viewer. Only the rows and columns in view are
loaded; scrolling loads more tiles in the background.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if IsNonInteractive() {
			return &PreflightError{
				Message:  "grid view requires an interactive terminal",
				Hint:     "Run without --non-interactive and with a TTY, or use the other grid subcommands",
				NextStep: "gradebook grid show",
			}
		}

		ctx := cmd.Context()
		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		_, dims := s.coord.Context()
		students, assessments, err := s.axes(cmd, models.Window{RowCount: dims.Rows, ColCount: dims.Cols})
		if err != nil {
			return err
		}

		cfg := GetConfig()
		return gridtui.Run(s.coord, s.publisher, gridtui.Config{
			Theme:       cfg.TUI.Theme,
			CellWidth:   cfg.TUI.CellWidth,
			Title:       fmt.Sprintf("%s / %s", currentClassName(), s.markSet.Name),
			Students:    students,
			Assessments: assessments,
		})
	},
}

func currentClassName() string {
	current, err := contextStore().Load()
	if err != nil || current.ClassName == "" {
		return "class"
	}
	return current.ClassName
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
