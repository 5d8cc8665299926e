// Package cli provides actionable next-step hints for CLI commands.
package cli

import (
	"fmt"
	"io"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "seed", "use", "paste")
	Action string

	// ClassName is the class involved (if any)
	ClassName string

	// MarkSetName is the mark set involved (if any)
	MarkSetName string

	// Rejected is the number of cells the backend refused (for bulk writes)
	Rejected int
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing if JSON output is enabled.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	if IsJSONOutput() || IsJSONLOutput() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

// generateHints generates context-aware hints for the given action.
func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "seed":
		return hintsForSeed(ctx)
	case "use":
		return hintsForUse(ctx)
	case "bulk":
		return hintsForBulk(ctx)
	default:
		return nil
	}
}

func hintsForSeed(ctx HintContext) []string {
	hints := make([]string, 0, 3)
	if ctx.ClassName != "" && ctx.MarkSetName != "" {
		hints = append(hints,
			fmt.Sprintf("gradebook use %q %q   # Select it later", ctx.ClassName, ctx.MarkSetName),
		)
	}
	return append(hints,
		"gradebook grid show                  # Print the first window",
		"gradebook grid view                  # Browse interactively",
	)
}

func hintsForUse(ctx HintContext) []string {
	if ctx.MarkSetName == "" {
		return []string{
			"gradebook classes                    # List classes and mark sets",
		}
	}
	return []string{
		"gradebook grid show                  # Print the first window",
		"gradebook grid set ROW COL VALUE     # Edit one cell",
	}
}

func hintsForBulk(ctx HintContext) []string {
	if ctx.Rejected == 0 {
		return nil
	}
	return []string{
		"gradebook history --type grid.bulk_applied   # Inspect rejected cells",
		"gradebook grid show                          # Re-read the window",
	}
}
