// Package cli provides the marks grid commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/grid"
	"github.com/tOgg1/gradebook/internal/models"
)

var (
	showWindow  models.Window
	fillWindow  models.Window
	bulkWindow  models.Window
	statsWindow models.Window

	pasteFile  string
	lockUnlock bool
)

func init() {
	rootCmd.AddCommand(gridCmd)
	gridCmd.AddCommand(gridShowCmd)
	gridCmd.AddCommand(gridSetCmd)
	gridCmd.AddCommand(gridFillCmd)
	gridCmd.AddCommand(gridBulkCmd)
	gridCmd.AddCommand(gridPasteCmd)
	gridCmd.AddCommand(gridStatsCmd)
	gridCmd.AddCommand(gridLockCmd)

	addWindowFlags(gridShowCmd, &showWindow, 20, 8)
	addWindowFlags(gridFillCmd, &fillWindow, 1, 1)
	addWindowFlags(gridBulkCmd, &bulkWindow, 1, 1)
	addWindowFlags(gridStatsCmd, &statsWindow, 20, 8)

	gridPasteCmd.Flags().StringVarP(&pasteFile, "file", "f", "", "read the block from a file instead of stdin")
	gridLockCmd.Flags().BoolVar(&lockUnlock, "unlock", false, "unlock the column instead")
}

func addWindowFlags(cmd *cobra.Command, w *models.Window, rows, cols int) {
	cmd.Flags().IntVar(&w.RowStart, "row", 0, "first row (zero-based)")
	cmd.Flags().IntVar(&w.RowCount, "rows", rows, "number of rows")
	cmd.Flags().IntVar(&w.ColStart, "col", 0, "first column (zero-based)")
	cmd.Flags().IntVar(&w.ColCount, "cols", cols, "number of columns")
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Read and edit the marks grid",
	Long: `Read and edit the marks grid of the current mark set.

Rows are students and columns are assessments, both zero-based. Reads go
through the tile cache; writes go through the edit coordinator, which only
updates the grid after the database accepts the change.`,
}

// gridShowRow is one student row of grid show output.
type gridShowRow struct {
	Row     int           `json:"row"`
	Student string        `json:"student"`
	Cells   []models.Cell `json:"cells"`
}

// gridShowResult is the JSON form of grid show.
type gridShowResult struct {
	MarkSet     *models.MarkSet      `json:"mark_set"`
	Dims        models.Dims          `json:"dims"`
	Window      models.Window        `json:"window"`
	Assessments []*models.Assessment `json:"assessments"`
	Rows        []gridShowRow        `json:"rows"`
}

var gridShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a window of the grid",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		_, dims := s.coord.Context()
		result, err := buildGridView(cmd, s, showWindow.Clamp(dims))
		if err != nil {
			return err
		}
		w := result.Window

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, result)
		}
		if w.Empty() {
			fmt.Fprintf(out, "Nothing to show: %s has %d students and %d assessments.\n", s.markSet.Name, dims.Rows, dims.Cols)
			return nil
		}

		headers := []string{"#", "STUDENT"}
		for _, a := range result.Assessments {
			headers = append(headers, formatAssessmentHeader(a))
		}
		rows := make([][]string, 0, len(result.Rows))
		for _, row := range result.Rows {
			line := []string{strconv.Itoa(row.Row), row.Student}
			for _, cell := range row.Cells {
				line = append(line, formatCell(cell))
			}
			rows = append(rows, line)
		}
		return writeAlignedTable(out, headers, rows, func(col int) bool { return col != 1 })
	},
}

var gridSetCmd = &cobra.Command{
	Use:   "set ROW COL [VALUE]",
	Short: "Edit one cell",
	Long: `Edit one cell. An omitted or blank VALUE and 0 both clear the cell to
no mark; use "grid bulk zero" for an explicit zero. Negative and
non-numeric values are rejected without touching the database. Put "--"
before the arguments to pass a value starting with a dash.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		row, col, err := parseCellArgs(args[0], args[1])
		if err != nil {
			return err
		}
		text := ""
		if len(args) == 3 {
			text = args[2]
		}

		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if _, err := s.coord.OpenEditor(ctx, row, col); err != nil {
			return err
		}
		outcome, err := s.coord.SetCell(ctx, row, col, text)

		out := cmd.OutOrStdout()
		if err != nil {
			if outcome.State == grid.CellDesyncResolved {
				fmt.Fprintf(cmd.ErrOrStderr(), "cell (%d, %d) re-read from the database: %s\n", row, col, formatCell(outcome.Value))
			}
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, outcome)
		}
		fmt.Fprintf(out, "Set (%d, %d) = %s\n", row, col, formatCell(outcome.Value))
		return nil
	},
}

var gridFillCmd = &cobra.Command{
	Use:       "fill down|right",
	Short:     "Copy the first row or column of a selection across it",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"down", "right"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.coord.LoadWindow(ctx, fillWindow, models.Dims{}); err != nil {
			return err
		}

		var edits []models.PendingEdit
		switch strings.ToLower(args[0]) {
		case "down":
			edits, err = s.coord.FillDown(fillWindow)
		case "right":
			edits, err = s.coord.FillRight(fillWindow)
		default:
			return fmt.Errorf("invalid fill direction %q (use down or right)", args[0])
		}
		if err != nil {
			return err
		}
		return applyBulk(cmd, s, edits, nil)
	},
}

var gridBulkCmd = &cobra.Command{
	Use:   "bulk no-mark|zero|set [VALUE]",
	Short: "Apply one value to every cell of a selection",
	Long: `Apply one value to every cell of a selection.

  no-mark   clear every cell
  zero      store an explicit 0 in every cell
  set N     store N in every cell (0 is an explicit zero here)`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		action, value, err := parseBulkArgs(args)
		if err != nil {
			return err
		}

		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		edits, err := s.coord.SetSelection(bulkWindow, action, value)
		if err != nil {
			return err
		}
		return applyBulk(cmd, s, edits, nil)
	},
}

var gridPasteCmd = &cobra.Command{
	Use:   "paste ROW COL",
	Short: "Paste a tab or comma separated block anchored at a cell",
	Long: `Paste a block of marks anchored at (ROW, COL). Lines are rows and cells
are separated by tabs, or by commas when a line has no tab. Blank cells and
0 clear the cell. Cells past the grid edge or with invalid values are
dropped and reported; the rest are written in one batch.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		row, col, err := parseCellArgs(args[0], args[1])
		if err != nil {
			return err
		}

		var in io.Reader = cmd.InOrStdin()
		if pasteFile != "" {
			f, err := os.Open(pasteFile)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", pasteFile, err)
			}
			defer f.Close()
			in = f
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read paste input: %w", err)
		}

		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		edits, dropped, err := s.coord.Paste(row, col, string(data))
		if err != nil {
			return err
		}
		return applyBulk(cmd, s, edits, dropped)
	},
}

var gridStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load a window and print tile cache counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.coord.LoadWindow(ctx, statsWindow, models.Dims{}); err != nil {
			return err
		}
		diag := s.coord.Diagnostics()

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, diag)
		}

		rows := [][]string{
			{"grid get requests", strconv.FormatInt(diag.GridGetRequests, 10)},
			{"tile requests", strconv.FormatInt(diag.TileRequests, 10)},
			{"tile cache hits", strconv.FormatInt(diag.TileCacheHits, 10)},
			{"tile cache misses", strconv.FormatInt(diag.TileCacheMisses, 10)},
			{"loaded tiles", strconv.Itoa(diag.LoadedTiles)},
			{"inflight tiles", strconv.Itoa(diag.InflightTiles)},
			{"inflight max", strconv.Itoa(diag.InflightMax)},
			{"generation", strconv.FormatUint(diag.Generation, 10)},
		}
		families, err := s.registry.Gather()
		if err != nil {
			return fmt.Errorf("failed to gather metrics: %w", err)
		}
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				name := mf.GetName()
				if labels := m.GetLabel(); len(labels) > 0 {
					parts := make([]string, 0, len(labels))
					for _, l := range labels {
						parts = append(parts, l.GetName()+"="+l.GetValue())
					}
					name += "{" + strings.Join(parts, ",") + "}"
				}
				var value float64
				switch {
				case m.GetCounter() != nil:
					value = m.GetCounter().GetValue()
				case m.GetGauge() != nil:
					value = m.GetGauge().GetValue()
				}
				rows = append(rows, []string{name, strconv.FormatFloat(value, 'f', -1, 64)})
			}
		}
		return writeTable(out, []string{"COUNTER", "VALUE"}, rows)
	},
}

var gridLockCmd = &cobra.Command{
	Use:   "lock COL",
	Short: "Lock an assessment column against edits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		col, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid column %q", args[0])
		}

		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.markSets.SetAssessmentLocked(ctx, s.markSet.Ref(), col, !lockUnlock); err != nil {
			return fmt.Errorf("failed to update column %d: %w", col, err)
		}
		verb := "Locked"
		if lockUnlock {
			verb = "Unlocked"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s column %d.\n", verb, col)
		return nil
	},
}

func applyBulk(cmd *cobra.Command, s *gridSession, edits []models.PendingEdit, dropped []models.CellRejection) error {
	if len(edits) == 0 && len(dropped) == 0 {
		return grid.ErrEmptyEdit
	}
	outcome, err := s.coord.ApplyBulk(cmd.Context(), edits)
	if err != nil {
		return err
	}
	outcome.Dropped = dropped

	out := cmd.OutOrStdout()
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(out, outcome)
	}
	fmt.Fprintln(out, outcome.Summary())
	for _, rej := range outcome.Errors {
		fmt.Fprintf(out, "  (%d, %d): %s\n", rej.Row, rej.Col, rej.Message)
	}
	PrintNextSteps(out, HintContext{Action: "bulk", Rejected: outcome.Rejected})
	return nil
}

// buildGridView loads w through the coordinator and labels it.
func buildGridView(cmd *cobra.Command, s *gridSession, w models.Window) (*gridShowResult, error) {
	if err := s.coord.LoadWindow(cmd.Context(), w, models.Dims{}); err != nil {
		return nil, err
	}
	students, assessments, err := s.axes(cmd, w)
	if err != nil {
		return nil, err
	}

	_, dims := s.coord.Context()
	snapshot := s.coord.Snapshot()
	result := &gridShowResult{
		MarkSet:     s.markSet,
		Dims:        dims,
		Window:      w,
		Assessments: assessments,
		Rows:        make([]gridShowRow, 0, w.RowCount),
	}
	for i, r := 0, w.RowStart; r < w.RowEnd(); i, r = i+1, r+1 {
		row := gridShowRow{Row: r, Cells: make([]models.Cell, 0, w.ColCount)}
		if i < len(students) {
			row.Student = students[i].DisplayName
		}
		for col := w.ColStart; col < w.ColEnd(); col++ {
			row.Cells = append(row.Cells, snapshot.Cell(r, col))
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// axes loads the student and assessment labels covering w.
func (s *gridSession) axes(cmd *cobra.Command, w models.Window) ([]*models.Student, []*models.Assessment, error) {
	if w.Empty() {
		return nil, nil, nil
	}
	ctx := cmd.Context()
	students, err := s.markSets.Students(ctx, s.markSet.ClassID, w.RowStart, w.RowCount)
	if err != nil {
		return nil, nil, err
	}
	assessments, err := s.markSets.Assessments(ctx, s.markSet.ID)
	if err != nil {
		return nil, nil, err
	}
	end := min(w.ColEnd(), len(assessments))
	start := min(w.ColStart, end)
	return students, assessments[start:end], nil
}

func parseCellArgs(rowArg, colArg string) (int, int, error) {
	row, err := strconv.Atoi(strings.TrimSpace(rowArg))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row %q", rowArg)
	}
	col, err := strconv.Atoi(strings.TrimSpace(colArg))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid column %q", colArg)
	}
	return row, col, nil
}

func parseBulkArgs(args []string) (grid.BulkAction, float64, error) {
	switch strings.ToLower(args[0]) {
	case "no-mark", "clear":
		if len(args) > 1 {
			return "", 0, errors.New("no-mark takes no value")
		}
		return grid.ActionNoMark, 0, nil
	case "zero":
		if len(args) > 1 {
			return "", 0, errors.New("zero takes no value")
		}
		return grid.ActionZero, 0, nil
	case "set":
		if len(args) < 2 {
			return "", 0, errors.New("set requires a value")
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %q", grid.ErrInvalidInput, args[1])
		}
		return grid.ActionScored, value, nil
	default:
		return "", 0, fmt.Errorf("invalid bulk action %q (use no-mark, zero or set)", args[0])
	}
}

func formatCell(c models.Cell) string {
	if c.IsNoMark() {
		return "-"
	}
	return c.String()
}

func formatAssessmentHeader(a *models.Assessment) string {
	if a.Locked {
		return a.Title + "*"
	}
	return a.Title
}
