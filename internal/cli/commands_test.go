package cli

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tOgg1/gradebook/internal/grid"
	"github.com/tOgg1/gradebook/internal/models"
)

func TestSeedSelectsMarkSetAndShowReadsIt(t *testing.T) {
	setupCLI(t)

	out := mustRunCLI(t, "seed", "--students", "5", "--assessments", "3", "--fill", "1", "--seed", "3")
	assert.Contains(t, out, "Seeded Class / Term 1 (5 students x 3 assessments)")
	assert.Contains(t, out, "gradebook grid show")

	out = mustRunCLI(t, "use")
	assert.Equal(t, "class:Class mark_set:Term 1\n", out)

	result := decodeJSON[gridShowResult](t, mustRunCLI(t, "--json", "grid", "show"))
	assert.Equal(t, models.Dims{Rows: 5, Cols: 3}, result.Dims)
	assert.Equal(t, models.Window{RowCount: 5, ColCount: 3}, result.Window)
	require.Len(t, result.Rows, 5)
	require.Len(t, result.Assessments, 3)
	assert.Equal(t, "Student 001", result.Rows[0].Student)
	for _, row := range result.Rows {
		require.Len(t, row.Cells, 3)
		for _, cell := range row.Cells {
			assert.False(t, cell.IsNoMark())
		}
	}

	out = mustRunCLI(t, "grid", "show", "--rows", "2", "--cols", "2")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STUDENT")
	assert.Contains(t, lines[0], "A2")
	assert.NotContains(t, lines[0], "A3")
}

func TestGridSetWritesAndClears(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "4", "--assessments", "3", "--fill", "0")

	assert.Equal(t, "Set (1, 2) = 42\n", mustRunCLI(t, "grid", "set", "1", "2", "42"))

	outcome := decodeJSON[map[string]any](t, mustRunCLI(t, "--json", "grid", "set", "2", "0", "7.5"))
	assert.Equal(t, "clean", outcome["state"])
	assert.Equal(t, 7.5, outcome["value"])

	result := decodeJSON[gridShowResult](t, mustRunCLI(t, "--json", "grid", "show"))
	assert.Equal(t, models.Mark(42), result.Rows[1].Cells[2])
	assert.Equal(t, models.Mark(7.5), result.Rows[2].Cells[0])

	assert.Equal(t, "Set (1, 2) = -\n", mustRunCLI(t, "grid", "set", "1", "2", "0"))
	assert.Equal(t, "Set (2, 0) = -\n", mustRunCLI(t, "grid", "set", "2", "0"))

	result = decodeJSON[gridShowResult](t, mustRunCLI(t, "--json", "grid", "show"))
	assert.True(t, result.Rows[1].Cells[2].IsNoMark())
	assert.True(t, result.Rows[2].Cells[0].IsNoMark())
}

func TestGridSetRejectsBadInput(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "2", "--assessments", "2", "--fill", "0")

	_, err := runCLI(t, "", "grid", "set", "--", "0", "0", "-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, grid.ErrNegativeMark)

	_, err = runCLI(t, "", "grid", "set", "0", "0", "abc")
	assert.ErrorIs(t, err, grid.ErrInvalidInput)

	_, err = runCLI(t, "", "grid", "set", "9", "0", "5")
	assert.ErrorIs(t, err, grid.ErrOutOfRange)

	_, err = runCLI(t, "", "grid", "set", "x", "0", "5")
	assert.EqualError(t, err, `invalid row "x"`)
}

func TestGridPasteReportsDroppedCells(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "3", "--assessments", "3", "--fill", "0")

	out, err := runCLI(t, "1\t2\n3,-1\n4,5,6,7\n", "grid", "paste", "1", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "applied 3 cells; dropped 5 cells")

	result := decodeJSON[gridShowResult](t, mustRunCLI(t, "--json", "grid", "show"))
	assert.Equal(t, models.Mark(1), result.Rows[1].Cells[1])
	assert.Equal(t, models.Mark(2), result.Rows[1].Cells[2])
	assert.Equal(t, models.Mark(3), result.Rows[2].Cells[1])
	assert.True(t, result.Rows[2].Cells[2].IsNoMark())
}

func TestGridBulkAndFillRespectLockedColumns(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "3", "--assessments", "3", "--fill", "0")

	assert.Equal(t, "Locked column 1.\n", mustRunCLI(t, "grid", "lock", "1"))

	out := mustRunCLI(t, "grid", "bulk", "zero", "--rows", "2", "--cols", "2")
	assert.Contains(t, out, "rejected 2 cells; first error: assessment is locked")
	assert.Contains(t, out, "(0, 1): assessment is locked")
	assert.Contains(t, out, "Next steps:")

	result := decodeJSON[gridShowResult](t, mustRunCLI(t, "--json", "grid", "show"))
	assert.Equal(t, models.Mark(0), result.Rows[0].Cells[0])
	assert.Equal(t, models.Mark(0), result.Rows[1].Cells[0])
	assert.True(t, result.Rows[0].Cells[1].IsNoMark())
	assert.True(t, result.Assessments[1].Locked)

	assert.Equal(t, "Unlocked column 1.\n", mustRunCLI(t, "grid", "lock", "1", "--unlock"))

	mustRunCLI(t, "grid", "set", "0", "2", "9")
	outcome := decodeJSON[grid.BulkOutcome](t, mustRunCLI(t, "--json", "grid", "fill", "down", "--col", "2", "--rows", "3"))
	assert.Equal(t, 2, outcome.Applied)
	assert.Zero(t, outcome.Rejected)

	outcome = decodeJSON[grid.BulkOutcome](t, mustRunCLI(t, "--json", "grid", "bulk", "set", "55", "--row", "2", "--cols", "3"))
	assert.Equal(t, 3, outcome.Applied)

	result = decodeJSON[gridShowResult](t, mustRunCLI(t, "--json", "grid", "show"))
	assert.Equal(t, models.Mark(9), result.Rows[1].Cells[2])
	assert.Equal(t, models.Mark(55), result.Rows[2].Cells[2])
	assert.Equal(t, models.Mark(55), result.Rows[2].Cells[0])

	_, err := runCLI(t, "", "grid", "bulk", "set")
	assert.EqualError(t, err, "set requires a value")
}

func TestGridCommandsRequireMarkSet(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "grid", "show")
	var preflight *PreflightError
	require.True(t, errors.As(err, &preflight))
	assert.Equal(t, "no mark set selected", preflight.Message)
	assert.Contains(t, err.Error(), "gradebook use")
}

func TestUseResolvesClassesByName(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--class", "Math 9", "--students", "1", "--assessments", "1", "--no-use")
	mustRunCLI(t, "seed", "--class", "Science 10", "--mark-set", "Term 2", "--students", "2", "--assessments", "4", "--no-use")

	assert.Equal(t, "(no context set)\n", mustRunCLI(t, "use"))

	out := mustRunCLI(t, "use", "scien")
	assert.Contains(t, out, "Context set to class:Science 10 mark_set:Term 2")

	out = mustRunCLI(t, "use", "math 9", "term")
	assert.Contains(t, out, "Context set to class:Math 9 mark_set:Term 1")

	_, err := runCLI(t, "", "use", "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class 'history' not found")

	listing := decodeJSON[[]classListing](t, mustRunCLI(t, "--json", "classes"))
	require.Len(t, listing, 2)
	assert.Equal(t, "Math 9", listing[0].ClassName)
	assert.True(t, listing[0].Current)
	assert.Equal(t, 4, listing[1].Assessments)
	assert.False(t, listing[1].Current)

	assert.Equal(t, "Context cleared.\n", mustRunCLI(t, "use", "--clear"))
}

func TestHistoryListsGridEvents(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "2", "--assessments", "2", "--fill", "0")
	mustRunCLI(t, "grid", "set", "0", "0", "3")

	result := decodeJSON[historyResult](t, mustRunCLI(t, "--json", "history"))
	types := make(map[models.EventType]int)
	for _, event := range result.Events {
		types[event.Type]++
	}
	assert.Positive(t, types[models.EventTypeContextChanged])
	assert.Positive(t, types[models.EventTypeTileLoaded])
	assert.Equal(t, 1, types[models.EventTypeCellWritten])
	assert.Equal(t, 1, types[models.EventTypeAggregatesInvalidated])

	result = decodeJSON[historyResult](t, mustRunCLI(t, "--json", "history", "--type", "grid.cell_written"))
	require.Len(t, result.Events, 1)
	assert.Equal(t, "cell", string(result.Events[0].EntityType))

	_, err := runCLI(t, "", "history", "--since", "yesterday")
	assert.Error(t, err)
}

func TestExportWritesCSV(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "3", "--assessments", "2", "--fill", "0")
	mustRunCLI(t, "grid", "set", "0", "0", "5")
	mustRunCLI(t, "grid", "set", "2", "1", "88.5")

	records, err := csv.NewReader(strings.NewReader(mustRunCLI(t, "export"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"student", "A1", "A2"},
		{"Student 001", "5", ""},
		{"Student 002", "", ""},
		{"Student 003", "", "88.5"},
	}, records)
}

func TestGridStatsReportsTileCounters(t *testing.T) {
	setupCLI(t)
	mustRunCLI(t, "seed", "--students", "100", "--assessments", "20", "--fill", "0")

	diag := decodeJSON[grid.Diagnostics](t, mustRunCLI(t, "--json", "grid", "stats"))
	assert.Positive(t, diag.TileRequests)
	assert.Equal(t, diag.TileRequests, diag.GridGetRequests)
	assert.Equal(t, int64(0), diag.TileCacheHits)
	assert.Equal(t, 1, int(diag.Generation))

	out := mustRunCLI(t, "grid", "stats")
	assert.Contains(t, out, "tile requests")
	assert.Contains(t, out, "gradebook_grid_tile_requests_total")
}

func TestGridViewRefusesNonInteractive(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "grid", "view")
	var preflight *PreflightError
	require.True(t, errors.As(err, &preflight))
	assert.Contains(t, preflight.Message, "interactive terminal")
}

func TestJSONAndJSONLAreExclusive(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "--json", "--jsonl", "classes")
	assert.EqualError(t, err, "--json and --jsonl are mutually exclusive")
}
