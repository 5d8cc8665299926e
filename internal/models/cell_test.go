package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellZeroIsNotNoMark(t *testing.T) {
	require.True(t, NoMark().IsNoMark())
	require.False(t, Mark(0).IsNoMark())
	require.NotEqual(t, NoMark(), Mark(0))

	var zero Cell
	require.Equal(t, NoMark(), zero)
}

func TestCellJSON(t *testing.T) {
	rows := [][]Cell{{Mark(3.5), NoMark(), Mark(0)}}
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	require.JSONEq(t, `[[3.5,null,0]]`, string(data))

	var decoded [][]Cell
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, rows, decoded)
}

func TestStateForCell(t *testing.T) {
	require.Equal(t, EditStateNoMark, StateForCell(NoMark()))
	require.Equal(t, EditStateZero, StateForCell(Mark(0)))
	require.Equal(t, EditStateScored, StateForCell(Mark(9)))
}

func TestWindowClamp(t *testing.T) {
	d := Dims{Rows: 10, Cols: 4}
	require.Equal(t, Window{RowStart: 0, RowCount: 3, ColStart: 2, ColCount: 2},
		Window{RowStart: -2, RowCount: 5, ColStart: 2, ColCount: 9}.Clamp(d))
	require.True(t, Window{RowStart: 12, RowCount: 3, ColStart: 0, ColCount: 1}.Clamp(d).Empty())
}
