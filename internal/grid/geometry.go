// Package grid coordinates tiled loading and editing of a marks matrix.
//
// The visible region of the grid is expanded by a prefetch margin, split into
// grid-aligned tiles and fetched tile by tile from a Backend. Loaded values
// live in a copy-on-write Matrix; a request generation discards results that
// belong to a mark set the user has already left.
package grid

import (
	"fmt"

	"github.com/tOgg1/gradebook/internal/models"
)

// TileKey identifies a tile by its aligned origin. The key of a tile does not
// depend on the window that produced it.
type TileKey struct {
	RowStart int
	ColStart int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d:%d", k.RowStart, k.ColStart)
}

// Tile is a grid-aligned partition unit. The embedded Window is the full tile
// clipped to the matrix; a tile at the matrix edge is narrower than the
// nominal size. Covers is the part of the requested window inside the tile.
type Tile struct {
	models.Window
	Key    TileKey
	Covers models.Window
}

// ExpandWindow grows w by prefetchRows above and below and prefetchCols left
// and right, then clamps the result to the matrix.
func ExpandWindow(w models.Window, dims models.Dims, prefetchRows, prefetchCols int) models.Window {
	if dims.Empty() {
		return models.Window{}
	}
	prefetchRows = max(prefetchRows, 0)
	prefetchCols = max(prefetchCols, 0)

	rowStart := max(w.RowStart-prefetchRows, 0)
	rowEnd := min(w.RowEnd()+prefetchRows, dims.Rows)
	colStart := max(w.ColStart-prefetchCols, 0)
	colEnd := min(w.ColEnd()+prefetchCols, dims.Cols)

	return models.Window{
		RowStart: rowStart,
		RowCount: rowEnd - rowStart,
		ColStart: colStart,
		ColCount: colEnd - colStart,
	}.Clamp(dims)
}

// TilesForWindow returns the grid-aligned tiles that intersect w, in
// row-major order. Tiles are disjoint and the union of their Covers regions
// equals w clamped to the matrix.
func TilesForWindow(w models.Window, dims models.Dims, tileRows, tileCols int) []Tile {
	if dims.Empty() || tileRows <= 0 || tileCols <= 0 {
		return nil
	}
	w = w.Clamp(dims)
	if w.Empty() {
		return nil
	}

	firstRow := (w.RowStart / tileRows) * tileRows
	firstCol := (w.ColStart / tileCols) * tileCols

	var tiles []Tile
	for r := firstRow; r < w.RowEnd(); r += tileRows {
		for c := firstCol; c < w.ColEnd(); c += tileCols {
			bounds := models.Window{
				RowStart: r,
				RowCount: min(tileRows, dims.Rows-r),
				ColStart: c,
				ColCount: min(tileCols, dims.Cols-c),
			}
			tiles = append(tiles, Tile{
				Window: bounds,
				Key:    TileKey{RowStart: r, ColStart: c},
				Covers: intersect(bounds, w),
			})
		}
	}
	return tiles
}

// TileFor returns the tile holding (row, col).
func TileFor(row, col int, dims models.Dims, tileRows, tileCols int) (Tile, bool) {
	if !dims.Contains(row, col) {
		return Tile{}, false
	}
	tiles := TilesForWindow(models.CellWindow(row, col), dims, tileRows, tileCols)
	if len(tiles) != 1 {
		return Tile{}, false
	}
	return tiles[0], true
}

func intersect(a, b models.Window) models.Window {
	rowStart := max(a.RowStart, b.RowStart)
	rowEnd := min(a.RowEnd(), b.RowEnd())
	colStart := max(a.ColStart, b.ColStart)
	colEnd := min(a.ColEnd(), b.ColEnd())
	if rowEnd <= rowStart || colEnd <= colStart {
		return models.Window{RowStart: rowStart, ColStart: colStart}
	}
	return models.Window{
		RowStart: rowStart,
		RowCount: rowEnd - rowStart,
		ColStart: colStart,
		ColCount: colEnd - colStart,
	}
}
