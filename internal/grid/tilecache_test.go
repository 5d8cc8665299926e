package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileCacheLifecycle(t *testing.T) {
	cache := NewTileCache()
	key := TileKey{RowStart: 0, ColStart: 0}

	require.False(t, cache.IsSatisfied(key))
	cache.MarkInflight(key)
	require.True(t, cache.IsInflight(key))
	require.False(t, cache.IsLoaded(key))

	require.True(t, cache.IsSatisfied(key))

	cache.MarkLoaded(key)
	require.True(t, cache.IsLoaded(key))
	require.False(t, cache.IsInflight(key))
	require.True(t, cache.IsSatisfied(key))

	assert.Equal(t, CacheStats{Requests: 1, Hits: 2, Misses: 1, InflightMax: 1}, cache.Stats())
}

func TestTileCacheFailedTileRetries(t *testing.T) {
	cache := NewTileCache()
	key := TileKey{RowStart: 40, ColStart: 8}

	cache.MarkInflight(key)
	cache.MarkFailed(key)

	require.False(t, cache.IsLoaded(key))
	require.False(t, cache.IsInflight(key))
	require.False(t, cache.IsSatisfied(key))
}

func TestTileCacheInflightMax(t *testing.T) {
	cache := NewTileCache()
	a, b, c := TileKey{0, 0}, TileKey{0, 8}, TileKey{40, 0}

	cache.MarkInflight(a)
	cache.MarkInflight(b)
	cache.MarkLoaded(a)
	cache.MarkInflight(c)

	assert.Equal(t, 2, cache.Inflight())
	assert.Equal(t, 1, cache.Loaded())
	assert.Equal(t, 2, cache.Stats().InflightMax)
}

func TestTileCacheReset(t *testing.T) {
	cache := NewTileCache()
	cache.IsSatisfied(TileKey{})
	cache.MarkInflight(TileKey{})
	cache.MarkLoaded(TileKey{})
	cache.MarkInflight(TileKey{RowStart: 40})

	cache.Reset()

	assert.Zero(t, cache.Loaded())
	assert.Zero(t, cache.Inflight())
	assert.Equal(t, CacheStats{}, cache.Stats())
}

func TestGeneration(t *testing.T) {
	var g Generation
	captured := g.Current()
	require.True(t, g.IsCurrent(captured))

	next := g.Advance()
	require.Equal(t, captured+1, next)
	require.False(t, g.IsCurrent(captured))
	require.True(t, g.IsCurrent(next))
}
