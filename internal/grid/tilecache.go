package grid

// CacheStats are the tile cache counters.
type CacheStats struct {
	Requests    int64 `json:"tile_requests"`
	Hits        int64 `json:"tile_cache_hits"`
	Misses      int64 `json:"tile_cache_misses"`
	InflightMax int   `json:"inflight_max"`
}

// TileCache tracks which tiles are loaded and which are in flight. A key is
// never in both sets. TileCache is not safe for concurrent use; the
// Coordinator serializes access.
type TileCache struct {
	loaded   map[TileKey]struct{}
	inflight map[TileKey]struct{}
	stats    CacheStats
}

// NewTileCache creates an empty cache.
func NewTileCache() *TileCache {
	return &TileCache{
		loaded:   make(map[TileKey]struct{}),
		inflight: make(map[TileKey]struct{}),
	}
}

// IsSatisfied reports whether the tile is loaded or in flight and counts the
// lookup as a hit or a miss.
func (c *TileCache) IsSatisfied(key TileKey) bool {
	_, loaded := c.loaded[key]
	_, inflight := c.inflight[key]
	if loaded || inflight {
		c.stats.Hits++
		return true
	}
	c.stats.Misses++
	return false
}

// MarkInflight records that a fetch for key was issued.
func (c *TileCache) MarkInflight(key TileKey) {
	delete(c.loaded, key)
	c.inflight[key] = struct{}{}
	c.stats.Requests++
	if n := len(c.inflight); n > c.stats.InflightMax {
		c.stats.InflightMax = n
	}
}

// MarkLoaded moves key from in flight to loaded.
func (c *TileCache) MarkLoaded(key TileKey) {
	delete(c.inflight, key)
	c.loaded[key] = struct{}{}
}

// MarkFailed drops key from in flight so a later request retries it.
func (c *TileCache) MarkFailed(key TileKey) {
	delete(c.inflight, key)
}

// IsLoaded reports whether key is loaded without counting a lookup.
func (c *TileCache) IsLoaded(key TileKey) bool {
	_, ok := c.loaded[key]
	return ok
}

// IsInflight reports whether key is in flight without counting a lookup.
func (c *TileCache) IsInflight(key TileKey) bool {
	_, ok := c.inflight[key]
	return ok
}

// Loaded returns the number of loaded tiles.
func (c *TileCache) Loaded() int {
	return len(c.loaded)
}

// Inflight returns the number of tiles in flight.
func (c *TileCache) Inflight() int {
	return len(c.inflight)
}

// Stats returns a copy of the counters.
func (c *TileCache) Stats() CacheStats {
	return c.stats
}

// Reset clears both sets and all counters.
func (c *TileCache) Reset() {
	c.loaded = make(map[TileKey]struct{})
	c.inflight = make(map[TileKey]struct{})
	c.stats = CacheStats{}
}
