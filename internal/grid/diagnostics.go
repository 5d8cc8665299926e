package grid

// Diagnostics is a point-in-time view of the coordinator counters.
type Diagnostics struct {
	GridGetRequests int64  `json:"grid_get_requests"`
	LoadedTiles     int    `json:"loaded_tiles"`
	InflightTiles   int    `json:"inflight_tiles"`
	TileCacheHits   int64  `json:"tile_cache_hits"`
	TileCacheMisses int64  `json:"tile_cache_misses"`
	TileRequests    int64  `json:"tile_requests"`
	InflightMax     int    `json:"inflight_max"`
	Generation      uint64 `json:"generation"`
}

// Diagnostics returns the current counters. Cache counters restart with
// each Advance; GridGetRequests counts every backend read including
// single-cell resyncs.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.cache.Stats()
	return Diagnostics{
		GridGetRequests: c.gridGets.Load(),
		LoadedTiles:     c.cache.Loaded(),
		InflightTiles:   c.cache.Inflight(),
		TileCacheHits:   stats.Hits,
		TileCacheMisses: stats.Misses,
		TileRequests:    stats.Requests,
		InflightMax:     stats.InflightMax,
		Generation:      c.generation.Current(),
	}
}
