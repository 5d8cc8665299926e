package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/tOgg1/gradebook/internal/events"
	"github.com/tOgg1/gradebook/internal/logging"
	"github.com/tOgg1/gradebook/internal/models"
	"golang.org/x/sync/errgroup"
)

// Config tunes tiling and fetch concurrency.
type Config struct {
	// TileRows and TileCols are the nominal tile size.
	// Default: 40x8
	TileRows int
	TileCols int

	// PrefetchRows and PrefetchCols are the margins added around a window.
	// Default: 20 rows, 6 columns
	PrefetchRows int
	PrefetchCols int

	// MaxConcurrentFetches limits backend reads running at once.
	// Default: 8
	MaxConcurrentFetches int

	// FetchTimeout bounds one backend read.
	// Default: 10s
	FetchTimeout time.Duration
}

// DefaultConfig returns the tuning used by the grid.
func DefaultConfig() Config {
	return Config{
		TileRows:             40,
		TileCols:             8,
		PrefetchRows:         20,
		PrefetchCols:         6,
		MaxConcurrentFetches: 8,
		FetchTimeout:         10 * time.Second,
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher sends grid events to p.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithRegisterer registers the coordinator metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Coordinator) {
		c.metrics = NewMetrics(reg)
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// tileFetch is one issued backend read. done is closed once the result has
// been merged, recorded as a failure, or discarded as stale. writes is the
// write sequence at issue time.
type tileFetch struct {
	tile       Tile
	generation uint64
	writes     uint64
	done       chan struct{}
	err        error
}

// Coordinator owns the tile cache, the cell matrix and the request
// generation of one grid. Fetches run in the background; merges and edits
// are serialized under mu and publish a new Matrix snapshot.
type Coordinator struct {
	config    Config
	backend   Backend
	publisher events.Publisher
	metrics   *Metrics
	logger    zerolog.Logger

	generation Generation
	matrix     atomic.Pointer[Matrix]
	gridGets   atomic.Int64
	fetchSem   chan struct{}

	mu      sync.Mutex
	idle    *sync.Cond
	ref     models.MarkSetRef
	dims    models.Dims
	cache   *TileCache
	fetches map[TileKey]*tileFetch
	running int

	// writes numbers edits applied while fetches are in flight; written
	// holds the sequence of the last such edit per cell. A merge keeps cells
	// written after its fetch was issued.
	writes  uint64
	written map[cellKey]uint64
}

type cellKey struct {
	row, col int
}

// NewCoordinator creates a coordinator with no mark set selected.
func NewCoordinator(backend Backend, config Config, opts ...Option) *Coordinator {
	defaults := DefaultConfig()
	if config.TileRows <= 0 {
		config.TileRows = defaults.TileRows
	}
	if config.TileCols <= 0 {
		config.TileCols = defaults.TileCols
	}
	if config.PrefetchRows < 0 {
		config.PrefetchRows = 0
	}
	if config.PrefetchCols < 0 {
		config.PrefetchCols = 0
	}
	if config.MaxConcurrentFetches <= 0 {
		config.MaxConcurrentFetches = defaults.MaxConcurrentFetches
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}

	c := &Coordinator{
		config:   config,
		backend:  backend,
		logger:   logging.Component("grid"),
		fetchSem: make(chan struct{}, config.MaxConcurrentFetches),
		cache:    NewTileCache(),
		fetches:  make(map[TileKey]*tileFetch),
		written:  make(map[cellKey]uint64),
	}
	c.idle = sync.NewCond(&c.mu)
	c.matrix.Store(NewMatrix(models.Dims{}))
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Config returns the effective tuning.
func (c *Coordinator) Config() Config {
	return c.config
}

// Advance switches the grid to a new mark set. It bumps the generation,
// clears the tile cache and re-allocates an all-no-mark matrix at dims.
// Fetches issued before the call may still complete; their results are
// discarded.
func (c *Coordinator) Advance(ref models.MarkSetRef, dims models.Dims) uint64 {
	dims = models.Dims{Rows: max(dims.Rows, 0), Cols: max(dims.Cols, 0)}

	c.mu.Lock()
	gen := c.generation.Advance()
	c.ref = ref
	c.dims = dims
	c.cache.Reset()
	c.fetches = make(map[TileKey]*tileFetch)
	clear(c.written)
	c.matrix.Store(NewMatrix(c.dims))
	c.metrics.InflightTiles.Set(0)
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("generation", gen).
		Str("mark_set", ref.String()).
		Int("rows", dims.Rows).
		Int("cols", dims.Cols).
		Msg("grid context changed")

	c.publish(ref, models.EventTypeContextChanged, models.EntityTypeMarkSet, ref.String(), models.ContextChangedPayload{
		Generation: gen,
		Ref:        ref,
		Dims:       dims,
	})
	return gen
}

// Context returns the selected mark set and its dimensions.
func (c *Coordinator) Context() (models.MarkSetRef, models.Dims) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ref, c.dims
}

// Generation returns the live request generation.
func (c *Coordinator) Generation() uint64 {
	return c.generation.Current()
}

// Snapshot returns the current matrix. The snapshot never changes; later
// merges and edits publish a new one.
func (c *Coordinator) Snapshot() *Matrix {
	return c.matrix.Load()
}

// Cell returns the best-known value at (row, col), which is no mark until
// the covering tile has loaded.
func (c *Coordinator) Cell(row, col int) models.Cell {
	return c.matrix.Load().Cell(row, col)
}

// EnsureWindowLoaded issues fetches for every tile of the prefetch-expanded
// window that is neither loaded nor in flight and returns how many it
// issued. It does not wait for them. A zero field in dims falls back to the
// current mark set size.
//
// Fetch errors are not returned here. A failed tile is published as a
// TileFailed event and is fetched again by the next call covering it; use
// LoadWindow to wait for tiles and receive their errors.
func (c *Coordinator) EnsureWindowLoaded(ctx context.Context, w models.Window, dims models.Dims) int {
	issued, _ := c.ensure(ctx, w, dims)
	return issued
}

// LoadWindow is EnsureWindowLoaded followed by a wait on every tile covering
// w, including tiles an earlier call left in flight. Fetch errors are joined.
func (c *Coordinator) LoadWindow(ctx context.Context, w models.Window, dims models.Dims) error {
	_, waits := c.ensure(ctx, w, dims)
	if len(waits) == 0 {
		return nil
	}

	var mu sync.Mutex
	var errs []error
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range waits {
		g.Go(func() error {
			select {
			case <-f.done:
				if f.err != nil {
					mu.Lock()
					errs = append(errs, f.err)
					mu.Unlock()
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Wait blocks until no fetch is running.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.running > 0 {
		c.idle.Wait()
	}
}

// OpenEditor makes sure the tile holding (row, col) is loaded before the
// cell is edited and returns its value.
func (c *Coordinator) OpenEditor(ctx context.Context, row, col int) (models.Cell, error) {
	ref, dims := c.Context()
	if ref.IsZero() {
		return models.NoMark(), ErrNoContext
	}
	if !dims.Contains(row, col) {
		return models.NoMark(), &EditError{Row: row, Col: col, Err: ErrOutOfRange}
	}
	if err := c.LoadWindow(ctx, models.CellWindow(row, col), dims); err != nil {
		return models.NoMark(), err
	}
	return c.Cell(row, col), nil
}

func (c *Coordinator) ensure(ctx context.Context, w models.Window, dims models.Dims) (int, []*tileFetch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ref.IsZero() {
		return 0, nil
	}
	dims = c.resolveDims(dims)
	if dims.Empty() {
		return 0, nil
	}

	visible := w.Clamp(dims)
	expanded := ExpandWindow(w, dims, c.config.PrefetchRows, c.config.PrefetchCols)
	tiles := TilesForWindow(expanded, dims, c.config.TileRows, c.config.TileCols)

	fetchCtx := context.WithoutCancel(ctx)
	gen := c.generation.Current()
	issued := 0
	var waits []*tileFetch
	for _, tile := range tiles {
		covering := !intersect(tile.Window, visible).Empty()

		if c.cache.IsSatisfied(tile.Key) {
			c.metrics.CacheHits.Inc()
			if f, ok := c.fetches[tile.Key]; ok && covering {
				waits = append(waits, f)
			}
			continue
		}
		c.metrics.CacheMisses.Inc()

		f := &tileFetch{tile: tile, generation: gen, writes: c.writes, done: make(chan struct{})}
		c.cache.MarkInflight(tile.Key)
		c.fetches[tile.Key] = f
		c.running++
		c.gridGets.Add(1)
		c.metrics.TileRequests.Inc()
		issued++
		if covering {
			waits = append(waits, f)
		}

		c.logger.Debug().
			Str("tile", tile.Key.String()).
			Str("window", tile.Window.String()).
			Uint64("generation", gen).
			Msg("issuing tile fetch")
		go c.runFetch(fetchCtx, c.ref, f)
	}
	c.metrics.InflightTiles.Set(float64(c.cache.Inflight()))
	return issued, waits
}

// resolveDims fills zero fields from the current mark set and never exceeds
// the allocated matrix.
func (c *Coordinator) resolveDims(dims models.Dims) models.Dims {
	if dims.Rows <= 0 {
		dims.Rows = c.dims.Rows
	}
	if dims.Cols <= 0 {
		dims.Cols = c.dims.Cols
	}
	dims.Rows = min(dims.Rows, c.dims.Rows)
	dims.Cols = min(dims.Cols, c.dims.Cols)
	return dims
}

func (c *Coordinator) runFetch(ctx context.Context, ref models.MarkSetRef, f *tileFetch) {
	c.fetchSem <- struct{}{}
	fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	cells, err := c.backend.GetCells(fetchCtx, ref, f.tile.Window)
	cancel()
	<-c.fetchSem

	c.complete(ref, f, cells, err)
}

func (c *Coordinator) complete(ref models.MarkSetRef, f *tileFetch, cells [][]models.Cell, err error) {
	defer c.finishFetch()

	c.mu.Lock()
	stale := !c.generation.IsCurrent(f.generation)
	switch {
	case stale:
		c.metrics.StaleResults.Inc()
	case err != nil:
		c.cache.MarkFailed(f.tile.Key)
		f.err = &FetchError{Tile: f.tile.Key, Err: err}
		c.metrics.FetchFailures.Inc()
	default:
		kept := c.writtenSince(f)
		c.matrix.Store(c.matrix.Load().MergeTile(f.tile.Window, cells).With(kept...))
		c.cache.MarkLoaded(f.tile.Key)
	}
	if !stale {
		if c.fetches[f.tile.Key] == f {
			delete(c.fetches, f.tile.Key)
		}
		if len(c.fetches) == 0 {
			clear(c.written)
		}
		c.metrics.InflightTiles.Set(float64(c.cache.Inflight()))
	}
	c.mu.Unlock()
	close(f.done)

	switch {
	case stale:
		c.logger.Debug().
			Str("tile", f.tile.Key.String()).
			Uint64("generation", f.generation).
			Msg("discarded stale tile")
	case err != nil:
		c.logger.Warn().Err(err).Str("tile", f.tile.Key.String()).Msg("tile fetch failed")
		c.publish(ref, models.EventTypeTileFailed, models.EntityTypeTile, f.tile.Key.String(), models.TilePayload{
			Window: f.tile.Window,
			Error:  err.Error(),
		})
	default:
		c.logger.Debug().Str("tile", f.tile.Key.String()).Int("rows", len(cells)).Msg("tile merged")
		c.publish(ref, models.EventTypeTileLoaded, models.EntityTypeTile, f.tile.Key.String(), models.TilePayload{
			Window: f.tile.Window,
		})
	}
}

// applyLocked publishes edits the backend accepted. While fetches are in
// flight the edits are recorded so an older read cannot overwrite them.
// Callers hold mu.
func (c *Coordinator) applyLocked(updates ...CellUpdate) {
	if len(updates) == 0 {
		return
	}
	c.matrix.Store(c.matrix.Load().With(updates...))
	if len(c.fetches) == 0 {
		return
	}
	c.writes++
	for _, u := range updates {
		c.written[cellKey{u.Row, u.Col}] = c.writes
	}
}

// writtenSince returns the current values of cells in f's tile that were
// written after f was issued. Callers hold mu.
func (c *Coordinator) writtenSince(f *tileFetch) []CellUpdate {
	current := c.matrix.Load()
	var kept []CellUpdate
	for pos, seq := range c.written {
		if seq > f.writes && f.tile.Window.Contains(pos.row, pos.col) {
			kept = append(kept, CellUpdate{Row: pos.row, Col: pos.col, Value: current.Cell(pos.row, pos.col)})
		}
	}
	return kept
}

// finishFetch runs after a fetch has been recorded and announced, so Wait
// also covers event delivery.
func (c *Coordinator) finishFetch() {
	c.mu.Lock()
	c.running--
	if c.running == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Coordinator) publish(ref models.MarkSetRef, eventType models.EventType, entityType models.EntityType, entityID string, payload any) {
	if c.publisher == nil {
		return
	}
	event := events.New(eventType, entityType, entityID, payload)
	if !ref.IsZero() {
		event.Metadata = map[string]string{models.MetadataMarkSet: ref.String()}
	}
	c.publisher.Publish(context.Background(), event)
}

func cellID(row, col int) string {
	return fmt.Sprintf("%d:%d", row, col)
}
