package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tOgg1/gradebook/internal/config"
	"github.com/tOgg1/gradebook/internal/db"
	"github.com/tOgg1/gradebook/internal/events"
	"github.com/tOgg1/gradebook/internal/grid"
	"github.com/tOgg1/gradebook/internal/logging"
	"github.com/tOgg1/gradebook/internal/models"
)

// gridSession is an open database plus a coordinator bound to the selected
// mark set.
type gridSession struct {
	database  *db.DB
	markSets  *db.MarkSetRepository
	markSet   *models.MarkSet
	coord     *grid.Coordinator
	publisher *events.InMemoryPublisher
	registry  *prometheus.Registry
}

func openGridSession(ctx context.Context) (*gridSession, error) {
	current, err := contextStore().Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	if !current.HasMarkSet() {
		return nil, &PreflightError{
			Message:  "no mark set selected",
			Hint:     "select a class and one of its mark sets first",
			NextStep: "gradebook use <class> <mark-set>",
		}
	}

	database, err := openDatabase(ctx)
	if err != nil {
		return nil, err
	}

	markSets := db.NewMarkSetRepository(database)
	markSet, err := markSets.GetMarkSet(ctx, current.Ref())
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load mark set %s: %w", current.Ref(), err)
	}
	dims, err := markSets.Dims(ctx, current.Ref())
	if err != nil {
		database.Close()
		return nil, err
	}

	publisher := events.NewInMemoryPublisher(
		events.WithRepository(db.NewEventRepository(database)),
		events.WithLogger(logging.Component("events")),
	)
	registry := prometheus.NewRegistry()
	coord := grid.NewCoordinator(
		db.NewMarkRepository(database),
		gridConfig(GetConfig().Grid),
		grid.WithPublisher(publisher),
		grid.WithRegisterer(registry),
		grid.WithLogger(logging.WithMarkSet(markSet.ClassID, markSet.ID)),
	)
	coord.Advance(markSet.Ref(), dims)

	return &gridSession{
		database:  database,
		markSets:  markSets,
		markSet:   markSet,
		coord:     coord,
		publisher: publisher,
		registry:  registry,
	}, nil
}

// Close waits for outstanding fetches before closing the database.
func (s *gridSession) Close() {
	s.coord.Wait()
	s.publisher.Close()
	s.database.Close()
}

func gridConfig(cfg config.GridConfig) grid.Config {
	return grid.Config{
		TileRows:             cfg.TileRows,
		TileCols:             cfg.TileCols,
		PrefetchRows:         cfg.PrefetchRows,
		PrefetchCols:         cfg.PrefetchCols,
		MaxConcurrentFetches: cfg.MaxConcurrentFetches,
		FetchTimeout:         cfg.FetchTimeout,
	}
}
