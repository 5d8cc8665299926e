package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tOgg1/gradebook/internal/models"
)

func appendEvent(t *testing.T, repo *EventRepository, eventType models.EventType, markSet string, at time.Time) *models.Event {
	t.Helper()
	event := &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeMarkSet,
		EntityID:   markSet,
		Timestamp:  at,
	}
	if markSet != "" {
		event.Metadata = map[string]string{models.MetadataMarkSet: markSet}
	}
	require.NoError(t, repo.Create(context.Background(), event))
	return event
}

func TestEventRepositoryCreateAndQuery(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	defer database.Close()

	repo := NewEventRepository(database)
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))

	event := &models.Event{
		Type:       models.EventTypeBulkApplied,
		EntityType: models.EntityTypeMarkSet,
		EntityID:   "cls/ms",
		Timestamp:  base,
		Payload:    json.RawMessage(`{"applied":3,"rejected":2}`),
		Metadata:   map[string]string{models.MetadataMarkSet: "cls/ms", "source": "test"},
	}
	require.NoError(t, repo.Create(ctx, event))
	require.NotEmpty(t, event.ID)

	page, err := repo.Query(ctx, EventQuery{Types: []models.EventType{event.Type}})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Empty(t, page.NextCursor)

	got := page.Events[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, event.EntityID, got.EntityID)
	assert.JSONEq(t, string(event.Payload), string(got.Payload))
	assert.Equal(t, "test", got.Metadata["source"])
	assert.True(t, got.Timestamp.Equal(base))
	assert.Equal(t, time.UTC, got.Timestamp.Location())
}

func TestEventRepositoryCreateRequiresTypeAndEntity(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewEventRepository(database)
	assert.Error(t, repo.Create(context.Background(), nil))
	assert.Error(t, repo.Create(context.Background(), &models.Event{EntityType: models.EntityTypeCell}))
	assert.Error(t, repo.Create(context.Background(), &models.Event{Type: models.EventTypeTileLoaded}))
}

func TestEventRepositoryFilters(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	defer database.Close()

	repo := NewEventRepository(database)
	base := time.Now().UTC().Add(-time.Minute)
	appendEvent(t, repo, models.EventTypeContextChanged, "c1/m1", base)
	appendEvent(t, repo, models.EventTypeTileLoaded, "c1/m1", base.Add(time.Millisecond))
	appendEvent(t, repo, models.EventTypeTileLoaded, "c1/m2", base.Add(2*time.Millisecond))
	appendEvent(t, repo, models.EventTypeCellWritten, "c1/m1", base.Add(3*time.Millisecond))
	appendEvent(t, repo, models.EventTypeCellWritten, "", base.Add(4*time.Millisecond))

	types := func(events []*models.Event) []models.EventType {
		out := make([]models.EventType, 0, len(events))
		for _, e := range events {
			out = append(out, e.Type)
		}
		return out
	}

	page, err := repo.Query(ctx, EventQuery{MarkSet: "c1/m1"})
	require.NoError(t, err)
	assert.Equal(t, []models.EventType{
		models.EventTypeContextChanged,
		models.EventTypeTileLoaded,
		models.EventTypeCellWritten,
	}, types(page.Events))

	page, err = repo.Query(ctx, EventQuery{Types: []models.EventType{models.EventTypeTileLoaded, models.EventTypeCellWritten}, MarkSet: "c1/m1"})
	require.NoError(t, err)
	assert.Equal(t, []models.EventType{models.EventTypeTileLoaded, models.EventTypeCellWritten}, types(page.Events))

	since := base.Add(3 * time.Millisecond)
	page, err = repo.Query(ctx, EventQuery{Since: &since})
	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
}

func TestEventRepositoryPagination(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	defer database.Close()

	repo := NewEventRepository(database)
	base := time.Now().UTC()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, appendEvent(t, repo, models.EventTypeCellWritten, "c/m", base.Add(time.Duration(i)*time.Millisecond)).ID)
	}

	first, err := repo.Query(ctx, EventQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Events, 3)
	assert.Equal(t, ids[2], first.NextCursor)

	second, err := repo.Query(ctx, EventQuery{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	assert.Equal(t, ids[3], second.Events[0].ID)
	assert.Empty(t, second.NextCursor)
}
