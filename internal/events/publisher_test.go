package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tOgg1/gradebook/internal/models"
)

func gridEvent(eventType models.EventType, markSet string) *models.Event {
	event := New(eventType, models.EntityTypeTile, "0:0", nil)
	if markSet != "" {
		event.Metadata = map[string]string{models.MetadataMarkSet: markSet}
	}
	return event
}

func TestFilterMatches(t *testing.T) {
	loaded := gridEvent(models.EventTypeTileLoaded, "c1/m1")

	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{name: "empty filter", filter: Filter{}, event: loaded, want: true},
		{name: "nil event", filter: Filter{}, event: nil, want: false},
		{name: "type listed", filter: Filter{EventTypes: []models.EventType{models.EventTypeTileFailed, models.EventTypeTileLoaded}}, event: loaded, want: true},
		{name: "type not listed", filter: Filter{EventTypes: []models.EventType{models.EventTypeCellWritten}}, event: loaded, want: false},
		{name: "same mark set", filter: Filter{MarkSet: "c1/m1"}, event: loaded, want: true},
		{name: "other mark set", filter: Filter{MarkSet: "c1/m2"}, event: loaded, want: false},
		{name: "event without mark set", filter: Filter{MarkSet: "c1/m1"}, event: gridEvent(models.EventTypeTileLoaded, ""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.event))
		})
	}
}

func TestNew(t *testing.T) {
	event := New(models.EventTypeAggregatesInvalidated, models.EntityTypeMarkSet, "c1/m1",
		models.AggregatesInvalidatedPayload{Rows: []int{3}, Cols: []int{1, 2}})
	require.NotEmpty(t, event.ID)
	require.False(t, event.Timestamp.IsZero())

	var payload models.AggregatesInvalidatedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, []int{3}, payload.Rows)
	assert.Equal(t, []int{1, 2}, payload.Cols)

	assert.Nil(t, New(models.EventTypeTileLoaded, models.EntityTypeTile, "0:0", nil).Payload)
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	pub := NewInMemoryPublisher()

	var order []string
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, pub.Subscribe(id, Filter{}, func(*models.Event) { order = append(order, id) }))
	}
	require.NoError(t, pub.Unsubscribe("second"))

	pub.Publish(context.Background(), gridEvent(models.EventTypeTileLoaded, ""))
	assert.Equal(t, []string{"first", "third"}, order)
	assert.Equal(t, 2, pub.SubscriberCount())
}

func TestPublishFiltersByMarkSet(t *testing.T) {
	pub := NewInMemoryPublisher()

	var received []models.EventType
	_, err := pub.SubscribeFunc(Filter{MarkSet: "c1/m1"}, func(e *models.Event) {
		received = append(received, e.Type)
	})
	require.NoError(t, err)

	ctx := context.Background()
	pub.Publish(ctx, gridEvent(models.EventTypeTileLoaded, "c1/m1"))
	pub.Publish(ctx, gridEvent(models.EventTypeTileLoaded, "c1/m2"))
	pub.Publish(ctx, gridEvent(models.EventTypeCellWritten, "c1/m1"))
	pub.Publish(ctx, nil)

	assert.Equal(t, []models.EventType{models.EventTypeTileLoaded, models.EventTypeCellWritten}, received)
}

func TestSubscribeErrors(t *testing.T) {
	pub := NewInMemoryPublisher()
	handler := func(*models.Event) {}

	assert.ErrorIs(t, pub.Subscribe("", Filter{}, handler), ErrInvalidSubscriptionID)
	assert.ErrorIs(t, pub.Subscribe("a", Filter{}, nil), ErrNilHandler)
	require.NoError(t, pub.Subscribe("a", Filter{}, handler))
	assert.ErrorIs(t, pub.Subscribe("a", Filter{}, handler), ErrSubscriptionExists)
	assert.ErrorIs(t, pub.Unsubscribe("missing"), ErrSubscriptionNotFound)
}

func TestHandlerMayUnsubscribeItself(t *testing.T) {
	pub := NewInMemoryPublisher()

	calls := 0
	var id string
	id, err := pub.SubscribeFunc(Filter{}, func(*models.Event) {
		calls++
		require.NoError(t, pub.Unsubscribe(id))
	})
	require.NoError(t, err)

	pub.Publish(context.Background(), gridEvent(models.EventTypeTileLoaded, ""))
	pub.Publish(context.Background(), gridEvent(models.EventTypeTileLoaded, ""))
	assert.Equal(t, 1, calls)
}

func TestCloseDropsSubscribersButKeepsPersisting(t *testing.T) {
	repo := &memoryRepository{}
	pub := NewInMemoryPublisher(WithRepository(repo))

	delivered := 0
	_, err := pub.SubscribeFunc(Filter{}, func(*models.Event) { delivered++ })
	require.NoError(t, err)

	pub.Close()
	pub.Publish(context.Background(), gridEvent(models.EventTypeBulkApplied, "c1/m1"))

	assert.Zero(t, delivered)
	assert.Zero(t, pub.SubscriberCount())
	assert.Len(t, repo.events(), 1)
}

func TestPublishConcurrentSubscribers(t *testing.T) {
	pub := NewInMemoryPublisher()

	var mu sync.Mutex
	delivered := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, err := pub.SubscribeFunc(Filter{}, func(*models.Event) {
				mu.Lock()
				delivered++
				mu.Unlock()
			})
			if err == nil {
				_ = pub.Unsubscribe(id)
			}
		}()
		go func() {
			defer wg.Done()
			pub.Publish(context.Background(), gridEvent(models.EventTypeTileLoaded, ""))
		}()
	}
	wg.Wait()
	assert.Zero(t, pub.SubscriberCount())
}

type memoryRepository struct {
	mu   sync.Mutex
	all  []*models.Event
	fail error
}

func (m *memoryRepository) Create(ctx context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.all = append(m.all, event)
	return nil
}

func (m *memoryRepository) events() []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Event(nil), m.all...)
}

func TestPublishPersistsBeforeDelivery(t *testing.T) {
	repo := &memoryRepository{}
	pub := NewInMemoryPublisher(WithRepository(repo))

	var persistedAtDelivery int
	_, err := pub.SubscribeFunc(Filter{}, func(*models.Event) {
		persistedAtDelivery = len(repo.events())
	})
	require.NoError(t, err)

	pub.Publish(context.Background(), gridEvent(models.EventTypeCellWritten, "c1/m1"))
	assert.Equal(t, 1, persistedAtDelivery)
}

func TestPersistenceFailureStillDelivers(t *testing.T) {
	repo := &memoryRepository{fail: errors.New("disk full")}
	pub := NewInMemoryPublisher(WithRepository(repo))

	delivered := false
	_, err := pub.SubscribeFunc(Filter{}, func(*models.Event) { delivered = true })
	require.NoError(t, err)

	pub.Publish(context.Background(), gridEvent(models.EventTypeCellWritten, "c1/m1"))
	assert.True(t, delivered)
	assert.Empty(t, repo.events())
}
