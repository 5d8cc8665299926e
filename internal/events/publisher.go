// Package events carries grid state changes from the coordinator to the
// aggregate recomputation hooks, the viewer and the persisted event log.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tOgg1/gradebook/internal/models"
)

// Publisher errors.
var (
	ErrInvalidSubscriptionID = errors.New("subscription ID is required")
	ErrNilHandler            = errors.New("handler cannot be nil")
	ErrSubscriptionExists    = errors.New("subscription with this ID already exists")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
)

// Publisher is what the coordinator needs to announce state changes.
type Publisher interface {
	Publish(ctx context.Context, event *models.Event)
}

// Repository persists published events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// New builds an event with a fresh ID and the given payload encoded as JSON.
func New(eventType models.EventType, entityType models.EntityType, entityID string, payload any) *models.Event {
	event := &models.Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}

// EventHandler is invoked synchronously for every matching event.
type EventHandler func(event *models.Event)

// Filter selects events for a subscription. Zero fields match everything.
type Filter struct {
	EventTypes []models.EventType

	// MarkSet limits delivery to one "class/mark set".
	MarkSet string
}

// Matches reports whether event passes the filter.
func (f Filter) Matches(event *models.Event) bool {
	if event == nil {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type) {
		return false
	}
	return f.MarkSet == "" || event.Metadata[models.MetadataMarkSet] == f.MarkSet
}

type subscription struct {
	id      string
	filter  Filter
	handler EventHandler
}

// InMemoryPublisher delivers events to in-process subscribers in the order
// they subscribed, optionally persisting each event first.
type InMemoryPublisher struct {
	mu     sync.RWMutex
	subs   []*subscription
	repo   Repository
	logger zerolog.Logger
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithRepository persists every published event before delivery.
func WithRepository(repo Repository) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.repo = repo
	}
}

// WithLogger sets the logger used to report persistence failures.
func WithLogger(logger zerolog.Logger) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.logger = logger
	}
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish persists event when a repository is configured and then hands it
// to every matching subscriber. A persistence failure is logged and does
// not stop delivery. Handlers run on the caller's goroutine, outside the
// publisher's lock, so they may subscribe or unsubscribe.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *models.Event) {
	if event == nil {
		return
	}

	if p.repo != nil {
		if err := p.repo.Create(ctx, event); err != nil {
			p.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("failed to persist event")
		}
	}

	p.mu.RLock()
	var handlers []EventHandler
	for _, sub := range p.subs {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// SubscribeFunc registers handler under a generated ID and returns it.
func (p *InMemoryPublisher) SubscribeFunc(filter Filter, handler EventHandler) (string, error) {
	id := uuid.New().String()
	if err := p.Subscribe(id, filter, handler); err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe registers handler under id.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler EventHandler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOf(id) >= 0 {
		return ErrSubscriptionExists
	}
	p.subs = append(p.subs, &subscription{id: id, filter: filter, handler: handler})
	return nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexOf(id)
	if i < 0 {
		return ErrSubscriptionNotFound
	}
	p.subs = slices.Delete(p.subs, i, i+1)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Close drops every subscription. Later events are still persisted.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = nil
}

func (p *InMemoryPublisher) indexOf(id string) int {
	return slices.IndexFunc(p.subs, func(s *subscription) bool { return s.id == id })
}
