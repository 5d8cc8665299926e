package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes grid events.
type EventType string

const (
	// Context events
	EventTypeContextChanged EventType = "grid.context_changed"

	// Read path
	EventTypeTileLoaded EventType = "grid.tile_loaded"
	EventTypeTileFailed EventType = "grid.tile_failed"

	// Write path
	EventTypeCellWritten           EventType = "grid.cell_written"
	EventTypeCellWriteFailed       EventType = "grid.cell_write_failed"
	EventTypeBulkApplied           EventType = "grid.bulk_applied"
	EventTypeAggregatesInvalidated EventType = "grid.aggregates_invalidated"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeMarkSet EntityType = "mark_set"
	EntityTypeTile    EntityType = "tile"
	EntityTypeCell    EntityType = "cell"
)

// MetadataMarkSet is the metadata key carrying the "class/mark set" an
// event belongs to. The event log indexes it.
const MetadataMarkSet = "mark_set"

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ContextChangedPayload is the payload for grid.context_changed events.
type ContextChangedPayload struct {
	Generation uint64     `json:"generation"`
	Ref        MarkSetRef `json:"ref"`
	Dims       Dims       `json:"dims"`
}

// TilePayload is the payload for tile events.
type TilePayload struct {
	Window Window `json:"window"`
	Error  string `json:"error,omitempty"`
}

// CellWrittenPayload is the payload for single-cell write events.
type CellWrittenPayload struct {
	Edit    CellEdit `json:"edit"`
	Outcome string   `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// BulkAppliedPayload is the payload for grid.bulk_applied events.
type BulkAppliedPayload struct {
	Applied  int             `json:"applied"`
	Rejected int             `json:"rejected"`
	Errors   []CellRejection `json:"errors,omitempty"`
}

// AggregatesInvalidatedPayload lists the rows and columns whose averages
// need recomputation.
type AggregatesInvalidatedPayload struct {
	Rows []int `json:"rows"`
	Cols []int `json:"cols"`
}
