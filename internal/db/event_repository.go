package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tOgg1/gradebook/internal/models"
)

// eventTimeFormat is fixed-width so stored timestamps sort lexically.
const eventTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const defaultEventPageSize = 100

const eventColumns = `id, timestamp, type, entity_type, entity_id, payload_json, metadata_json`

// EventRepository persists the grid event log. Events are append-only and
// read back in (timestamp, id) order.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery selects a page of the event log. Zero fields do not filter.
type EventQuery struct {
	Types   []models.EventType
	MarkSet string     // "class/mark set" as carried in event metadata
	Since   *time.Time // inclusive
	Cursor  string     // ID of the last event of the previous page
	Limit   int
}

// EventPage is one page of the event log. NextCursor is empty on the last
// page.
type EventPage struct {
	Events     []*models.Event
	NextCursor string
}

// Create appends event to the log, assigning an ID and timestamp when
// missing. The mark set is lifted out of the metadata into its own column.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event == nil || event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.EntityType == "" {
		return fmt.Errorf("event entity type is required")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()

	var payload, metadata sql.NullString
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, type, entity_type, entity_id, mark_set, payload_json, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.Format(eventTimeFormat),
		string(event.Type),
		string(event.EntityType),
		event.EntityID,
		event.Metadata[models.MetadataMarkSet],
		payload,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Query returns the page of events after q.Cursor that match q.
func (r *EventRepository) Query(ctx context.Context, q EventQuery) (*EventPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}

	var where []string
	var args []any
	if len(q.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(q.Types))+")")
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	if q.MarkSet != "" {
		where = append(where, "mark_set = ?")
		args = append(args, q.MarkSet)
	}
	if q.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(eventTimeFormat))
	}
	if q.Cursor != "" {
		where = append(where, "(timestamp, id) > (SELECT timestamp, id FROM events WHERE id = ?)")
		args = append(args, q.Cursor)
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// One extra row tells us whether there is a next page.
	query += " ORDER BY timestamp, id LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	page := &EventPage{}
	for rows.Next() {
		event, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	if len(page.Events) > limit {
		page.Events = page.Events[:limit]
		page.NextCursor = page.Events[limit-1].ID
	}
	return page, nil
}

func (r *EventRepository) scan(rows *sql.Rows) (*models.Event, error) {
	var event models.Event
	var timestamp, eventType, entityType string
	var payload, metadata sql.NullString

	if err := rows.Scan(&event.ID, &timestamp, &eventType, &entityType, &event.EntityID, &payload, &metadata); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Type = models.EventType(eventType)
	event.EntityType = models.EntityType(entityType)
	ts, err := time.Parse(eventTimeFormat, timestamp)
	if err != nil {
		return nil, fmt.Errorf("event %s has a malformed timestamp: %w", event.ID, err)
	}
	event.Timestamp = ts
	if payload.Valid {
		event.Payload = json.RawMessage(payload.String)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			r.db.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to parse event metadata")
		}
	}
	return &event, nil
}
