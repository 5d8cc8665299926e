// Package cli provides event streaming for history --follow.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tOgg1/gradebook/internal/db"
	"github.com/tOgg1/gradebook/internal/logging"
	"github.com/tOgg1/gradebook/internal/models"
)

// StreamConfig configures event streaming behavior.
type StreamConfig struct {
	// PollInterval is how often to check for new events.
	PollInterval time.Duration

	// EventTypes filters to specific event types (nil = all).
	EventTypes []models.EventType

	// MarkSet filters to events of one mark set (empty = all).
	MarkSet string

	// Since streams events at or after this timestamp. Nil starts from now.
	Since *time.Time

	// BatchSize is the max events per poll.
	BatchSize int
}

// DefaultStreamConfig returns sensible defaults for streaming.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
	}
}

// EventStreamer streams events to an output writer in JSONL format.
type EventStreamer struct {
	repo   *db.EventRepository
	out    io.Writer
	config StreamConfig
}

// NewEventStreamer creates a new event streamer.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval == 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	return &EventStreamer{
		repo:   repo,
		out:    out,
		config: config,
	}
}

// Stream writes matching events as JSON Lines until ctx is cancelled.
// Cancellation is a normal stop and returns nil.
func (s *EventStreamer) Stream(ctx context.Context) error {
	logger := logging.Component("history")

	since := s.config.Since
	if since == nil {
		now := time.Now().UTC()
		since = &now
	}
	var cursor string

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	logger.Debug().
		Dur("poll_interval", s.config.PollInterval).
		Str("mark_set", s.config.MarkSet).
		Msg("following event log")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		batch, next, err := s.poll(ctx, cursor, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to poll events: %w", err)
		}
		for _, event := range batch {
			if err := s.writeEvent(event); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
		if next != "" {
			// The cursor alone orders the rest of the log.
			cursor, since = next, nil
		}
	}
}

// poll fetches the next batch of matching events and the cursor to resume
// from.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	page, err := s.repo.Query(ctx, db.EventQuery{
		Types:   s.config.EventTypes,
		MarkSet: s.config.MarkSet,
		Since:   since,
		Cursor:  cursor,
		Limit:   s.config.BatchSize,
	})
	if err != nil {
		return nil, "", err
	}

	next := page.NextCursor
	if next == "" && len(page.Events) > 0 {
		next = page.Events[len(page.Events)-1].ID
	}
	return page.Events, next, nil
}

// writeEvent writes a single event as JSONL.
func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, string(data))
	return err
}

// ParseSince parses a --since value: a duration back from now (with a "d"
// suffix for days), an RFC3339 timestamp, a date, or a local date and time.
// An empty value means no bound.
func ParseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if d, err := parseDurationWithDays(value); err == nil {
		t := time.Now().UTC().Add(-d)
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("invalid time %q (use a duration like 1h or 7d, or a timestamp like 2006-01-02T15:04:05Z)", value)
}

func parseDurationWithDays(value string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(value)
}
