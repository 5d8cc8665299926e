package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy bounds how often a write transaction is re-run while SQLite
// reports the database busy. Backoff doubles per attempt up to MaxBackoff.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy suits a single local writer competing with the event
// log and an occasional second CLI process.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   4,
		Backoff:    25 * time.Millisecond,
		MaxBackoff: 400 * time.Millisecond,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = max(def.MaxBackoff, p.Backoff)
	}
	return p
}

// SetRetryPolicy replaces the policy used by WriteTx.
func (db *DB) SetRetryPolicy(p RetryPolicy) {
	db.retry = p.normalized()
}

// WriteTx runs fn in a transaction, re-running the whole transaction when
// SQLite reports SQLITE_BUSY or SQLITE_LOCKED. fn must be safe to repeat.
func (db *DB) WriteTx(ctx context.Context, fn func(*sql.Tx) error) error {
	attempt := 0
	return db.retry.normalized().run(ctx, func() error {
		attempt++
		err := db.Transaction(ctx, fn)
		if err != nil && isBusy(err) {
			db.logger.Debug().Err(err).Int("attempt", attempt).Msg("database busy, retrying write")
		}
		return err
	})
}

func (p RetryPolicy) run(ctx context.Context, fn func() error) error {
	backoff := p.Backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil || !isBusy(err) || attempt >= p.Attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, p.MaxBackoff)
	}
}

func isBusy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy")
}
