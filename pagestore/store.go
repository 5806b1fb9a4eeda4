// Package pagestore persists per-domain capture records in SQLite.
//
// Each domain maps to a single record keyed "capture_<domain>". Flushed
// batches are merged into the record with a read-modify-write cycle
// inside one transaction: read the stored record, append the new
// events, evict oldest past the cap, write the whole record back.
package pagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/dbopen"
)

// DefaultMaxEvents caps stored events per domain. Oldest events are
// evicted first once the cap is reached.
const DefaultMaxEvents = 1500

const keyPrefix = "capture_"

// Schema contains the DDL for the page store.
const Schema = `
CREATE TABLE IF NOT EXISTS page_captures (
    key        TEXT PRIMARY KEY,
    domain     TEXT NOT NULL,
    record     TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_domain ON page_captures(domain);
CREATE INDEX IF NOT EXISTS idx_captures_updated ON page_captures(updated_at DESC);
`

// Record is the stored capture state for one domain.
type Record struct {
	Domain        string           `json:"domain"`
	SessionID     string           `json:"session_id"`
	PageURL       string           `json:"page_url,omitempty"`
	StartedAt     int64            `json:"started_at"`
	LastFlushedAt int64            `json:"last_flushed_at"`
	IsLive        bool             `json:"is_live"`
	Evicted       int              `json:"evicted,omitempty"`
	Events        []event.Captured `json:"events"`
}

// Store is the page capture database handle.
type Store struct {
	DB        *sql.DB
	maxEvents int
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEvents overrides the per-domain event cap.
func WithMaxEvents(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// Open opens (or creates) the page store SQLite database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open: %w", err)
	}
	return newStore(db, opts...), nil
}

// New wraps an already-open database, applying the schema. Used by
// tests and embedders that share a connection.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("pagestore: apply schema: %w", err)
	}
	return newStore(db, opts...), nil
}

func newStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, maxEvents: DefaultMaxEvents, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Merge folds a flushed batch into the domain's record. A missing
// record is initialised from the batch. A batch carrying a different
// session than the stored record replaces the record wholesale: the
// page was reloaded and the old session's events no longer accumulate.
func (s *Store) Merge(ctx context.Context, batch event.Batch) error {
	if batch.Domain == "" {
		return errors.New("pagestore: merge: batch has no domain")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pagestore: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	rec, err := readRecord(ctx, tx, key(batch.Domain))
	if err != nil {
		return err
	}

	switch {
	case rec == nil:
		rec = &Record{
			Domain:    batch.Domain,
			SessionID: batch.SessionID,
			StartedAt: now,
			IsLive:    true,
		}
	case rec.SessionID != batch.SessionID:
		rec = &Record{
			Domain:    batch.Domain,
			SessionID: batch.SessionID,
			PageURL:   rec.PageURL,
			StartedAt: now,
			IsLive:    true,
		}
	}

	rec.Events = append(rec.Events, batch.Events...)
	if over := len(rec.Events) - s.maxEvents; over > 0 {
		rec.Events = rec.Events[over:]
		rec.Evicted += over
	}
	rec.LastFlushedAt = now
	// A flush is proof of life: a session marked ended can resume
	// producing (in-tab navigation re-injects the instrumentation).
	rec.IsLive = true

	if err := writeRecord(ctx, tx, rec, now); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkEnded flags the domain's record as no longer live. Missing
// records are a no-op.
func (s *Store) MarkEnded(ctx context.Context, domain string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pagestore: begin: %w", err)
	}
	defer tx.Rollback()

	rec, err := readRecord(ctx, tx, key(domain))
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.IsLive = false

	if err := writeRecord(ctx, tx, rec, s.now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the record for a domain, or nil when none exists.
func (s *Store) Get(ctx context.Context, domain string) (*Record, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx,
		`SELECT record FROM page_captures WHERE key = ?`, key(domain)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pagestore: get %s: %w", domain, err)
	}
	return decodeRecord(raw)
}

// Summary is a listable view of a record without its events.
type Summary struct {
	Domain        string `json:"domain"`
	SessionID     string `json:"session_id"`
	StartedAt     int64  `json:"started_at"`
	LastFlushedAt int64  `json:"last_flushed_at"`
	IsLive        bool   `json:"is_live"`
	EventCount    int    `json:"event_count"`
	Evicted       int    `json:"evicted,omitempty"`
}

// List returns summaries for all captured domains, most recently
// flushed first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT record FROM page_captures ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("pagestore: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			Domain:        rec.Domain,
			SessionID:     rec.SessionID,
			StartedAt:     rec.StartedAt,
			LastFlushedAt: rec.LastFlushedAt,
			IsLive:        rec.IsLive,
			EventCount:    len(rec.Events),
			Evicted:       rec.Evicted,
		})
	}
	return out, rows.Err()
}

// Delete removes a domain's record. Missing records are a no-op.
func (s *Store) Delete(ctx context.Context, domain string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM page_captures WHERE key = ?`, key(domain))
	if err != nil {
		return fmt.Errorf("pagestore: delete %s: %w", domain, err)
	}
	return nil
}

func key(domain string) string {
	return keyPrefix + domain
}

func readRecord(ctx context.Context, tx *sql.Tx, k string) (*Record, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT record FROM page_captures WHERE key = ?`, k).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pagestore: read %s: %w", k, err)
	}
	return decodeRecord(raw)
}

func writeRecord(ctx context.Context, tx *sql.Tx, rec *Record, now int64) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pagestore: encode %s: %w", rec.Domain, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO page_captures (key, domain, record, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at`,
		key(rec.Domain), rec.Domain, string(raw), now)
	if err != nil {
		return fmt.Errorf("pagestore: write %s: %w", rec.Domain, err)
	}
	return nil
}

func decodeRecord(raw string) (*Record, error) {
	rec := &Record{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, fmt.Errorf("pagestore: decode record: %w", err)
	}
	return rec, nil
}
