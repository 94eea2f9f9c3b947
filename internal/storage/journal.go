package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
)

// schemaVersion guards against opening a journal written by an
// incompatible build.
const schemaVersion = "1"

// Journal persists the durable event stream in SQLite, one row per
// stamped event. Trade, account and position events are journaled; bars
// and stream status are reconstructible from the broker and are not.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) the journal database with WAL mode enabled.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Single-writer durability without fsync-per-insert latency.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// KV table for schema version and recovery bookkeeping.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	// Event rows keyed by the session-stamped sequence number.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	j := &Journal{db: db}
	if err := j.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) checkSchema() error {
	var ver string
	err := j.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&ver)
	switch {
	case err == sql.ErrNoRows:
		_, err = j.db.Exec(
			"INSERT INTO metadata (key, value, updated_at) VALUES ('schema_version', ?, 0)",
			schemaVersion,
		)
		return err
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case ver != schemaVersion:
		return fmt.Errorf("journal schema version mismatch: have %s, want %s", ver, schemaVersion)
	}
	return nil
}

// Append stores one stamped event. The sequence number is the primary
// key, so double-appending the same event fails loudly.
func (j *Journal) Append(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (id, type, ts, payload) VALUES (?, ?, ?, ?)",
		ev.GetSeq(), ev.GetType(), ev.GetTs().UnixMicro(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// SetMeta saves a key-value pair to the metadata table.
func (j *Journal) SetMeta(ctx context.Context, key, value string, ts int64) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMeta retrieves a value from the metadata table. Missing keys return "".
func (j *Journal) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// LastSeq returns the highest stamped sequence number in the journal.
// Returns 0 if no events exist.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := j.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil // No events yet
	}
	return uint64(lastSeq.Int64), nil
}

// LoadFrom loads events with seq >= fromSeq in stamp order, reconstructing
// the concrete type per row. Rows of an unknown type are skipped: a newer
// build may have journaled kinds this one does not know.
func (j *Journal) LoadFrom(ctx context.Context, fromSeq uint64) ([]event.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, type, payload FROM events WHERE id >= ? ORDER BY id ASC",
		fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var id int64
		var evType int
		var payload []byte

		if err := rows.Scan(&id, &evType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev, err := decodeEvent(event.Type(evType), payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %d: %w", id, err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

func decodeEvent(t event.Type, payload []byte) (event.Event, error) {
	switch t {
	case event.EvTradeUpdate:
		var ev event.TradeUpdateEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case event.EvAccountUpdate:
		var ev event.AccountUpdateEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case event.EvPositions:
		var ev event.PositionsEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	default:
		return nil, nil
	}
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
