// Package journal persists every committed settlement event as a durable,
// ordered record. The journal is the sole channel by which the off-chain
// orchestrator learns trade state without polling the engine.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"escrowd/core/events"
)

// Store appends events to a SQLite-backed log with a strictly increasing
// sequence number.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Record is one journal entry.
type Record struct {
	Seq        int64             `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Open creates or opens the journal database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if log == nil {
		log = slog.Default()
	}
	store := &Store{db: db, log: log}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := `CREATE TABLE IF NOT EXISTS events (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        type TEXT NOT NULL,
        attributes TEXT NOT NULL,
        recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("journal: init schema: %w", err)
	}
	return nil
}

// Append stores one event.
func (s *Store) Append(evt *events.Event) error {
	if evt == nil {
		return fmt.Errorf("journal: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("journal: encode attributes: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO events (type, attributes) VALUES (?, ?)`,
		evt.Type, string(attrs),
	); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Emit implements events.Emitter. Persistence failures are logged rather than
// propagated because emitters run inside committed transitions.
func (s *Store) Emit(evt *events.Event) {
	if err := s.Append(evt); err != nil {
		s.log.Error("journal append failed", "err", err)
	}
}

// After returns up to limit records with a sequence greater than seq, in
// order.
func (s *Store) After(seq int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT seq, type, attributes, recorded_at FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		seq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var (
			rec   Record
			attrs string
		)
		if err := rows.Scan(&rec.Seq, &rec.Type, &attrs, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("journal: decode attributes: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
