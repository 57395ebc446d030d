// Modul: store.go
// Beschreibung: Historie abgeschlossener Sampling-Laeufe in SQLite.
// Enthaelt Record, Open, Add, List, Get, Delete.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound wird zurueckgegeben wenn kein Eintrag existiert
var ErrNotFound = errors.New("record not found")

// Modes of a history record.
const (
	ModeSession = "session"
	ModeRun     = "run"
)

// Record is one completed sample.
type Record struct {
	Key       string
	Mode      string
	Model     string
	Schedule  string
	Timesteps int
	Image     []byte // PNG
	CreatedAt time.Time
}

// Store persistiert Records. Sicher fuer gleichzeitige Nutzung.
type Store struct {
	db *database
}

// Open oeffnet oder erstellt die Datenbank unter path. Fehlende
// Verzeichnisse werden angelegt.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := newDatabase(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("history opened", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add speichert r. Ein leeres CreatedAt wird auf jetzt gesetzt.
func (s *Store) Add(r Record) error {
	if r.Key == "" {
		return errors.New("record key is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO samples (key, mode, model, schedule, timesteps, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			mode = excluded.mode,
			model = excluded.model,
			schedule = excluded.schedule,
			timesteps = excluded.timesteps,
			image = excluded.image,
			created_at = excluded.created_at
	`, r.Key, r.Mode, r.Model, r.Schedule, r.Timesteps, r.Image, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, withImage bool) (Record, error) {
	var r Record
	dest := []any{&r.Key, &r.Mode, &r.Model, &r.Schedule, &r.Timesteps, &r.CreatedAt}
	if withImage {
		dest = append(dest, &r.Image)
	}
	err := row.Scan(dest...)
	return r, err
}

// List gibt bis zu limit Records zurueck, neueste zuerst, ohne Bilddaten.
// limit <= 0 bedeutet alle.
func (s *Store) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.conn.Query(`
		SELECT key, mode, model, schedule, timesteps, created_at
		FROM samples
		ORDER BY created_at DESC, key
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get gibt den Record key mit Bilddaten zurueck.
func (s *Store) Get(key string) (*Record, error) {
	row := s.db.conn.QueryRow(`
		SELECT key, mode, model, schedule, timesteps, created_at, image
		FROM samples WHERE key = ?
	`, key)

	r, err := scanRecord(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	} else if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &r, nil
}

// Delete entfernt den Record key.
func (s *Store) Delete(key string) error {
	res, err := s.db.conn.Exec("DELETE FROM samples WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}
