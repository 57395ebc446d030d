// database.go - Kern-Datenbank-Funktionen der Historie
// Enthält: database struct, newDatabase, Close, init, migrate

package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion definiert die aktuelle Datenbank-Schema-Version.
const currentSchemaVersion = 2

// database umhüllt die SQLite-Verbindung. SQLite serialisiert Schreiber
// selbst; WAL erlaubt Lesern, Schreiber nicht zu blockieren.
type database struct {
	conn *sql.DB
}

// newDatabase erstellt eine neue Datenbankverbindung
func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

// Close schließt die Datenbankverbindung
func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

// init legt das Schema in Version 1 an
func (db *database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT 1
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS samples (
		key TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		timesteps INTEGER NOT NULL,
		image BLOB,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (db *database) getSchemaVersion() (int, error) {
	var version int
	if err := db.conn.QueryRow("SELECT schema_version FROM meta WHERE id = 1").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// migrate führt Datenbank-Schema-Migrationen durch
func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// Index fuer die zeitlich sortierte Auflistung
			if err := db.migrateV1ToV2(); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		default:
			return fmt.Errorf("unknown schema version %d", version)
		}
	}
	return nil
}

func (db *database) migrateV1ToV2() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_samples_created_at ON samples(created_at)"); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE meta SET schema_version = 2 WHERE id = 1"); err != nil {
		return err
	}
	return tx.Commit()
}
