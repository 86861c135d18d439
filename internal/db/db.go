// Package db persists the overlay catalog and tracking session history
// in sqlite. Schema lives in embedded golang-migrate migrations.
package db

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/overlay.studio/internal/overlay"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps the sqlite handle.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the database at path and applies pending
// migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: open %q: %w", path, err)
	}
	// modernc sqlite is single-writer; serialize access at the pool.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// migrateUp applies all pending embedded migrations. No-op when the
// schema is already current.
func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("db: load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("db: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("db: migrate instance: %w", err)
	}
	// Not closing m: it would close the shared DB connection.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("db: migration up failed: %w", err)
	}
	return nil
}

// UpsertOverlayConfig writes a catalog entry. The full config is stored
// as JSON with id/type denormalized for querying.
func (db *DB) UpsertOverlayConfig(cfg overlay.Config) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("db: marshal config %q: %w", cfg.ID, err)
	}
	_, err = db.Exec(`
		INSERT INTO overlay_configs (id, type, image_ref, config_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			image_ref = excluded.image_ref,
			config_json = excluded.config_json,
			updated_at = CURRENT_TIMESTAMP`,
		cfg.ID, string(cfg.Type), cfg.ImageRef, string(blob))
	if err != nil {
		return fmt.Errorf("db: upsert config %q: %w", cfg.ID, err)
	}
	return nil
}

// GetOverlayConfig loads one catalog entry by id.
func (db *DB) GetOverlayConfig(id string) (overlay.Config, error) {
	var blob string
	err := db.QueryRow(`SELECT config_json FROM overlay_configs WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return overlay.Config{}, fmt.Errorf("db: overlay config %q not found", id)
	}
	if err != nil {
		return overlay.Config{}, fmt.Errorf("db: get config %q: %w", id, err)
	}
	var cfg overlay.Config
	if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
		return overlay.Config{}, fmt.Errorf("db: unmarshal config %q: %w", id, err)
	}
	return cfg, nil
}

// ListOverlayConfigs returns the whole catalog ordered by id.
func (db *DB) ListOverlayConfigs() ([]overlay.Config, error) {
	rows, err := db.Query(`SELECT config_json FROM overlay_configs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db: list configs: %w", err)
	}
	defer rows.Close()

	var out []overlay.Config
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("db: scan config: %w", err)
		}
		var cfg overlay.Config
		if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
			return nil, fmt.Errorf("db: unmarshal config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// CreateSession records the start of an engine session.
func (db *DB) CreateSession(sessionID string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO tracking_sessions (session_id, started_ms) VALUES (?, ?)`,
		sessionID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("db: create session %q: %w", sessionID, err)
	}
	return nil
}

// EndSession stamps the session end time and frame total.
func (db *DB) EndSession(sessionID string, frames uint64) error {
	_, err := db.Exec(`UPDATE tracking_sessions SET ended_ms = ?, frames = ? WHERE session_id = ?`,
		time.Now().UnixMilli(), frames, sessionID)
	if err != nil {
		return fmt.Errorf("db: end session %q: %w", sessionID, err)
	}
	return nil
}

// InsertOverlayEvent records an add/remove/toggle/conflict/clear event
// for the session audit trail.
func (db *DB) InsertOverlayEvent(sessionID, event, overlayID, detail string) error {
	_, err := db.Exec(`
		INSERT INTO overlay_events (session_id, timestamp_ms, event, overlay_id, detail)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, time.Now().UnixMilli(), event, overlayID, detail)
	if err != nil {
		return fmt.Errorf("db: insert overlay event: %w", err)
	}
	return nil
}
