package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the SQLite database connection and operations
type DB struct {
	conn *sql.DB
	path string
}

// ProjectRecord is one entry of the saved project list. The slot of a
// project is its position in the list.
type ProjectRecord struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Path    string `json:"path"`
	Command string `json:"command"`
	Running bool   `json:"running"`
	Output  string `json:"output"`
}

// RunRecord represents one start or install run of a slot
type RunRecord struct {
	ID         string     `json:"id"`
	Slot       int        `json:"slot"`
	Kind       string     `json:"kind"` // "start", "install"
	Command    string     `json:"command"`
	WorkingDir string     `json:"working_dir"`
	PID        int        `json:"pid"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
}

// NewDB creates a new database connection
func NewDB(dataDir string) (*DB, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "devrunner.db")

	conn, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates the database schema
func (db *DB) initialize() error {
	schema := `
	-- Saved project list, position is the slot
	CREATE TABLE IF NOT EXISTS projects (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		command TEXT NOT NULL DEFAULT '',
		running BOOLEAN NOT NULL DEFAULT 0,
		output TEXT NOT NULL DEFAULT ''
	);

	-- Run history
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		slot INTEGER NOT NULL,
		kind TEXT NOT NULL,
		command TEXT NOT NULL,
		working_dir TEXT NOT NULL,
		pid INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_slot ON runs(slot);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// HealthCheck verifies the connection is usable
func (db *DB) HealthCheck() error {
	var one int
	if err := db.conn.QueryRow("SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Project operations

// ReplaceProjects overwrites the saved project list with projects
func (db *DB) ReplaceProjects(projects []ProjectRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM projects`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
	INSERT INTO projects (position, name, type, path, command, running, output)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range projects {
		if _, err := stmt.Exec(i, p.Name, p.Type, p.Path, p.Command, p.Running, p.Output); err != nil {
			return fmt.Errorf("failed to save project %q: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

// ListProjects returns the saved project list in slot order
func (db *DB) ListProjects() ([]ProjectRecord, error) {
	rows, err := db.conn.Query(`
	SELECT name, type, path, command, running, output
	FROM projects ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []ProjectRecord{}
	for rows.Next() {
		var p ProjectRecord
		if err := rows.Scan(&p.Name, &p.Type, &p.Path, &p.Command, &p.Running, &p.Output); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// Run operations

// RecordRunStart stores a new run
func (db *DB) RecordRunStart(runID string, slot int, kind, command, workingDir string, pid int, startedAt time.Time) error {
	query := `
	INSERT INTO runs (id, slot, kind, command, working_dir, pid, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query, runID, slot, kind, command, workingDir, pid, startedAt)
	return err
}

// RecordRunStop sets the stop time of a run
func (db *DB) RecordRunStop(runID string, stoppedAt time.Time) error {
	result, err := db.conn.Exec(`UPDATE runs SET stopped_at = ? WHERE id = ?`, stoppedAt, runID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// ListRuns returns runs newest first, optionally filtered by slot. A
// non-positive limit returns every match.
func (db *DB) ListRuns(slot *int, limit int) ([]*RunRecord, error) {
	query := `
	SELECT id, slot, kind, command, working_dir, pid, started_at, stopped_at
	FROM runs WHERE 1=1
	`

	var args []interface{}

	if slot != nil {
		query += " AND slot = ?"
		args = append(args, *slot)
	}

	query += " ORDER BY started_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord

	for rows.Next() {
		var run RunRecord
		var stoppedAt sql.NullTime

		err := rows.Scan(&run.ID, &run.Slot, &run.Kind, &run.Command, &run.WorkingDir,
			&run.PID, &run.StartedAt, &stoppedAt)
		if err != nil {
			return nil, err
		}

		if stoppedAt.Valid {
			t := stoppedAt.Time
			run.StoppedAt = &t
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// CloseOpenRuns marks every run without a stop time as stopped at t. Runs
// left open by a crashed server are closed this way on startup.
func (db *DB) CloseOpenRuns(t time.Time) (int64, error) {
	result, err := db.conn.Exec(`UPDATE runs SET stopped_at = ? WHERE stopped_at IS NULL`, t)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
