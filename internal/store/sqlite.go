package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"planner/internal/model"
)

// SQLiteStore keeps one row per series. Save rewrites the table inside a
// transaction so the list is always replaced as a whole.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			position INTEGER NOT NULL,
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			priority TEXT NOT NULL,
			reminder_minutes INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			recurrence TEXT,
			completed_instances TEXT
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, start_at, end_at, priority,
		       reminder_minutes, completed, recurrence, completed_instances
		FROM tasks ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		var (
			t                model.Task
			startAt, endAt   string
			priority         string
			completed        int
			recurrence, done sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &startAt, &endAt, &priority,
			&t.ReminderMinutes, &completed, &recurrence, &done); err != nil {
			return nil, err
		}

		if t.Start, err = time.Parse(time.RFC3339Nano, startAt); err != nil {
			return nil, fmt.Errorf("task %s: start: %w", t.ID, err)
		}
		if t.End, err = time.Parse(time.RFC3339Nano, endAt); err != nil {
			return nil, fmt.Errorf("task %s: end: %w", t.ID, err)
		}
		t.Priority = model.Priority(priority)
		t.Completed = completed != 0

		if recurrence.Valid && recurrence.String != "" {
			var r model.Recurrence
			if err := json.Unmarshal([]byte(recurrence.String), &r); err != nil {
				return nil, fmt.Errorf("task %s: recurrence: %w", t.ID, err)
			}
			t.Recurrence = &r
		}
		if done.Valid && done.String != "" {
			if err := json.Unmarshal([]byte(done.String), &t.CompletedInstances); err != nil {
				return nil, fmt.Errorf("task %s: completed instances: %w", t.ID, err)
			}
		}

		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, tasks []model.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (position, id, title, description, start_at, end_at, priority,
		                   reminder_minutes, completed, recurrence, completed_instances)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tasks {
		var recurrence, done sql.NullString
		if t.Recurrence != nil {
			b, err := json.Marshal(t.Recurrence)
			if err != nil {
				return err
			}
			recurrence = sql.NullString{String: string(b), Valid: true}
		}
		if len(t.CompletedInstances) > 0 {
			b, err := json.Marshal(t.CompletedInstances)
			if err != nil {
				return err
			}
			done = sql.NullString{String: string(b), Valid: true}
		}

		completed := 0
		if t.Completed {
			completed = 1
		}

		if _, err := stmt.ExecContext(ctx, i, t.ID, t.Title, t.Description,
			t.Start.Format(time.RFC3339Nano), t.End.Format(time.RFC3339Nano),
			string(t.Priority), t.ReminderMinutes, completed, recurrence, done); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
