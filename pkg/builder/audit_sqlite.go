package builder

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteAuditStore persists build audit events in SQLite.
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore creates a SQLite-backed audit store and ensures schema.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureBuildAuditSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteAuditStore{db: db}, nil
}

// OpenSQLiteAuditStore opens dsn with the modernc driver.
func OpenSQLiteAuditStore(dsn string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

// Record stores a single audit event.
func (s *SQLiteAuditStore) Record(ctx context.Context, event AuditEvent) error {
	skipped, err := encodeSkipped(event.Skipped)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO build_audit_events (
			build_id, graph_id, mode, base, model_key, status, nodes, edges,
			skipped_json, error_text, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.BuildID,
		event.GraphID,
		event.Mode,
		event.Base,
		event.Model,
		event.Status,
		event.Nodes,
		event.Edges,
		string(skipped),
		event.Error,
		normalizeAuditTime(event.StartedAt),
		normalizeAuditTime(event.FinishedAt),
	)
	return err
}

// List returns audit events matching the filter, oldest first.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT build_id, graph_id, mode, base, model_key, status, nodes, edges,
			skipped_json, error_text, started_at, finished_at
		FROM build_audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.BuildID != "" {
		addFilter("build_id = ?", filter.BuildID)
	}
	if filter.Model != "" {
		addFilter("model_key = ?", filter.Model)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY started_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			event       AuditEvent
			skippedJSON string
			started     sql.NullTime
			finished    sql.NullTime
		)
		if err := rows.Scan(
			&event.BuildID,
			&event.GraphID,
			&event.Mode,
			&event.Base,
			&event.Model,
			&event.Status,
			&event.Nodes,
			&event.Edges,
			&skippedJSON,
			&event.Error,
			&started,
			&finished,
		); err != nil {
			return nil, err
		}
		if skipped, err := decodeSkipped([]byte(skippedJSON)); err == nil {
			event.Skipped = skipped
		}
		if started.Valid {
			event.StartedAt = started.Time
		}
		if finished.Valid {
			event.FinishedAt = finished.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureBuildAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS build_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			build_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			mode TEXT,
			base TEXT,
			model_key TEXT,
			status TEXT NOT NULL,
			nodes INTEGER NOT NULL DEFAULT 0,
			edges INTEGER NOT NULL DEFAULT 0,
			skipped_json TEXT,
			error_text TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_build_audit_build ON build_audit_events(build_id);
		CREATE INDEX IF NOT EXISTS idx_build_audit_model ON build_audit_events(model_key);
		CREATE INDEX IF NOT EXISTS idx_build_audit_status ON build_audit_events(status);
	`)
	return err
}
