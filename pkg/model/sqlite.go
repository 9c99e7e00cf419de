// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the model registry in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and ensures the registry schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureModelSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStore opens the database at dsn with the modernc driver.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a descriptor.
func (s *SQLiteStore) Upsert(ctx context.Context, d Descriptor) error {
	if err := validateDescriptor(d); err != nil {
		return err
	}
	var caps sql.NullString
	if d.Capabilities != nil {
		raw, err := json.Marshal(d.Capabilities)
		if err != nil {
			return err
		}
		caps = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (model_key, hash, name, base, type, description, capabilities_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_key) DO UPDATE SET
			hash = excluded.hash,
			name = excluded.name,
			base = excluded.base,
			type = excluded.type,
			description = excluded.description,
			capabilities_json = excluded.capabilities_json
	`,
		d.Key,
		d.Hash,
		d.Name,
		string(d.Base),
		string(d.Type),
		d.Description,
		caps,
	)
	return err
}

// Resolve looks a descriptor up by key.
func (s *SQLiteStore) Resolve(ctx context.Context, key string) (Descriptor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT model_key, hash, name, base, type, description, capabilities_json
		FROM models WHERE model_key = ?
	`, key)
	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Descriptor{}, NotFound(key)
	}
	return d, err
}

// List returns descriptors ordered by key, optionally restricted to a base.
func (s *SQLiteStore) List(ctx context.Context, base BaseModel) ([]Descriptor, error) {
	query := `
		SELECT model_key, hash, name, base, type, description, capabilities_json
		FROM models
	`
	var args []any
	if base != "" {
		query += " WHERE base = ?"
		args = append(args, string(base))
	}
	query += " ORDER BY model_key ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row scanner) (Descriptor, error) {
	var (
		d          Descriptor
		base, typ  string
		hash, name sql.NullString
		desc, caps sql.NullString
	)
	if err := row.Scan(&d.Key, &hash, &name, &base, &typ, &desc, &caps); err != nil {
		return Descriptor{}, err
	}
	d.Hash = hash.String
	d.Name = name.String
	d.Base = BaseModel(base)
	d.Type = Type(typ)
	d.Description = desc.String
	if caps.Valid && caps.String != "" {
		var c Capabilities
		if err := json.Unmarshal([]byte(caps.String), &c); err != nil {
			return Descriptor{}, fmt.Errorf("decode capabilities of %q: %w", d.Key, err)
		}
		d.Capabilities = &c
	}
	return d, nil
}

func ensureModelSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS models (
			model_key TEXT PRIMARY KEY,
			hash TEXT,
			name TEXT,
			base TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			capabilities_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_models_base ON models(base);
	`)
	return err
}
