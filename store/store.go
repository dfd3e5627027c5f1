// Package store is the SQLite persistence layer of domshift: placement
// snapshots (mover.Persistence), named rule sets and an event log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domshift/dbopen"
	"github.com/hazyhaar/domshift/mover"
)

var _ mover.Persistence = (*Store)(nil)

// Store is the domshift database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// New wraps an already opened handle and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Save upserts the snapshot stored under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO snapshots (key, data, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		key, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot stored under key, or nil, nil.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	return data, nil
}

// DeleteSnapshot removes the snapshot stored under key.
func (s *Store) DeleteSnapshot(ctx context.Context, key string) error {
	_, err := dbopen.Exec(ctx, s.DB, `DELETE FROM snapshots WHERE key = ?`, key)
	return err
}
