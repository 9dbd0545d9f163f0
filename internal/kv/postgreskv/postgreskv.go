// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package postgreskv is a kv.Store backend on database/sql using
// github.com/lib/pq. put_batch runs as one read-committed transaction;
// range scans translate directly to a WHERE key >= $1 AND key < $2 ORDER BY
// key query, since btree-indexed bytea columns already sort by raw byte
// value. Expiry is a nullable expires_at column that Get and Scan filter on
// at read time; expired rows are not deleted by this package.
package postgreskv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"streamkeeper/internal/kv"
)

// Schema (reference):
//
// CREATE TABLE IF NOT EXISTS kv_entries (
//   key        BYTEA PRIMARY KEY,
//   value      BYTEA NOT NULL,
//   expires_at TIMESTAMPTZ
// );

// Store is a kv.Store backed by Postgres.
type Store struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// New wraps an existing *sql.DB. The caller owns the connection's lifecycle
// outside of Close.
func New(db *sql.DB) *Store {
	return &Store{db: db, defaultTimeout: 10 * time.Second}
}

var _ kv.Store = (*Store)(nil)

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.defaultTimeout)
}

// PutBatch upserts every entry inside one read-committed transaction.
func (s *Store) PutBatch(ctx context.Context, entries []kv.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return kv.ErrUnavailable(fmt.Errorf("postgreskv: begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		var expiresAt interface{}
		if e.TTL > 0 {
			expiresAt = time.Now().Add(e.TTL)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv_entries(key, value, expires_at) VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
			[]byte(e.Key), []byte(e.Value), expiresAt); err != nil {
			return kv.ErrUnavailable(fmt.Errorf("postgreskv: upsert key %x: %w", e.Key, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return kv.ErrUnavailable(fmt.Errorf("postgreskv: commit: %w", err))
	}
	return nil
}

// Get returns kv.ErrNotFound for a missing or expired key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, kv.ErrUnavailable(fmt.Errorf("postgreskv: get: %w", err))
	}
	return value, nil
}

// Scan runs a bounded, ordered range query. A nil Start/End maps to an open
// bound on that side.
func (s *Store) Scan(ctx context.Context, opts kv.ScanOptions) (kv.Iterator, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT key, value FROM kv_entries WHERE (expires_at IS NULL OR expires_at > now())`
	args := []interface{}{}
	argN := 1
	// A Backward scan starts at the high end: Start is the inclusive upper
	// bound and End the exclusive lower bound.
	startCond, endCond := " AND key >= $%d", " AND key < $%d"
	if opts.Direction == kv.Backward {
		startCond, endCond = " AND key <= $%d", " AND key > $%d"
	}
	if opts.Start != nil {
		query += fmt.Sprintf(startCond, argN)
		args = append(args, []byte(opts.Start))
		argN++
	}
	if opts.End != nil {
		query += fmt.Sprintf(endCond, argN)
		args = append(args, []byte(opts.End))
		argN++
	}
	if opts.Direction == kv.Backward {
		query += " ORDER BY key DESC"
	} else {
		query += " ORDER BY key ASC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, opts.Limit)
		argN++
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kv.ErrUnavailable(fmt.Errorf("postgreskv: scan: %w", err))
	}
	return &rowsIterator{rows: rows}, nil
}

// Close closes the underlying *sql.DB.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowsIterator struct {
	rows    *sql.Rows
	current kv.Pair
	err     error
}

func (it *rowsIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	var key, value []byte
	if err := it.rows.Scan(&key, &value); err != nil {
		it.err = kv.ErrUnavailable(fmt.Errorf("postgreskv: scan row: %w", err))
		return false
	}
	it.current = kv.Pair{Key: key, Value: value}
	return true
}

func (it *rowsIterator) Pair() kv.Pair { return it.current }
func (it *rowsIterator) Err() error    { return it.err }
func (it *rowsIterator) Close() error  { return it.rows.Close() }
