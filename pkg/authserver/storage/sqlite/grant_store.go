// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/storage"
)

// GrantStore implements storage.GrantStore using SQLite.
type GrantStore struct {
	wrapper *DB
	db      *sql.DB
	clock   clock.PassiveClock
}

// GrantStoreOption configures a GrantStore.
type GrantStoreOption func(*GrantStore)

// WithClock sets the clock used for expiry decisions.
func WithClock(clk clock.PassiveClock) GrantStoreOption {
	return func(s *GrantStore) {
		s.clock = clk
	}
}

// NewGrantStore creates a new SQLite-backed GrantStore.
func NewGrantStore(db *DB, opts ...GrantStoreOption) *GrantStore {
	s := &GrantStore{wrapper: db, db: db.DB(), clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenGrantStore opens the database at path and returns a store over it.
// Closing the store closes the database.
func OpenGrantStore(ctx context.Context, path string, opts ...GrantStoreOption) (*GrantStore, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewGrantStore(db, opts...), nil
}

var _ storage.GrantStore = (*GrantStore)(nil)

// grantColumns is the column list shared by every SELECT and RETURNING clause.
const grantColumns = `key, type, client_id, subject_id, session_id, creation_time, expiration, data`

// Close closes the underlying database connection.
func (s *GrantStore) Close() error {
	return s.wrapper.Close()
}

// Health pings the database.
func (s *GrantStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store upserts the grant.
func (s *GrantStore) Store(ctx context.Context, grant *storage.PersistedGrant) error {
	if err := grant.Validate(); err != nil {
		return err
	}

	var expiration sql.NullInt64
	if grant.Expiration != nil {
		expiration = sql.NullInt64{Int64: grant.Expiration.UnixNano(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persisted_grants (`+grantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key, type) DO UPDATE SET
			client_id = excluded.client_id,
			subject_id = excluded.subject_id,
			session_id = excluded.session_id,
			creation_time = excluded.creation_time,
			expiration = excluded.expiration,
			data = excluded.data`,
		grant.Key,
		string(grant.Type),
		grant.ClientID,
		grant.SubjectID,
		grant.SessionID,
		grant.CreationTime.UnixNano(),
		expiration,
		grant.Data,
	)
	if err != nil {
		return fmt.Errorf("storing grant: %w", err)
	}
	return nil
}

// Get returns the live grant stored under key and grantType.
func (s *GrantStore) Get(ctx context.Context, key string, grantType storage.GrantType) (*storage.PersistedGrant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM persisted_grants
		WHERE key = ? AND type = ? AND (expiration IS NULL OR expiration >= ?)`,
		key, string(grantType), s.clock.Now().UnixNano(),
	)
	grant, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, grantType)
	}
	if err != nil {
		return nil, fmt.Errorf("getting grant: %w", err)
	}
	return grant, nil
}

// Take deletes the row and returns it in a single statement, so concurrent
// callers cannot both observe it.
func (s *GrantStore) Take(ctx context.Context, key string, grantType storage.GrantType) (*storage.PersistedGrant, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM persisted_grants WHERE key = ? AND type = ? RETURNING `+grantColumns,
		key, string(grantType),
	)
	grant, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, grantType)
	}
	if err != nil {
		return nil, fmt.Errorf("taking grant: %w", err)
	}
	if grant.IsExpired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, grantType)
	}
	return grant, nil
}

// Remove deletes the grant if present.
func (s *GrantStore) Remove(ctx context.Context, key string, grantType storage.GrantType) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM persisted_grants WHERE key = ? AND type = ?`, key, string(grantType),
	); err != nil {
		return fmt.Errorf("removing grant: %w", err)
	}
	return nil
}

// GetAll returns the live grants matching filter.
func (s *GrantStore) GetAll(ctx context.Context, filter storage.Filter) ([]*storage.PersistedGrant, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	where, args := filterClause(filter)
	where += " AND (expiration IS NULL OR expiration >= ?)"
	args = append(args, s.clock.Now().UnixNano())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM persisted_grants WHERE `+where+` ORDER BY creation_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer rows.Close()

	var result []*storage.PersistedGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		result = append(result, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grants: %w", err)
	}
	return result, nil
}

// RemoveAll deletes the grants matching filter.
func (s *GrantStore) RemoveAll(ctx context.Context, filter storage.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	where, args := filterClause(filter)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM persisted_grants WHERE `+where, args...); err != nil {
		return fmt.Errorf("removing grants: %w", err)
	}
	return nil
}

// DeleteExpired removes grants that expired before now and returns the
// number removed.
func (s *GrantStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM persisted_grants WHERE expiration IS NOT NULL AND expiration < ?`,
		s.clock.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired grants: %w", err)
	}
	return res.RowsAffected()
}

func filterClause(filter storage.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.ClientID != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, "type IN ("+strings.Join(placeholders, ", ")+")")
	}
	return strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(sc scanner) (*storage.PersistedGrant, error) {
	var (
		grant        storage.PersistedGrant
		grantType    string
		creationTime int64
		expiration   sql.NullInt64
	)
	if err := sc.Scan(
		&grant.Key,
		&grantType,
		&grant.ClientID,
		&grant.SubjectID,
		&grant.SessionID,
		&creationTime,
		&expiration,
		&grant.Data,
	); err != nil {
		return nil, err
	}

	grant.Type = storage.GrantType(grantType)
	grant.CreationTime = time.Unix(0, creationTime).UTC()
	if expiration.Valid {
		exp := time.Unix(0, expiration.Int64).UTC()
		grant.Expiration = &exp
	}
	return &grant, nil
}
