// Package store persists sources, listings, products and the run log in
// PostgreSQL.
//
// Listings and products are reconciled with a single INSERT … ON CONFLICT
// statement per record, so concurrent runs can never create two rows for
// the same natural key and a record's id and created_at survive updates.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.pool.Ping(ctx))
}

// StoreError is returned by every Store method. Unavailable distinguishes a
// database that cannot be reached from a statement that was rejected.
type StoreError struct {
	Op  string
	Err error

	unavailable bool
}

func (e *StoreError) Error() string {
	if e.unavailable {
		return fmt.Sprintf("store %s: unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Unavailable reports whether the failure was a connection problem or
// timeout rather than a rejected statement.
func (e *StoreError) Unavailable() bool { return e.unavailable }

// Wrap classifies err as a StoreError for op. A nil err stays nil.
func Wrap(op string, err error) error { return wrap(op, err) }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err, unavailable: isUnavailable(err)}
}

// Connection-level SQLSTATE codes: class 08 plus server shutdown and
// connection exhaustion.
var unavailableCodes = map[string]bool{
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"53300": true, // too_many_connections
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" || unavailableCodes[pgErr.Code]
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
