package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	defaultMaxElapsed = 5 * time.Second
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx; read paths accept either.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReadOnly is used by read paths that want a consistent snapshot.
var ReadOnly = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// ErrConcurrentUpdate marks a conflict with a concurrent transaction that is
// resolved by replaying the whole unit, e.g. a unique key claimed by a peer
// whose row is invisible to the current snapshot.
var ErrConcurrentUpdate = errors.New("db: concurrent update")

// Serializable is the isolation used by every read-decide-write unit.
var Serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsRetryable reports whether the transaction that produced err can be
// replayed from the start.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) ||
		hasCode(err, codeSerializationFailure) ||
		hasCode(err, codeDeadlockDetected)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// RunInTx executes fn inside a transaction and commits it. Serialization
// failures and deadlocks replay fn in a fresh transaction with exponential
// backoff until maxElapsed; any other error aborts immediately and is returned
// unchanged.
func RunInTx(ctx context.Context, beginner TxBeginner, opts pgx.TxOptions, maxElapsed time.Duration, fn func(tx pgx.Tx) error) error {
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}

	attempt := func() error {
		tx, err := beginner.BeginTx(ctx, opts)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("db: begin tx: %w", err))
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(ctx); err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("db: commit tx: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 15 * time.Millisecond
	policy.MaxInterval = 400 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	return backoff.Retry(attempt, backoff.WithContext(policy, ctx))
}
