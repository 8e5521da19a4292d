package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrTxFinished is returned when a finished transaction is reused
	ErrTxFinished = errors.New("transaction already finished")
)

// Tx is an open database transaction. It implements Executor, so an
// entity manager bound to it runs every statement inside the transaction.
type Tx struct {
	tx         sqlTx
	logger     *zap.Logger
	committed  atomic.Bool
	rolledBack atomic.Bool
}

type sqlTx interface {
	querier
	Commit() error
	Rollback() error
}

// Begin starts a transaction
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, logger: d.logger}, nil
}

// Execute runs one compiled statement inside the transaction
func (t *Tx) Execute(ctx context.Context, sqlText string, args []interface{}) (*Result, error) {
	if t.finished() {
		return nil, ErrTxFinished
	}
	return execute(ctx, t.tx, t.logger, sqlText, args)
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	if t.finished() {
		return ErrTxFinished
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction. Rolling back twice is a no-op.
func (t *Tx) Rollback() error {
	if t.committed.Load() {
		return ErrTxFinished
	}
	if t.rolledBack.Load() {
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.rolledBack.Store(true)
	return nil
}

// Savepoint creates a named savepoint
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	return t.execSavepoint(ctx, "SAVEPOINT "+name)
}

// RollbackToSavepoint rolls back to a named savepoint
func (t *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	return t.execSavepoint(ctx, "ROLLBACK TO SAVEPOINT "+name)
}

// ReleaseSavepoint releases a named savepoint
func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.execSavepoint(ctx, "RELEASE SAVEPOINT "+name)
}

func (t *Tx) execSavepoint(ctx context.Context, stmt string) error {
	if t.finished() {
		return ErrTxFinished
	}
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return &ExecError{SQL: stmt, Err: Classify(err)}
	}
	return nil
}

// IsCommitted returns true once Commit has succeeded
func (t *Tx) IsCommitted() bool {
	return t.committed.Load()
}

// IsRolledBack returns true once Rollback has succeeded
func (t *Tx) IsRolledBack() bool {
	return t.rolledBack.Load()
}

func (t *Tx) finished() bool {
	return t.committed.Load() || t.rolledBack.Load()
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
