package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopauth/shopauth/repositories"
	"go.uber.org/zap"
)

// transactionContextKey carries the active transaction through the context
// so repository calls made inside InTransaction share it.
type transactionContextKey struct{}

// TransactionManager runs multi-statement writes against a single
// transaction. Signup uses it to persist a user and their shops as one unit.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a transaction manager over the given pool.
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// Begin opens a transaction. Callers that can express their work as a single
// function should prefer InTransaction.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: sqlTx, ctx: ctx, logger: tm.logger}, nil
}

// InTransaction runs fn with a transaction attached to the derived context.
// The transaction commits when fn returns nil and rolls back otherwise, so
// a failure partway through leaves no rows behind.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, transactionContextKey{}, tx)
	if err := fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("rollback failed",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		return err
	}

	return tx.Commit()
}

// Transaction wraps *sql.Tx behind the repositories.Transaction interface.
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

// Commit commits the transaction.
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback rolls back the transaction. Rolling back a finished transaction
// is a no-op, so it is safe to call on every exit path.
func (t *Transaction) Rollback() error {
	switch err := t.tx.Rollback(); err {
	case nil:
		t.logger.Debug("transaction rolled back")
		return nil
	case sql.ErrTxDone:
		return nil
	default:
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
}

// Context returns the context the transaction was started with.
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// GetTransactionFromContext returns the transaction attached by
// InTransaction, if any.
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(repositories.Transaction)
	return tx, ok
}

// Executor is the query surface shared by *sql.DB and *sql.Tx. Repositories
// run every statement through it so the same code works inside and outside
// a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction from the context when one is present
// and the connection pool otherwise.
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := GetTransactionFromContext(ctx); ok {
		if pgTx, ok := tx.(*Transaction); ok {
			return pgTx.tx
		}
	}
	return db.DB
}
