// Package adapter executes compiled SQL against a database/sql connection
// and exposes the transaction and savepoint primitives the entity manager
// threads through its operations. Rows come back as opaque column-name
// keyed maps; interpreting values is the hydration layer's job.
package adapter

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Row is a single result row keyed by storage column name
type Row map[string]interface{}

// Result is the outcome of one executed statement
type Result struct {
	Rows     []Row
	RowCount int64
}

// Executor executes one compiled statement. Both DB and Tx implement it,
// so callers can run the same operations inside or outside a transaction.
type Executor interface {
	Execute(ctx context.Context, sqlText string, args []interface{}) (*Result, error)
}

// DB wraps a database/sql handle
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens a database handle for one of the registered drivers
// ("pgx", "postgres", "sqlite3")
func Open(driver, dsn string) (*DB, error) {
	if !KnownDriver(driver) {
		return nil, &ExecError{Err: ErrUnknownDriver, SQL: driver}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewDB(db), nil
}

// NewDB wraps an existing handle. Useful for injecting sqlmock in tests
// or a pre-configured pool.
func NewDB(db *sql.DB) *DB {
	return &DB{db: db, logger: zap.NewNop()}
}

// WithLogger sets a logger for executed statements. Statements are logged
// at debug level; failures at error level.
func (d *DB) WithLogger(logger *zap.Logger) *DB {
	d.logger = logger
	return d
}

// Ping verifies the connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying handle
func (d *DB) Close() error {
	return d.db.Close()
}

// Unwrap returns the underlying *sql.DB
func (d *DB) Unwrap() *sql.DB {
	return d.db
}

// Execute runs one compiled statement. Statements that produce rows
// (SELECT, or anything with RETURNING) are queried; everything else is
// executed for its affected-row count.
func (d *DB) Execute(ctx context.Context, sqlText string, args []interface{}) (*Result, error) {
	return execute(ctx, d.db, d.logger, sqlText, args)
}

// querier is the subset of sql.DB and sql.Tx the executor needs
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func execute(ctx context.Context, q querier, logger *zap.Logger, sqlText string, args []interface{}) (*Result, error) {
	start := time.Now()

	var result *Result
	var err error
	if returnsRows(sqlText) {
		result, err = executeQuery(ctx, q, sqlText, args)
	} else {
		result, err = executeExec(ctx, q, sqlText, args)
	}

	if err != nil {
		logger.Error("statement failed",
			zap.String("sql", sqlText),
			zap.Int("params", len(args)),
			zap.Error(err),
		)
		return nil, &ExecError{SQL: sqlText, Args: args, Err: Classify(err)}
	}

	logger.Debug("statement executed",
		zap.String("sql", sqlText),
		zap.Int("params", len(args)),
		zap.Int64("rows", result.RowCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func executeQuery(ctx context.Context, q querier, sqlText string, args []interface{}) (*Result, error) {
	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scanned, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: scanned, RowCount: int64(len(scanned))}, nil
}

func executeExec(ctx context.Context, q querier, sqlText string, args []interface{}) (*Result, error) {
	res, err := q.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows; the statement still ran.
		affected = 0
	}
	return &Result{Rows: nil, RowCount: affected}, nil
}

// returnsRows reports whether the statement produces a result set
func returnsRows(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	if len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "SELECT") {
		return true
	}
	return strings.Contains(strings.ToUpper(trimmed), " RETURNING ")
}

// scanRows scans SQL rows into column-name keyed maps
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Row, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
