// Package accounting owns every read and write against the FreeRADIUS
// accounting schema (radcheck, radusergroup, radacct, nas).
package accounting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/metrics"
)

// Dialect selects the DDL flavour. Queries themselves use $N placeholders,
// which both supported drivers accept.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const (
	defaultQueryTimeout = 30 * time.Second
	defaultHistoryLimit = 50
	defaultBillingLimit = 100
)

// Store runs on a shared, bounded *sql.DB pool. Every operation checks a
// connection out for its own duration only and is bounded by the query
// timeout.
type Store struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
}

// NewStore wraps an open pool. dialect is "postgres" or "sqlite".
func NewStore(db *sql.DB, dialect string, queryTimeout time.Duration, log logger.Logger) *Store {
	d := DialectPostgres
	if strings.HasPrefix(dialect, "sqlite") {
		d = DialectSQLite
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Store{
		db:      db,
		dialect: d,
		timeout: queryTimeout,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// withTx runs fn in a transaction. fn must issue its statements with the ctx
// it is given, which carries the query timeout. Any error from fn rolls the
// transaction back before it is returned.
func (s *Store) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, "failed to begin transaction", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error(fmt.Errorf("%s: rollback failed: %w", op, rbErr))
		}
		var typed *errs.Error
		if errors.As(err, &typed) {
			return err
		}
		return storeErr(op, "transaction aborted", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr(op, "failed to commit", err)
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, errp *error) {
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if *errp != nil {
		outcome = string(errs.KindOf(*errp))
	}
	metrics.StoreOperationsTotal.WithLabelValues(op, outcome).Inc()
}

// storeErr classifies a driver error. Unique violations become
// errs.KindDuplicateUsername; everything else, timeouts included, is
// errs.KindStoreUnavailable.
func storeErr(op, msg string, err error) error {
	if isUniqueViolation(err) {
		return errs.E(errs.KindDuplicateUsername, op, "username already exists", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.E(errs.KindStoreUnavailable, op, "query timed out", err)
	}
	return errs.E(errs.KindStoreUnavailable, op, msg, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
