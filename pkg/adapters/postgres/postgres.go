// Package postgres implements ports.Database on pgx connection pools.
package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/adapters/sqldb"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Accessor runs read-only queries through one pgxpool per datasource.
type Accessor struct {
	mu      sync.Mutex
	pools   map[string]*pgxpool.Pool
	maxRows int
	logger  *slog.Logger
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithMaxRows sets the row cap.
func WithMaxRows(n int) Option {
	return func(a *Accessor) {
		if n > 0 {
			a.maxRows = n
		}
	}
}

// WithLogger sets the accessor logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) {
		a.logger = l
	}
}

// New creates an accessor.
func New(opts ...Option) *Accessor {
	a := &Accessor{
		pools:   make(map[string]*pgxpool.Pool),
		maxRows: sqldb.DefaultMaxRows,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accessor) pool(ctx context.Context, ds domain.Datasource) (*pgxpool.Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.pools[ds.ID]; ok {
		return p, nil
	}
	cfg, err := pgxpool.ParseConfig(ds.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn for %s: %w", ds.ID, err)
	}
	cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify(err)
	}
	a.pools[ds.ID] = p
	return p, nil
}

// Query runs sql against ds inside a read-only transaction.
func (a *Accessor) Query(ctx context.Context, ds domain.Datasource, sql string) (*domain.QueryResult, error) {
	if err := sqldb.EnsureReadOnly(sql); err != nil {
		return nil, err
	}
	p, err := a.pool(ctx, ds)
	if err != nil {
		return nil, err
	}

	tx, err := p.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, strings.TrimRight(strings.TrimSpace(sql), ";"))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &domain.QueryResult{Columns: make([]string, len(fields)), Rows: [][]string{}}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}

	for rows.Next() {
		if len(res.Rows) >= a.maxRows {
			a.logger.Warn("result truncated", "datasource", ds.ID, "max_rows", a.maxRows)
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = FormatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// Close closes every pool.
func (a *Accessor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, p := range a.pools {
		p.Close()
		delete(a.pools, id)
	}
}

// FormatValue renders a decoded pgx value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return fmt.Sprintf("\\x%x", x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case driver.Valuer:
		// pgtype.Numeric, pgtype.Interval and friends encode to their text form.
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return FormatValue(dv)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func classify(err error) error {
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
