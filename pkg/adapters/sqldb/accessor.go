package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

// DefaultMaxRows caps the rows read from one result set.
const DefaultMaxRows = 1000

// Opener opens a pool for a driver name and DSN.
type Opener func(driverName, dsn string) (*sql.DB, error)

// Accessor implements ports.Database with database/sql pools.
type Accessor struct {
	mu      sync.Mutex
	pools   map[string]*sql.DB
	open    Opener
	maxRows int
	logger  *slog.Logger
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithOpener replaces sql.Open.
func WithOpener(o Opener) Option {
	return func(a *Accessor) {
		a.open = o
	}
}

// WithDB registers an existing pool for a datasource ID.
func WithDB(datasourceID string, db *sql.DB) Option {
	return func(a *Accessor) {
		a.pools[datasourceID] = db
	}
}

// WithMaxRows sets the row cap. Zero or less keeps the default.
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
		pools:   make(map[string]*sql.DB),
		open:    sql.Open,
		maxRows: DefaultMaxRows,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DriverName maps a datasource dialect to a database/sql driver.
func DriverName(dialect string) (string, error) {
	switch strings.ToLower(dialect) {
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported dialect %q", dialect)
}

func (a *Accessor) pool(ds domain.Datasource) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if db, ok := a.pools[ds.ID]; ok {
		return db, nil
	}
	name, err := DriverName(ds.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := a.open(name, ds.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource %s: %w", ds.ID, err)
	}
	a.pools[ds.ID] = db
	return db, nil
}

// Query runs a read-only statement and renders every cell as text.
func (a *Accessor) Query(ctx context.Context, ds domain.Datasource, query string) (*domain.QueryResult, error) {
	if err := EnsureReadOnly(query); err != nil {
		return nil, err
	}
	db, err := a.pool(ds)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, strings.TrimRight(strings.TrimSpace(query), ";"))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &domain.QueryResult{Columns: cols, Rows: [][]string{}}

	cells := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if len(res.Rows) >= a.maxRows {
			a.logger.Warn("result truncated", "datasource", ds.ID, "max_rows", a.maxRows)
			break
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]string, len(cols))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// Close closes every pool.
func (a *Accessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for id, db := range a.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(a.pools, id)
	}
	return errors.Join(errs...)
}

func classify(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
