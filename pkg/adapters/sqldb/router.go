package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// Router implements ports.Database by dialect.
type Router struct {
	byDialect map[string]ports.Database
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{byDialect: make(map[string]ports.Database)}
}

// Handle routes dialects to db.
func (r *Router) Handle(db ports.Database, dialects ...string) *Router {
	for _, d := range dialects {
		r.byDialect[canonical(d)] = db
	}
	return r
}

// Query forwards to the accessor of ds.Dialect.
func (r *Router) Query(ctx context.Context, ds domain.Datasource, sql string) (*domain.QueryResult, error) {
	db, ok := r.byDialect[canonical(ds.Dialect)]
	if !ok {
		return nil, fmt.Errorf("no database accessor for dialect %q", ds.Dialect)
	}
	return db.Query(ctx, ds, sql)
}

func canonical(dialect string) string {
	switch d := strings.ToLower(strings.TrimSpace(dialect)); d {
	case "postgresql", "pg", "pgsql":
		return "postgres"
	case "mariadb":
		return "mysql"
	case "sqlite3":
		return "sqlite"
	default:
		return d
	}
}
