package ports

import (
	"context"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Database is the relational accessor collaborator.
type Database interface {
	// Query runs sql against ds and returns headers and rows.
	Query(ctx context.Context, ds domain.Datasource, sql string) (*domain.QueryResult, error)
}

// DatasourceResolver finds the active datasource of a scope.
type DatasourceResolver interface {
	// Active returns nil without error when the scope has no active datasource.
	Active(ctx context.Context, scopeID string) (*domain.Datasource, error)
}
