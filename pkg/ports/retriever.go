package ports

import (
	"context"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// SearchRequest scopes a retrieval call.
type SearchRequest struct {
	ScopeID string
	// Query ranks results. An empty query with Names set is an exact-name lookup.
	Query string
	Kind  domain.DocKind
	// Names restricts tables to these names, or columns to these owning tables.
	Names []string
	TopK  int
}

// Retriever is the vector retrieval collaborator.
type Retriever interface {
	Search(ctx context.Context, req SearchRequest) ([]domain.RetrievedDocument, error)
}
