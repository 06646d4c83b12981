package memory

import (
	"context"
	"sync"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Datasources implements ports.DatasourceResolver from a fixed list.
type Datasources struct {
	mu      sync.RWMutex
	byScope map[string][]domain.Datasource
}

// NewDatasources indexes the datasources by scope.
func NewDatasources(list ...domain.Datasource) *Datasources {
	d := &Datasources{byScope: make(map[string][]domain.Datasource)}
	for _, ds := range list {
		d.byScope[ds.Scope] = append(d.byScope[ds.Scope], ds)
	}
	return d
}

// Active returns the first active datasource of the scope, or nil.
func (d *Datasources) Active(ctx context.Context, scopeID string) (*domain.Datasource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ds := range d.byScope[scopeID] {
		if ds.Active {
			out := ds
			return &out, nil
		}
	}
	return nil, nil
}
