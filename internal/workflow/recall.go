package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/sqlgraph/internal/recall"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/schema"
)

func (n *nodes) schemaRecall(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	scope, err := domain.Require[string](st, KeyScopeID)
	if err != nil {
		return nil, err
	}
	ds, err := n.Datasources.Active(ctx, scope)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		return fail(SchemaRecall, domain.Classify(err), err.Error(),
			"The datasource configuration could not be read."), nil
	}
	if ds == nil {
		u := fail(SchemaRecall, domain.FailureFatal, domain.ErrNoActiveDatasource.Error(),
			"No active datasource is configured for this workspace.")
		u[KeySchema] = schema.Schema{}
		return u, nil
	}

	emit(domain.EventStatus, "Recalling schema")
	query := strings.TrimSpace(canonicalQuery(st) + " " + strings.Join(domain.ValueOr[[]string](st, KeyKeywords), " "))
	tables, columns, err := n.recall.Recall(ctx, scope, query)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		return fail(SchemaRecall, domain.Classify(err), err.Error(),
			"The schema index could not be searched."), nil
	}
	emit(domain.EventStatus, fmt.Sprintf("Recalled %d tables and %d columns", len(tables), len(columns)))
	return domain.Update{
		KeyDialect:         ds.Dialect,
		KeyTableDocuments:  tables,
		KeyColumnDocuments: columns,
	}, nil
}

// tableRelation closes the recalled tables over their foreign keys and builds
// the schema. Transient errors are retried through the graph.
func (n *nodes) tableRelation(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	scope, err := domain.Require[string](st, KeyScopeID)
	if err != nil {
		return nil, err
	}
	tables := domain.ValueOr[[]domain.RetrievedDocument](st, KeyTableDocuments)
	columns := domain.ValueOr[[]domain.RetrievedDocument](st, KeyColumnDocuments)

	tables, columns, err = n.recall.Expand(ctx, scope, tables, columns)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		count := domain.ValueOr[int](st, KeyTableRelationRetryCount) + 1
		u := domain.Update{
			KeyTableRelationRetryCount: count,
			KeyTableRelationError:      err.Error(),
		}
		if !domain.IsTransient(err) {
			return merge(u, fail(TableRelation, domain.FailureFatal, err.Error(), "Table relations could not be resolved.")), nil
		}
		if count > n.cfg.MaxRelationRetries {
			return merge(u, fail(TableRelation, domain.FailureTransient,
				fmt.Sprintf("giving up after %d attempts: %v", count, err),
				"The schema index is not responding, please try again later.")), nil
		}
		n.Logger.Warn("table relation failed, retrying", "attempt", count, "error", err)
		emit(domain.EventStatus, fmt.Sprintf("Schema lookup failed, retrying (%d/%d)", count, n.cfg.MaxRelationRetries))
		return u, nil
	}

	s := n.recall.Assemble(scope, tables, columns)
	if n.cfg.SampleValues && !s.IsEmpty() {
		if ds, err := n.Datasources.Active(ctx, scope); err == nil && ds != nil {
			s = recall.AttachSamples(ctx, n.Pool, n.Database, *ds, s, n.Logger)
		}
	}
	emit(domain.EventStatus, fmt.Sprintf("Schema ready: %s", strings.Join(s.TableNames(), ", ")))
	return domain.Update{
		KeyTableDocuments:     tables,
		KeyColumnDocuments:    columns,
		KeySchema:             s,
		KeyTableRelationError: nil,
	}, nil
}
