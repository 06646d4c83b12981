package recall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/internal/pool"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
	"github.com/aretw0/sqlgraph/pkg/schema"
)

// SampleLimit is the number of distinct values attached per column.
const SampleLimit = 3

// AttachSamples fills SampleValues of columns that have none by querying the
// datasource in parallel. Failures leave the column unchanged. The input schema
// is not modified.
func AttachSamples(ctx context.Context, p *pool.Pool, db ports.Database, ds domain.Datasource, s schema.Schema, logger *slog.Logger) schema.Schema {
	if logger == nil {
		logger = logging.NewNop()
	}
	out := s
	out.Tables = make([]schema.Table, len(s.Tables))
	for i, t := range s.Tables {
		out.Tables[i] = t
		out.Tables[i].Columns = append([]schema.Column(nil), t.Columns...)
	}

	g := p.Group(ctx)
	for ti := range out.Tables {
		for ci := range out.Tables[ti].Columns {
			col := &out.Tables[ti].Columns[ci]
			if len(col.SampleValues) > 0 {
				continue
			}
			table := out.Tables[ti].Name
			g.Go(func(ctx context.Context) error {
				q := SampleQuery(ds.Dialect, table, col.Name)
				res, err := db.Query(ctx, ds, q)
				if err != nil {
					logger.Debug("sample query failed", "table", table, "column", col.Name, "error", err)
					return nil
				}
				for _, row := range res.Rows {
					if len(row) > 0 && row[0] != "" {
						col.SampleValues = append(col.SampleValues, row[0])
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

// SampleQuery builds the distinct-values query for a column.
func SampleQuery(dialect, table, column string) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		QuoteIdent(dialect, column), QuoteIdent(dialect, table), QuoteIdent(dialect, column), SampleLimit)
}

// QuoteIdent quotes an identifier for the dialect.
func QuoteIdent(dialect, name string) string {
	switch strings.ToLower(dialect) {
	case "mysql", "mariadb":
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}
