// Package recall finds the slice of a datasource schema relevant to a
// question: vector recall of tables and columns, foreign-key closure,
// column re-ranking and schema assembly.
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

// Defaults.
const (
	DefaultTopKTables         = 20
	DefaultMaxColumnsPerTable = 10
	DefaultMaxColumns         = 100
	// MaxClosurePasses caps foreign-key expansion. Source relations are flat,
	// so one extra pass normally finds everything.
	MaxClosurePasses = 2
)

// Config tunes recall sizes.
type Config struct {
	TopKTables         int
	MaxColumnsPerTable int
	MaxColumns         int
}

func (c Config) withDefaults() Config {
	if c.TopKTables <= 0 {
		c.TopKTables = DefaultTopKTables
	}
	if c.MaxColumnsPerTable <= 0 {
		c.MaxColumnsPerTable = DefaultMaxColumnsPerTable
	}
	if c.MaxColumns <= 0 {
		c.MaxColumns = DefaultMaxColumns
	}
	return c
}

// Service runs schema recall against a retriever.
type Service struct {
	retriever ports.Retriever
	pool      *pool.Pool
	cfg       Config
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets recall sizes.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg.withDefaults()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a recall service. p bounds parallel fetches.
func New(r ports.Retriever, p *pool.Pool, opts ...Option) *Service {
	s := &Service{
		retriever: r,
		pool:      p,
		cfg:       Config{}.withDefaults(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Recall retrieves the top tables for query and the columns of those tables.
func (s *Service) Recall(ctx context.Context, scope, query string) (tables, columns []domain.RetrievedDocument, err error) {
	tables, err = s.retriever.Search(ctx, ports.SearchRequest{
		ScopeID: scope,
		Query:   query,
		Kind:    domain.DocTable,
		TopK:    s.cfg.TopKTables,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("table recall: %w", err)
	}
	names := TableNames(tables)
	if len(names) == 0 {
		return tables, nil, nil
	}
	columns, err = s.retriever.Search(ctx, ports.SearchRequest{
		ScopeID: scope,
		Query:   query,
		Kind:    domain.DocColumn,
		Names:   names,
		TopK:    len(names) * s.cfg.MaxColumnsPerTable,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("column recall: %w", err)
	}
	s.logger.Debug("schema recalled", "tables", len(tables), "columns", len(columns))
	return tables, columns, nil
}

// Expand adds every table referenced by a foreign key but missing from tables,
// together with its columns, until nothing is missing or MaxClosurePasses is reached.
// Running Expand on its own output adds nothing.
func (s *Service) Expand(ctx context.Context, scope string, tables, columns []domain.RetrievedDocument) ([]domain.RetrievedDocument, []domain.RetrievedDocument, error) {
	tables = Dedup(tables)
	columns = Dedup(columns)
	for pass := 0; pass < MaxClosurePasses; pass++ {
		missing := MissingTables(tables)
		if len(missing) == 0 {
			break
		}
		s.logger.Debug("expanding foreign keys", "pass", pass+1, "missing", missing)

		var newTables, newColumns []domain.RetrievedDocument
		g := s.pool.Group(ctx)
		g.Go(func(ctx context.Context) error {
			docs, err := s.retriever.Search(ctx, ports.SearchRequest{ScopeID: scope, Kind: domain.DocTable, Names: missing, TopK: len(missing)})
			newTables = docs
			return err
		})
		g.Go(func(ctx context.Context) error {
			docs, err := s.retriever.Search(ctx, ports.SearchRequest{ScopeID: scope, Kind: domain.DocColumn, Names: missing, TopK: len(missing) * s.cfg.MaxColumnsPerTable})
			newColumns = docs
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, nil, fmt.Errorf("foreign key expansion: %w", err)
		}

		before := len(tables)
		tables = Dedup(append(tables, newTables...))
		columns = Dedup(append(columns, newColumns...))
		if len(tables) == before {
			// The referenced tables do not exist in the index.
			break
		}
	}
	return tables, columns, nil
}

// Assemble selects columns and builds the final schema.
func (s *Service) Assemble(name string, tables, columns []domain.RetrievedDocument) schema.Schema {
	selected := SelectColumns(tables, columns, s.cfg.MaxColumns)
	return schema.Build(name, tables, selected)
}

// TableNames returns the table names of table documents in order.
func TableNames(tables []domain.RetrievedDocument) []string {
	seen := make(map[string]struct{}, len(tables))
	var out []string
	for _, t := range tables {
		name := t.MetaString(domain.MetaName)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

// MissingTables lists tables referenced by foreign keys of tables but absent from them.
func MissingTables(tables []domain.RetrievedDocument) []string {
	present := make(map[string]struct{}, len(tables))
	for _, name := range TableNames(tables) {
		present[strings.ToLower(name)] = struct{}{}
	}
	var rels []schema.Relation
	for _, t := range tables {
		rels = append(rels, schema.ParseForeignKeys(t.MetaString(domain.MetaForeignKey))...)
	}
	var out []string
	for _, name := range schema.ReferencedTables(rels) {
		if _, ok := present[strings.ToLower(name)]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Dedup drops documents whose ID was already seen, keeping the first.
func Dedup(docs []domain.RetrievedDocument) []domain.RetrievedDocument {
	seen := make(map[string]struct{}, len(docs))
	out := make([]domain.RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}
