package cli

import (
	"context"
	"fmt"

	"github.com/aretw0/sqlgraph/internal/config"
	"github.com/aretw0/sqlgraph/pkg/adapters/file"
	"github.com/aretw0/sqlgraph/pkg/adapters/memory"
	"github.com/aretw0/sqlgraph/pkg/adapters/postgres"
	"github.com/aretw0/sqlgraph/pkg/adapters/redis"
	"github.com/aretw0/sqlgraph/pkg/adapters/sqldb"
	"github.com/aretw0/sqlgraph/pkg/adapters/sqlite"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/persistence/middleware"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// defaultRedactKeys are masked in every checkpoint unless configured otherwise.
var defaultRedactKeys = []string{"(?i)password", "(?i)secret", "(?i)token", "(?i)api_?key"}

// database routes postgres to pgx and the database/sql dialects to sqldb.
func (a *App) database() ports.Database {
	pg := postgres.New(postgres.WithLogger(a.Logger))
	a.onClose(func() error {
		pg.Close()
		return nil
	})
	std := sqldb.New(sqldb.WithLogger(a.Logger))
	a.onClose(std.Close)

	return sqldb.NewRouter().
		Handle(pg, "postgres").
		Handle(std, "mysql", "sqlite")
}

type indexer interface {
	ports.Retriever
	add(ctx context.Context, scope string, kind domain.DocKind, docs ...domain.RetrievedDocument) error
}

type memoryIndex struct{ *memory.Retriever }

func (m memoryIndex) add(_ context.Context, scope string, kind domain.DocKind, docs ...domain.RetrievedDocument) error {
	m.Add(scope, kind, docs...)
	return nil
}

type sqliteIndex struct{ *sqlite.Retriever }

func (s sqliteIndex) add(ctx context.Context, scope string, kind domain.DocKind, docs ...domain.RetrievedDocument) error {
	return s.Add(ctx, scope, kind, docs...)
}

func (a *App) retriever(ctx context.Context) (ports.Retriever, error) {
	cfg := a.Config.Retrieval
	var idx indexer
	switch cfg.Driver {
	case config.RetrievalSQLite:
		r, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(r.Close)
		idx = sqliteIndex{r}
	default:
		idx = memoryIndex{memory.NewRetriever()}
	}

	if cfg.Catalog == "" {
		if cfg.Driver != config.RetrievalSQLite {
			a.Logger.Warn("no schema catalog configured; the memory index is empty")
		}
		return idx, nil
	}
	catalog, err := config.LoadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	if err := indexCatalog(ctx, idx, catalog); err != nil {
		return nil, err
	}
	a.Logger.Info("schema catalog indexed", "path", cfg.Catalog, "scopes", len(catalog.Scopes), "driver", cfg.Driver)
	return idx, nil
}

func indexCatalog(ctx context.Context, idx indexer, c *config.Catalog) error {
	for _, s := range c.Scopes {
		if r, ok := idx.(sqliteIndex); ok {
			if err := r.Reset(ctx, s.ID); err != nil {
				return err
			}
		}
		tables, columns, evidence := s.Documents()
		for kind, docs := range map[domain.DocKind][]domain.RetrievedDocument{
			domain.DocTable:    tables,
			domain.DocColumn:   columns,
			domain.DocEvidence: evidence,
		} {
			if len(docs) == 0 {
				continue
			}
			if err := idx.add(ctx, s.ID, kind, docs...); err != nil {
				return fmt.Errorf("failed to index scope %s: %w", s.ID, err)
			}
		}
	}
	return nil
}

func (a *App) store() (ports.CheckpointStore, ports.DistributedLocker, error) {
	cfg := a.Config.Store
	switch cfg.Driver {
	case config.StoreFile:
		return file.New(cfg.Path), nil, nil
	case config.StoreRedis:
		st := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redis.WithTTL(cfg.TTL))
		a.onClose(st.Close)
		return st, redis.NewLocker(st.Client(), "sqlgraph:"), nil
	default:
		return memory.NewStore(), nil, nil
	}
}

// protect adds PII redaction and, with a key, encryption in front of store.
func (a *App) protect(store ports.CheckpointStore) (ports.CheckpointStore, error) {
	cfg := a.Config.Store
	keys := cfg.RedactKeys
	if keys == nil {
		keys = defaultRedactKeys
	}
	var mws []middleware.Middleware
	if len(keys) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(keys))
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.DecodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range cfg.FallbackKeys {
			fk, err := middleware.DecodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("store.fallback_keys: %w", err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, fk)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	return middleware.Chain(store, mws...), nil
}
