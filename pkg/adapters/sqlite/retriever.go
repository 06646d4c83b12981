// Package sqlite is a lexical schema index on SQLite FTS5, ranked by bm25.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/aretw0/sqlgraph/pkg/adapters/memory"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

const schemaDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
	scope UNINDEXED,
	kind UNINDEXED,
	doc_id UNINDEXED,
	name UNINDEXED,
	table_name UNINDEXED,
	metadata UNINDEXED,
	body,
	terms
);`

// Retriever implements ports.Retriever over an FTS5 table.
// Han text is pre-split into unigrams and bigrams because the unicode61
// tokenizer keeps a Han run as one token.
type Retriever struct {
	db *sql.DB
}

// Open opens (or creates) the index at path. ":memory:" gives a private index.
func Open(path string) (*Retriever, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &Retriever{db: db}, nil
}

// Close closes the index.
func (r *Retriever) Close() error {
	return r.db.Close()
}

// Reset drops every document of scope, so a catalog can be re-indexed.
func (r *Retriever) Reset(ctx context.Context, scope string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("failed to reset scope %s: %w", scope, err)
	}
	return nil
}

// Add indexes documents of kind under scope.
func (r *Retriever) Add(ctx context.Context, scope string, kind domain.DocKind, docs ...domain.RetrievedDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (scope, kind, doc_id, name, table_name, metadata, body, terms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		text := d.Text + " " + d.MetaString(domain.MetaName) + " " + d.MetaString(domain.MetaDescription)
		_, err = stmt.ExecContext(ctx, scope, string(kind), d.ID,
			strings.ToLower(d.MetaString(domain.MetaName)),
			strings.ToLower(d.MetaString(domain.MetaTableName)),
			string(meta), d.Text, terms(text))
		if err != nil {
			return fmt.Errorf("failed to index %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search ranks the scope's documents. With Names set every document of those
// names is returned: query hits are ranked by bm25 and the rest score 0, or 1
// when the query is empty.
func (r *Retriever) Search(ctx context.Context, req ports.SearchRequest) ([]domain.RetrievedDocument, error) {
	const bm25Rank = "bm25(documents, 0, 0, 0, 0, 0, 0, 1.0, 1.0)"
	var (
		match = matchExpr(req.Query)
		from  = "documents"
		rank  = "0.0"
		where []string
		args  []any
	)
	switch {
	case match != "" && len(req.Names) > 0:
		from = "documents LEFT JOIN (SELECT rowid AS rid, " + bm25Rank + " AS bm FROM documents WHERE documents MATCH ?) m ON m.rid = documents.rowid"
		args = append(args, match)
		rank = "COALESCE(m.bm, 0.0)"
	case match != "":
		where = append(where, "documents MATCH ?")
		args = append(args, match)
		rank = bm25Rank
	case len(req.Names) == 0 && strings.TrimSpace(req.Query) != "":
		return nil, nil
	}

	where = append(where, "documents.scope = ?")
	args = append(args, req.ScopeID)
	if req.Kind != "" {
		where = append(where, "documents.kind = ?")
		args = append(args, string(req.Kind))
	}
	if len(req.Names) > 0 {
		field := "documents.name"
		if req.Kind == domain.DocColumn {
			field = "documents.table_name"
		}
		marks := make([]string, len(req.Names))
		for i, n := range req.Names {
			marks[i] = "?"
			args = append(args, strings.ToLower(n))
		}
		where = append(where, fmt.Sprintf("%s IN (%s)", field, strings.Join(marks, ",")))
	}

	q := fmt.Sprintf(`SELECT documents.doc_id, documents.kind, documents.body, documents.metadata, %s AS score FROM %s WHERE %s ORDER BY score, documents.doc_id`,
		rank, from, strings.Join(where, " AND "))
	if req.TopK > 0 {
		q += fmt.Sprintf(" LIMIT %d", req.TopK)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	defer rows.Close()

	var out []domain.RetrievedDocument
	for rows.Next() {
		var (
			d    domain.RetrievedDocument
			kind string
			meta string
			bm25 float64
		)
		if err := rows.Scan(&d.ID, &kind, &d.Text, &meta, &bm25); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		if d.Metadata == nil {
			d.Metadata = map[string]any{}
		}
		d.Metadata[domain.MetaKind] = kind
		d.Score = score(match, bm25)
		out = append(out, d)
	}
	return out, rows.Err()
}

// score maps bm25 (lower is better, usually negative) into (0, 1).
func score(match string, bm25 float64) float64 {
	if match == "" {
		return 1
	}
	s := -bm25
	if s < 0 {
		s = 0
	}
	return s / (1 + s)
}

func terms(text string) string {
	set := memory.Tokenize(text)
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// matchExpr ORs the quoted query terms against the terms column.
func matchExpr(query string) string {
	set := memory.Tokenize(query)
	if len(set) == 0 {
		return ""
	}
	parts := make([]string, 0, len(set))
	for t := range set {
		parts = append(parts, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	sort.Strings(parts)
	return "terms : (" + strings.Join(parts, " OR ") + ")"
}
