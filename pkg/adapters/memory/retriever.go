package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// Retriever implements ports.Retriever over documents held in memory.
// Ranking is token overlap, which is enough for tests and small demos.
type Retriever struct {
	mu   sync.RWMutex
	docs map[string][]indexed // by scope
}

type indexed struct {
	doc    domain.RetrievedDocument
	kind   domain.DocKind
	tokens map[string]struct{}
}

// NewRetriever creates an empty retriever.
func NewRetriever() *Retriever {
	return &Retriever{docs: make(map[string][]indexed)}
}

// Add indexes documents of kind under scope.
func (r *Retriever) Add(scope string, kind domain.DocKind, docs ...domain.RetrievedDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		d = d.Clone()
		d.Metadata[domain.MetaKind] = string(kind)
		text := d.Text + " " + d.MetaString(domain.MetaName) + " " + d.MetaString(domain.MetaDescription)
		r.docs[scope] = append(r.docs[scope], indexed{doc: d, kind: kind, tokens: Tokenize(text)})
	}
}

// Search ranks the scope's documents of the requested kind.
func (r *Retriever) Search(ctx context.Context, req ports.SearchRequest) ([]domain.RetrievedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make(map[string]struct{}, len(req.Names))
	for _, n := range req.Names {
		names[strings.ToLower(n)] = struct{}{}
	}
	query := Tokenize(req.Query)

	var out []domain.RetrievedDocument
	for _, ix := range r.docs[req.ScopeID] {
		if req.Kind != "" && ix.kind != req.Kind {
			continue
		}
		if len(names) > 0 {
			field := domain.MetaName
			if ix.kind == domain.DocColumn {
				field = domain.MetaTableName
			}
			if _, ok := names[strings.ToLower(ix.doc.MetaString(field))]; !ok {
				continue
			}
		}
		d := ix.doc.Clone()
		d.Score = overlap(query, ix.tokens)
		if len(query) == 0 {
			d.Score = 1
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if req.TopK > 0 && len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// Tokenize lowercases s into words; Han runs are split into unigrams and bigrams.
func Tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	var word []rune
	var han []rune
	flushWord := func() {
		if len(word) > 0 {
			out[string(word)] = struct{}{}
			word = word[:0]
		}
	}
	flushHan := func() {
		for i := range han {
			out[string(han[i])] = struct{}{}
			if i+1 < len(han) {
				out[string(han[i:i+2])] = struct{}{}
			}
		}
		han = han[:0]
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return out
}
