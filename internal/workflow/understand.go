package workflow

import (
	"context"
	"strings"

	"github.com/aretw0/sqlgraph/internal/llmjson"
	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// unsupportedMarker is what the rewrite prompt answers for non-data questions.
const unsupportedMarker = "UNSUPPORTED"

const evidenceTopK = 5

func (n *nodes) rewrite(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	query, err := domain.Require[string](st, KeyQuery)
	if err != nil {
		return nil, err
	}
	emit(domain.EventStatus, "Understanding the question")

	p, err := prompt.Build(prompt.Rewrite, map[string]any{"Query": query, "Evidence": []string(nil)})
	if err != nil {
		return nil, err
	}
	out, err := n.LLM.Complete(ctx, p)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		n.Logger.Warn("rewrite failed", "error", err)
		return fail(Rewrite, domain.Classify(err), err.Error(),
			"The language model is unavailable, please try again later."), nil
	}

	rewritten := strings.TrimSpace(out)
	if rewritten == "" || strings.EqualFold(rewritten, unsupportedMarker) {
		return fail(Rewrite, domain.FailureValidation, "question is not a data analysis request",
			"Sorry, I can only answer questions about the data in this workspace."), nil
	}
	emit(domain.EventStatus, "Question: "+rewritten)
	return domain.Update{KeyRewriteOutput: rewritten}, nil
}

type keywordReply struct {
	Keywords []string `json:"keywords"`
}

// keywordExtract extracts search keywords and fetches business evidence in parallel.
// Neither failure is fatal; recall falls back to the question text.
func (n *nodes) keywordExtract(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	query := canonicalQuery(st)
	scope, err := domain.Require[string](st, KeyScopeID)
	if err != nil {
		return nil, err
	}

	var (
		keywords []string
		evidence []string
	)
	g := n.Pool.Group(ctx)
	g.Go(func(ctx context.Context) error {
		p, err := prompt.Build(prompt.Keywords, map[string]any{"Query": query})
		if err != nil {
			return err
		}
		out, err := n.LLM.Complete(ctx, p)
		if err != nil {
			n.Logger.Warn("keyword extraction failed", "error", err)
			return nil
		}
		var reply keywordReply
		if err := llmjson.Decode(out, &reply); err != nil {
			n.Logger.Warn("keyword reply is not json", "error", err)
			return nil
		}
		keywords = cleanKeywords(reply.Keywords)
		return nil
	})
	g.Go(func(ctx context.Context) error {
		docs, err := n.Retriever.Search(ctx, ports.SearchRequest{
			ScopeID: scope,
			Query:   query,
			Kind:    domain.DocEvidence,
			TopK:    evidenceTopK,
		})
		if err != nil {
			n.Logger.Warn("evidence retrieval failed", "error", err)
			return nil
		}
		for _, d := range docs {
			if d.Score > 0 && strings.TrimSpace(d.Text) != "" {
				evidence = append(evidence, strings.TrimSpace(d.Text))
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(keywords) > 0 {
		emit(domain.EventStatus, "Keywords: "+strings.Join(keywords, ", "))
	}
	if len(evidence) > 0 {
		emit(domain.EventStatus, "Found related business knowledge")
	}
	return domain.Update{KeyKeywords: keywords, KeyEvidence: evidence}, nil
}

func cleanKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
