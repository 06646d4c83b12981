package workflow

import (
	"context"
	"strings"

	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

const reportTableRows = 20

type reportStep struct {
	StepNumber int
	SQL        string
	Table      string
	Output     string
}

// reportGenerator streams the final report as markdown events.
func (n *nodes) reportGenerator(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	plan := domain.ValueOr[domain.Plan](st, KeyPlan)
	var summary string
	if step, ok := plan.Step(domain.ValueOr[int](st, KeyPlanCurrentStep)); ok && step.Tool == domain.ToolReport {
		summary = step.Parameters.SummaryAndRecommendations
	}

	var results []reportStep
	for _, r := range orderedResults(st) {
		results = append(results, reportStep{
			StepNumber: r.StepNumber,
			SQL:        r.SQL,
			Table:      markdownTable(r.Result, reportTableRows),
			Output:     r.Output,
		})
	}
	p, err := prompt.Build(prompt.Report, map[string]any{
		"Query":   canonicalQuery(st),
		"Thought": plan.ThoughtProcess,
		"Results": results,
		"Summary": summary,
	})
	if err != nil {
		return nil, err
	}

	emit(domain.EventStatus, "Writing the report")
	text, err := n.LLM.Stream(ctx, p, func(fragment string) error {
		emit(domain.EventMarkdown, fragment)
		return nil
	})
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		u := fail(ReportGenerator, domain.Classify(err), err.Error(), "The report could not be written, please try again later.")
		if text != "" {
			u[KeyReport] = text
		}
		return u, nil
	}
	return domain.Update{KeyReport: strings.TrimSpace(text)}, nil
}
