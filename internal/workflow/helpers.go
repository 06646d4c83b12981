package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

// fail records a failure and the message shown to the user.
func fail(node runtime.NodeID, kind domain.FailureKind, message, userMessage string) domain.Update {
	return domain.Update{
		KeyFailure:         domain.Failure{Kind: kind, Node: string(node), Message: message},
		KeyTerminalMessage: userMessage,
	}
}

// canceled reports whether err only reflects the run being cancelled.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// canonicalQuery is the rewritten question, or the raw one before rewriting.
func canonicalQuery(st *domain.State) string {
	if q := domain.ValueOr[string](st, KeyRewriteOutput); q != "" {
		return q
	}
	return domain.ValueOr[string](st, KeyQuery)
}

func evidenceText(st *domain.State) string {
	ev := domain.ValueOr[[]string](st, KeyEvidence)
	if len(ev) == 0 {
		return ""
	}
	return "- " + strings.Join(ev, "\n- ")
}

// currentStep returns the cursor and the step it points at.
func currentStep(st *domain.State) (domain.Plan, int, domain.ExecutionStep, error) {
	plan, ok := domain.Value[domain.Plan](st, KeyPlan)
	if !ok {
		return plan, 0, domain.ExecutionStep{}, errors.New("no plan in state")
	}
	cursor := domain.ValueOr[int](st, KeyPlanCurrentStep)
	step, ok := plan.Step(cursor)
	if !ok {
		return plan, cursor, step, fmt.Errorf("plan has no step %d", cursor)
	}
	return plan, cursor, step, nil
}

// withStepResult returns a copy of the recorded results with r stored under its step.
func withStepResult(st *domain.State, r domain.StepResult) map[int]domain.StepResult {
	prev := domain.ValueOr[map[int]domain.StepResult](st, KeyStepResults)
	out := make(map[int]domain.StepResult, len(prev)+1)
	for k, v := range prev {
		out[k] = v
	}
	out[r.StepNumber] = r
	return out
}

// orderedResults lists recorded results by step number.
func orderedResults(st *domain.State) []domain.StepResult {
	m := domain.ValueOr[map[int]domain.StepResult](st, KeyStepResults)
	out := make([]domain.StepResult, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

// markdownTable renders up to maxRows rows of r.
func markdownTable(r *domain.QueryResult, maxRows int) string {
	if r == nil || len(r.Columns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(r.Columns), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(r.Columns)) + "\n")
	for i, row := range r.Rows {
		if maxRows > 0 && i == maxRows {
			fmt.Fprintf(&b, "\n_%d more rows omitted_\n", len(r.Rows)-maxRows)
			break
		}
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	return b.String()
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(strings.ReplaceAll(c, "|", `\|`), "\n", " ")
	}
	return out
}
