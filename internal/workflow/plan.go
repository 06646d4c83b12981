package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/sqlgraph/internal/llmjson"
	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/schema"
)

var errEmptyPlan = errors.New("plan has no steps")

// planner asks for a plan, re-asking once with the parse error. A new plan
// resets the cursor and the per-step counters.
func (n *nodes) planner(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	emit(domain.EventStatus, "Planning")
	p, err := prompt.Build(prompt.Planner, map[string]any{
		"Dialect":         dialectOf(st),
		"Query":           canonicalQuery(st),
		"Schema":          schema.Render(domain.ValueOr[schema.Schema](st, KeySchema)),
		"Evidence":        domain.ValueOr[[]string](st, KeyEvidence),
		"ValidationError": domain.ValueOr[string](st, KeyPlanValidationError),
		"Feedback":        domain.ValueOr[[]string](st, KeyPlanFeedback),
	})
	if err != nil {
		return nil, err
	}

	out, err := n.LLM.Complete(ctx, p)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		return fail(Planner, domain.Classify(err), err.Error(), "The planner is unavailable, please try again later."), nil
	}
	plan, perr := parsePlan(out)
	if perr != nil {
		n.Logger.Warn("plan could not be parsed, asking again", "error", perr)
		reask, err := prompt.Build(prompt.PlanReask, map[string]any{"Error": perr.Error(), "Previous": out})
		if err != nil {
			return nil, err
		}
		reask.System = p.System
		out, err = n.LLM.Complete(ctx, reask)
		if err != nil {
			if canceled(ctx, err) {
				return nil, err
			}
			return fail(Planner, domain.Classify(err), err.Error(), "The planner is unavailable, please try again later."), nil
		}
		if plan, perr = parsePlan(out); perr != nil {
			return fail(Planner, domain.FailureFatal, "unparseable plan: "+perr.Error(),
				"I could not come up with an analysis plan for this question."), nil
		}
	}

	if raw, err := json.Marshal(plan); err == nil {
		emit(domain.EventJSON, string(raw))
	}
	u := merge(resetStep(), domain.Update{
		KeyPlan:                plan,
		KeyPlanCurrentStep:     1,
		KeyPlanValidationError: nil,
		KeyPlanApproved:        false,
		KeyPlanNextNode:        nil,
		KeyPlanFinished:        nil,
		KeyStepResults:         nil,
	})
	if plan.ThoughtProcess != "" {
		u[KeyThoughts] = []string{plan.ThoughtProcess}
	}
	return u, nil
}

func parsePlan(out string) (domain.Plan, error) {
	var plan domain.Plan
	if err := llmjson.Decode(out, &plan); err != nil {
		return plan, err
	}
	if len(plan.ExecutionPlan) == 0 {
		return plan, errEmptyPlan
	}
	return plan.Normalize(), nil
}

func dialectOf(st *domain.State) string {
	if d := domain.ValueOr[string](st, KeyDialect); d != "" {
		return d
	}
	return "ANSI"
}

// planExecutor validates the step under the cursor and records where to go next.
func (n *nodes) planExecutor(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	plan, ok := domain.Value[domain.Plan](st, KeyPlan)
	if !ok {
		return nil, errors.New("plan executor reached without a plan")
	}
	next := func(id runtime.NodeID) domain.Update {
		return domain.Update{KeyPlanNextNode: string(id)}
	}

	if domain.ValueOr[bool](st, KeyHumanReviewEnabled) && !domain.ValueOr[bool](st, KeyPlanApproved) {
		return next(HumanFeedback), nil
	}

	cursor := domain.ValueOr[int](st, KeyPlanCurrentStep)
	if cursor < 1 {
		cursor = 1
	}
	step, ok := plan.Step(cursor)
	if !ok || domain.ValueOr[bool](st, KeyPlanFinished) {
		return next(ReportGenerator), nil
	}

	if err := step.Validate(); err != nil {
		count := domain.ValueOr[int](st, KeyPlanRepairCount) + 1
		if count > n.cfg.MaxPlanRepairs {
			return merge(next(End), fail(PlanExecutor, domain.FailureValidation,
				fmt.Sprintf("plan still invalid after %d repairs: %v", n.cfg.MaxPlanRepairs, err),
				"I could not produce a valid analysis plan for this question.")), nil
		}
		emit(domain.EventStatus, "Plan needs repair: "+err.Error())
		return domain.Update{
			KeyPlanRepairCount:     count,
			KeyPlanValidationError: err.Error(),
			KeyPlanNextNode:        string(Planner),
		}, nil
	}

	emit(domain.EventStatus, fmt.Sprintf("Step %d/%d: %s", cursor, len(plan.ExecutionPlan), step.Tool))
	switch step.Tool {
	case domain.ToolSQL:
		return next(SQLExecute), nil
	case domain.ToolPython:
		return next(PythonGenerate), nil
	default:
		return next(ReportGenerator), nil
	}
}

// humanFeedback applies the review decision supplied on resume.
func (n *nodes) humanFeedback(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	fb, ok := domain.Value[domain.HumanFeedback](st, KeyHumanFeedback)
	if !ok {
		return nil, errors.New("human feedback node entered without feedback")
	}
	if fb.Approved {
		emit(domain.EventStatus, "Plan approved")
		return domain.Update{KeyPlanApproved: true, KeyHumanFeedback: nil}, nil
	}
	emit(domain.EventStatus, "Plan rejected, replanning")
	u := domain.Update{KeyPlanApproved: false, KeyHumanFeedback: nil}
	if fb.Text != "" {
		u[KeyPlanFeedback] = []string{fb.Text}
	}
	return u, nil
}
