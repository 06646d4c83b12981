package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/internal/sqlgen"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/schema"
)

// sqlGenerate writes or repairs the SQL of the current step. The reason is
// taken from sql_execute_error or semantic_recommendation; the triggering key
// is cleared once new SQL is in the plan.
func (n *nodes) sqlGenerate(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	plan, cursor, step, err := currentStep(st)
	if err != nil {
		return nil, err
	}

	count := domain.ValueOr[int](st, KeySQLGenerateCount) + 1
	if count > n.cfg.MaxSQLRepairs {
		return merge(domain.Update{KeySQLGenerateFailed: true}, fail(SQLGenerate, domain.FailureValidation,
			fmt.Sprintf("step %d: no working SQL after %d attempts", cursor, n.cfg.MaxSQLRepairs),
			"I could not write a working query for this question.")), nil
	}

	req := sqlgen.Request{
		Query:       canonicalQuery(st),
		Instruction: step.Parameters.Instruction,
		Dialect:     domain.ValueOr[string](st, KeyDialect),
		Schema:      schema.Render(domain.ValueOr[schema.Schema](st, KeySchema)),
		Evidence:    evidenceText(st),
		ExistingSQL: step.Parameters.SQLQuery,
	}
	switch {
	case st.Has(KeySQLExecuteError):
		req.Reason = domain.ValueOr[string](st, KeySQLExecuteError)
		req.ReasonKind = sqlgen.ReasonExecution
	case st.Has(KeySemanticRecommendation):
		req.Reason = domain.ValueOr[string](st, KeySemanticRecommendation)
		req.ReasonKind = sqlgen.ReasonSemantic
	}
	if req.Instruction == "" {
		req.Instruction = step.Parameters.Description
	}

	if req.ExistingSQL == "" {
		emit(domain.EventStatus, fmt.Sprintf("Writing SQL for step %d", cursor))
	} else {
		emit(domain.EventStatus, fmt.Sprintf("Repairing SQL for step %d (attempt %d)", cursor, count))
	}
	res, err := n.loop.Run(ctx, req, func(line string) { emit(domain.EventStatus, line) })
	if err != nil {
		return nil, err
	}
	if res.SQL == "" {
		return merge(domain.Update{KeySQLGenerateFailed: true, KeySQLGenerateCount: count}, fail(SQLGenerate, domain.FailureFatal,
			fmt.Sprintf("step %d: every candidate was empty", cursor),
			"I could not write a query for this question.")), nil
	}

	emit(domain.EventMarkdown, "```sql\n"+res.SQL+"\n```\n")
	return domain.Update{
		KeyPlan:                   plan.WithSQL(cursor, res.SQL),
		KeySQLGenerateCount:       count,
		KeySQLExecuteError:        nil,
		KeySemanticRecommendation: nil,
	}, nil
}

// sqlExecute runs the step SQL. Database errors are stored for repair.
func (n *nodes) sqlExecute(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	_, cursor, step, err := currentStep(st)
	if err != nil {
		return nil, err
	}
	sql := strings.TrimSpace(step.Parameters.SQLQuery)
	if sql == "" {
		return domain.Update{KeySQLExecuteError: fmt.Sprintf("step %d has no SQL yet", cursor)}, nil
	}

	scope := domain.ValueOr[string](st, KeyScopeID)
	ds, err := n.Datasources.Active(ctx, scope)
	if err != nil || ds == nil {
		if err != nil && canceled(ctx, err) {
			return nil, err
		}
		msg := domain.ErrNoActiveDatasource.Error()
		if err != nil {
			msg = err.Error()
		}
		return fail(SQLExecute, domain.FailureFatal, msg, "No active datasource is configured for this workspace."), nil
	}

	emit(domain.EventStatus, fmt.Sprintf("Running SQL for step %d", cursor))
	res, err := n.Database.Query(ctx, *ds, sql)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		n.Logger.Info("sql execution failed", "step", cursor, "error", err)
		emit(domain.EventStatus, "Query failed: "+err.Error())
		return domain.Update{KeySQLExecuteError: err.Error()}, nil
	}

	if raw, err := json.Marshal(res); err == nil {
		emit(domain.EventJSON, string(raw))
	}
	return domain.Update{
		KeySQLExecuteError: nil,
		KeyStepResults: withStepResult(st, domain.StepResult{
			StepNumber: cursor,
			Tool:       domain.ToolSQL,
			SQL:        sql,
			Result:     res,
		}),
	}, nil
}

// semanticConsistency asks whether the executed SQL answers the step. A
// reply starting with the fail marker keeps the cursor and stores the reply
// as the repair recommendation.
func (n *nodes) semanticConsistency(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	plan, cursor, step, err := currentStep(st)
	if err != nil {
		return nil, err
	}
	description := step.Parameters.Description
	if description == "" {
		description = step.Parameters.Instruction
	}
	p, err := prompt.Build(prompt.Semantic, map[string]any{
		"FailMarker":  n.cfg.SemanticFailMarker,
		"Description": description,
		"SQL":         step.Parameters.SQLQuery,
		"Schema":      schema.Render(domain.ValueOr[schema.Schema](st, KeySchema)),
		"Evidence":    evidenceText(st),
	})
	if err != nil {
		return nil, err
	}

	emit(domain.EventStatus, fmt.Sprintf("Checking step %d answers the question", cursor))
	out, err := n.LLM.Complete(ctx, p)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		return fail(SemanticConsistency, domain.Classify(err), err.Error(),
			"The language model is unavailable, please try again later."), nil
	}

	if Rejects(out, n.cfg.SemanticFailMarker) {
		emit(domain.EventStatus, "Semantic check failed: "+strings.TrimSpace(out))
		return domain.Update{KeySemanticRecommendation: strings.TrimSpace(out)}, nil
	}
	emit(domain.EventStatus, fmt.Sprintf("Step %d done", cursor))
	return advance(plan, cursor), nil
}

// Rejects reports whether a semantic verdict starts with marker, ignoring leading whitespace.
func Rejects(verdict, marker string) bool {
	return strings.HasPrefix(strings.TrimLeftFunc(verdict, unicode.IsSpace), marker)
}
