package workflow

import (
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/schema"
)

// State keys.
const (
	// Inputs.
	KeyQuery              = "query"
	KeyScopeID            = "scope_id"
	KeySessionID          = "session_id"
	KeyHumanReviewEnabled = "human_review_enabled"

	// Understanding and recall.
	KeyRewriteOutput           = "rewrite_output"
	KeyKeywords                = "keywords"
	KeyEvidence                = "evidence"
	KeyDialect                 = "dialect"
	KeyTableDocuments          = "table_documents"
	KeyColumnDocuments         = "column_documents"
	KeySchema                  = "schema"
	KeyTableRelationRetryCount = "table_relation_retry_count"
	KeyTableRelationError      = "table_relation_error"

	// Plan.
	KeyPlan                = "plan"
	KeyPlanCurrentStep     = "plan_current_step"
	KeyPlanRepairCount     = "plan_repair_count"
	KeyPlanValidationError = "plan_validation_error"
	KeyPlanNextNode        = "plan_next_node"
	KeyPlanApproved        = "plan_approved"
	KeyPlanFeedback        = "plan_feedback"
	KeyPlanFinished        = "plan_finished"

	// SQL.
	KeySQLExecuteError        = "sql_execute_error"
	KeySemanticRecommendation = "semantic_recommendation"
	KeySQLGenerateCount       = "sql_generate_count"
	KeySQLGenerateFailed      = "sql_generate_failed"
	KeyStepResults            = "step_results"

	// Python.
	KeyPythonCode       = "python_code"
	KeyPythonOutput     = "python_output"
	KeyPythonError      = "python_error"
	KeyPythonRetryCount = "python_retry_count"
	KeyPythonAnalysis   = "python_analysis"

	// Review and output.
	KeyHumanFeedback   = "human_feedback"
	KeyReport          = "report"
	KeyFailure         = "failure"
	KeyTerminalMessage = "terminal_message"
	KeyThoughts        = "thoughts"
)

// NewRegistry declares every key the workflow reads or writes.
func NewRegistry() (*domain.Registry, error) {
	return domain.NewRegistry(
		domain.Declare[string](KeyQuery, domain.Replace).Require(),
		domain.Declare[string](KeyScopeID, domain.Replace).Require(),
		domain.Declare[string](KeySessionID, domain.Replace),
		domain.Declare[bool](KeyHumanReviewEnabled, domain.Replace),

		domain.Declare[string](KeyRewriteOutput, domain.Replace),
		domain.Declare[[]string](KeyKeywords, domain.Replace),
		domain.Declare[[]string](KeyEvidence, domain.Replace),
		domain.Declare[string](KeyDialect, domain.Replace),
		domain.Declare[[]domain.RetrievedDocument](KeyTableDocuments, domain.Replace),
		domain.Declare[[]domain.RetrievedDocument](KeyColumnDocuments, domain.Replace),
		domain.Declare[schema.Schema](KeySchema, domain.Replace),
		domain.Declare[int](KeyTableRelationRetryCount, domain.Replace),
		domain.Declare[string](KeyTableRelationError, domain.Replace),

		domain.Declare[domain.Plan](KeyPlan, domain.Replace),
		domain.Declare[int](KeyPlanCurrentStep, domain.Replace),
		domain.Declare[int](KeyPlanRepairCount, domain.Replace),
		domain.Declare[string](KeyPlanValidationError, domain.Replace),
		domain.Declare[string](KeyPlanNextNode, domain.Replace),
		domain.Declare[bool](KeyPlanApproved, domain.Replace),
		domain.Declare[[]string](KeyPlanFeedback, domain.Append),
		domain.Declare[bool](KeyPlanFinished, domain.Replace),

		domain.Declare[string](KeySQLExecuteError, domain.Replace),
		domain.Declare[string](KeySemanticRecommendation, domain.Replace),
		domain.Declare[int](KeySQLGenerateCount, domain.Replace),
		domain.Declare[bool](KeySQLGenerateFailed, domain.Replace),
		domain.Declare[map[int]domain.StepResult](KeyStepResults, domain.Replace),

		domain.Declare[string](KeyPythonCode, domain.Replace),
		domain.Declare[string](KeyPythonOutput, domain.Replace),
		domain.Declare[string](KeyPythonError, domain.Replace),
		domain.Declare[int](KeyPythonRetryCount, domain.Replace),
		domain.Declare[string](KeyPythonAnalysis, domain.Replace),

		domain.Declare[domain.HumanFeedback](KeyHumanFeedback, domain.Replace),
		domain.Declare[string](KeyReport, domain.Append),
		domain.Declare[domain.Failure](KeyFailure, domain.Replace),
		domain.Declare[string](KeyTerminalMessage, domain.Replace),
		domain.Declare[[]string](KeyThoughts, domain.Append),
	)
}

// resetStep clears the per-step counters and failure keys.
func resetStep() domain.Update {
	return domain.Update{
		KeySQLExecuteError:        nil,
		KeySemanticRecommendation: nil,
		KeySQLGenerateCount:       nil,
		KeySQLGenerateFailed:      nil,
		KeyPythonCode:             nil,
		KeyPythonOutput:           nil,
		KeyPythonError:            nil,
		KeyPythonRetryCount:       nil,
	}
}

// advance moves past the step at cursor. The cursor never exceeds the plan
// length; finishing the last step sets plan_finished instead.
func advance(plan domain.Plan, cursor int) domain.Update {
	u := resetStep()
	if cursor >= len(plan.ExecutionPlan) {
		u[KeyPlanFinished] = true
		return u
	}
	u[KeyPlanCurrentStep] = cursor + 1
	return u
}

func merge(updates ...domain.Update) domain.Update {
	out := domain.Update{}
	for _, u := range updates {
		for k, v := range u {
			out[k] = v
		}
	}
	return out
}
