package workflow

import (
	"testing"

	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

func stateWith(t *testing.T, u domain.Update) *domain.State {
	t.Helper()
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	st := reg.NewState()
	if err := st.Apply(u); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return st
}

func TestDispatchers(t *testing.T) {
	failure := domain.Failure{Kind: domain.FailureFatal, Node: "x", Message: "m"}

	tests := []struct {
		name     string
		dispatch runtime.Dispatcher
		state    domain.Update
		want     runtime.NodeID
	}{
		{"rewrite ok", afterRewrite, nil, KeywordExtract},
		{"rewrite failed", afterRewrite, domain.Update{KeyFailure: failure}, End},
		{"recall ok", afterSchemaRecall, nil, TableRelation},
		{"recall fatal", afterSchemaRecall, domain.Update{KeyFailure: failure}, End},
		{"relation ok", afterTableRelation(3), nil, Planner},
		{"relation retry", afterTableRelation(3), domain.Update{KeyTableRelationError: "busy", KeyTableRelationRetryCount: 3}, TableRelation},
		{"relation exhausted", afterTableRelation(3), domain.Update{KeyTableRelationError: "busy", KeyTableRelationRetryCount: 4}, End},
		{"planner ok", afterPlanner, nil, PlanExecutor},
		{"executor sql", afterPlanExecutor, domain.Update{KeyPlanNextNode: string(SQLExecute)}, SQLExecute},
		{"executor review", afterPlanExecutor, domain.Update{KeyPlanNextNode: string(HumanFeedback)}, HumanFeedback},
		{"executor replan", afterPlanExecutor, domain.Update{KeyPlanNextNode: string(Planner)}, Planner},
		{"executor unknown", afterPlanExecutor, domain.Update{KeyPlanNextNode: "bogus"}, End},
		{"executor failed", afterPlanExecutor, domain.Update{KeyPlanNextNode: string(SQLExecute), KeyFailure: failure}, End},
		{"execute error", afterSQLExecute, domain.Update{KeySQLExecuteError: "syntax"}, SQLGenerate},
		{"execute ok", afterSQLExecute, nil, SemanticConsistency},
		{"generate ok", afterSQLGenerate, nil, SQLExecute},
		{"generate failed", afterSQLGenerate, domain.Update{KeySQLGenerateFailed: true}, End},
		{"semantic pass", afterSemantic, nil, PlanExecutor},
		{"semantic fail", afterSemantic, domain.Update{KeySemanticRecommendation: "不通过"}, SQLGenerate},
		{"python ok", afterPythonExecute(3), nil, PythonAnalyze},
		{"python retry", afterPythonExecute(3), domain.Update{KeyPythonError: "x", KeyPythonRetryCount: 1}, PythonGenerate},
		{"python exhausted", afterPythonExecute(3), domain.Update{KeyPythonError: "x", KeyPythonRetryCount: 4}, End},
		{"review approved", afterHumanFeedback, domain.Update{KeyPlanApproved: true}, PlanExecutor},
		{"review rejected", afterHumanFeedback, nil, Planner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dispatch(stateWith(t, tt.state)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRejects(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"不通过：聚合口径错误", true},
		{"\n  不通过", true},
		{"通过", false},
		{"结论：不通过", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Rejects(tt.verdict, "不通过"); got != tt.want {
			t.Errorf("Rejects(%q) = %v, want %v", tt.verdict, got, tt.want)
		}
	}
}

func TestAdvance_NeverPassesLastStep(t *testing.T) {
	plan := domain.Plan{ExecutionPlan: []domain.ExecutionStep{{StepNumber: 1}, {StepNumber: 2}}}

	u := advance(plan, 1)
	if u[KeyPlanCurrentStep] != 2 {
		t.Fatalf("cursor = %v, want 2", u[KeyPlanCurrentStep])
	}
	u = advance(plan, 2)
	if _, moved := u[KeyPlanCurrentStep]; moved {
		t.Fatalf("cursor moved past the last step")
	}
	if u[KeyPlanFinished] != true {
		t.Fatalf("plan not marked finished")
	}
}

func TestMarkdownTable(t *testing.T) {
	res := &domain.QueryResult{Columns: []string{"a", "b|c"}, Rows: [][]string{{"1", "2"}, {"3", "4"}}}
	want := "| a | b\\|c |\n| --- | --- |\n| 1 | 2 |\n\n_1 more rows omitted_\n"
	if got := markdownTable(res, 1); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
