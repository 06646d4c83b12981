package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPlan_StepIsOneIndexed(t *testing.T) {
	p := domain.Plan{ExecutionPlan: []domain.ExecutionStep{{StepNumber: 1}, {StepNumber: 2}}}

	_, ok := p.Step(0)
	assert.False(t, ok)
	s, ok := p.Step(2)
	assert.True(t, ok)
	assert.Equal(t, 2, s.StepNumber)
	_, ok = p.Step(3)
	assert.False(t, ok)
}

func TestPlan_WithSQLCopies(t *testing.T) {
	p := domain.Plan{ExecutionPlan: []domain.ExecutionStep{{StepNumber: 1, Tool: domain.ToolSQL}}}
	q := p.WithSQL(1, "SELECT 1;")

	assert.Empty(t, p.ExecutionPlan[0].Parameters.SQLQuery)
	assert.Equal(t, "SELECT 1;", q.ExecutionPlan[0].Parameters.SQLQuery)
}

func TestExecutionStep_Validate(t *testing.T) {
	tests := []struct {
		step    domain.ExecutionStep
		wantErr bool
	}{
		{domain.ExecutionStep{StepNumber: 1}, true},
		{domain.ExecutionStep{StepNumber: 1, Tool: "SHELL"}, true},
		{domain.ExecutionStep{StepNumber: 1, Tool: domain.ToolSQL}, true},
		{domain.ExecutionStep{StepNumber: 1, Tool: domain.ToolSQL, Parameters: domain.StepParameters{SQLQuery: "SELECT 1"}}, false},
		{domain.ExecutionStep{StepNumber: 1, Tool: domain.ToolPython}, true},
		{domain.ExecutionStep{StepNumber: 1, Tool: domain.ToolPython, Parameters: domain.StepParameters{Instruction: "plot"}}, false},
		{domain.ExecutionStep{StepNumber: 1, Tool: domain.ToolReport}, false},
	}
	for i, tt := range tests {
		err := tt.step.Validate()
		assert.Equal(t, tt.wantErr, err != nil, "case %d: %v", i, err)
	}
}

func TestPlan_Normalize(t *testing.T) {
	p := domain.Plan{ExecutionPlan: []domain.ExecutionStep{
		{StepNumber: 7, Tool: " sql_execute_node "},
		{StepNumber: 9, Tool: "report_generator_node"},
	}}.Normalize()

	assert.Equal(t, 1, p.ExecutionPlan[0].StepNumber)
	assert.Equal(t, domain.ToolSQL, p.ExecutionPlan[0].Tool)
	assert.Equal(t, 2, p.ExecutionPlan[1].StepNumber)
	assert.Equal(t, domain.ToolReport, p.ExecutionPlan[1].Tool)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, domain.IsTransient(fmt.Errorf("fetch: %w", domain.ErrTransient)))
	assert.True(t, domain.IsTransient(errors.New("dial tcp: connection refused")))
	assert.False(t, domain.IsTransient(errors.New("syntax error at or near SELEC")))
	assert.False(t, domain.IsTransient(nil))
	assert.Equal(t, domain.FailureFatal, domain.Classify(domain.ErrNoActiveDatasource))
}

func TestPlan_Markdown(t *testing.T) {
	p := domain.Plan{
		ThoughtProcess: "先查后报",
		ExecutionPlan: []domain.ExecutionStep{
			{StepNumber: 1, Tool: domain.ToolSQL, Parameters: domain.StepParameters{Instruction: "统计销售额", SQLQuery: "SELECT 1;"}},
			{StepNumber: 2, Tool: domain.ToolReport, Parameters: domain.StepParameters{SummaryAndRecommendations: "给出总额"}},
		},
	}
	assert.Equal(t, "> 先查后报\n\n1. **SQL_EXECUTE_NODE** 统计销售额\n   `SELECT 1;`\n2. **REPORT_GENERATOR_NODE** 给出总额\n", p.Markdown())
}
