package domain

import (
	"fmt"
	"strings"
)

// ToolName names the node a plan step is executed by.
type ToolName string

const (
	ToolSQL    ToolName = "SQL_EXECUTE_NODE"
	ToolPython ToolName = "PYTHON_GENERATE_NODE"
	ToolReport ToolName = "REPORT_GENERATOR_NODE"
)

// Plan is what the planner produces once per planning round.
type Plan struct {
	ThoughtProcess string          `json:"thought_process"`
	ExecutionPlan  []ExecutionStep `json:"execution_plan"`
}

// ExecutionStep is one typed unit of work in a plan.
type ExecutionStep struct {
	StepNumber int            `json:"step"`
	Tool       ToolName       `json:"tool_to_use"`
	Parameters StepParameters `json:"tool_parameters"`
}

// StepParameters carries the tool input of a step.
type StepParameters struct {
	Instruction               string `json:"instruction"`
	SQLQuery                  string `json:"sql_query,omitempty"`
	Description               string `json:"description,omitempty"`
	SummaryAndRecommendations string `json:"summary_and_recommendations,omitempty"`
}

// Step returns the 1-indexed step n.
func (p Plan) Step(n int) (ExecutionStep, bool) {
	if n < 1 || n > len(p.ExecutionPlan) {
		return ExecutionStep{}, false
	}
	return p.ExecutionPlan[n-1], true
}

// WithSQL returns a copy of the plan where step n carries sql.
// The receiver is left untouched so committed state is never mutated in place.
func (p Plan) WithSQL(n int, sql string) Plan {
	out := Plan{ThoughtProcess: p.ThoughtProcess, ExecutionPlan: make([]ExecutionStep, len(p.ExecutionPlan))}
	copy(out.ExecutionPlan, p.ExecutionPlan)
	if n >= 1 && n <= len(out.ExecutionPlan) {
		out.ExecutionPlan[n-1].Parameters.SQLQuery = sql
	}
	return out
}

// Validate checks the step has what its tool needs.
func (s ExecutionStep) Validate() error {
	switch s.Tool {
	case "":
		return fmt.Errorf("step %d has no tool", s.StepNumber)
	case ToolSQL:
		if strings.TrimSpace(s.Parameters.Instruction) == "" && strings.TrimSpace(s.Parameters.SQLQuery) == "" {
			return fmt.Errorf("step %d: SQL step needs an instruction or a sql_query", s.StepNumber)
		}
	case ToolPython:
		if strings.TrimSpace(s.Parameters.Instruction) == "" {
			return fmt.Errorf("step %d: python step needs an instruction", s.StepNumber)
		}
	case ToolReport:
	default:
		return fmt.Errorf("step %d: unknown tool %q", s.StepNumber, s.Tool)
	}
	return nil
}

// Normalize renumbers steps by position so the cursor and StepNumber agree.
func (p Plan) Normalize() Plan {
	for i := range p.ExecutionPlan {
		p.ExecutionPlan[i].StepNumber = i + 1
		p.ExecutionPlan[i].Tool = ToolName(strings.ToUpper(strings.TrimSpace(string(p.ExecutionPlan[i].Tool))))
	}
	return p
}

// Markdown renders the plan as a numbered list for reviewers.
func (p Plan) Markdown() string {
	var b strings.Builder
	if t := strings.TrimSpace(p.ThoughtProcess); t != "" {
		fmt.Fprintf(&b, "> %s\n\n", t)
	}
	for _, s := range p.ExecutionPlan {
		text := s.Parameters.Instruction
		if text == "" {
			text = s.Parameters.Description
		}
		if text == "" {
			text = s.Parameters.SummaryAndRecommendations
		}
		fmt.Fprintf(&b, "%d. **%s** %s\n", s.StepNumber, s.Tool, strings.TrimSpace(text))
		if s.Parameters.SQLQuery != "" {
			fmt.Fprintf(&b, "   `%s`\n", s.Parameters.SQLQuery)
		}
	}
	return b.String()
}
