package workflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/sqlgraph/internal/llmjson"
	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

const maxOutputBytes = 16 << 10

func (n *nodes) pythonGenerate(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	_, cursor, step, err := currentStep(st)
	if err != nil {
		return nil, err
	}
	p, err := prompt.Build(prompt.PythonGenerate, map[string]any{
		"Instruction": step.Parameters.Instruction,
		"Query":       canonicalQuery(st),
		"LastError":   domain.ValueOr[string](st, KeyPythonError),
	})
	if err != nil {
		return nil, err
	}

	emit(domain.EventStatus, fmt.Sprintf("Writing Python for step %d", cursor))
	out, err := n.LLM.Complete(ctx, p)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		// Counted like a failed run so the retry bound still applies.
		return domain.Update{
			KeyPythonCode:  "",
			KeyPythonError: "code generation failed: " + err.Error(),
		}, nil
	}
	return domain.Update{KeyPythonCode: llmjson.StripFences(out)}, nil
}

// pythonInput is the stdin payload: every SQL result recorded so far.
type pythonInput struct {
	Step    int        `json:"step"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (n *nodes) pythonExecute(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	_, cursor, _, err := currentStep(st)
	if err != nil {
		return nil, err
	}
	retryFailure := func(reason string) domain.Update {
		count := domain.ValueOr[int](st, KeyPythonRetryCount) + 1
		u := domain.Update{KeyPythonError: reason, KeyPythonRetryCount: count}
		if count > n.cfg.MaxPythonRetries {
			return merge(u, fail(PythonExecute, domain.FailureValidation,
				fmt.Sprintf("step %d: python failed %d times: %s", cursor, count, reason),
				"The analysis script kept failing, so the analysis was stopped."))
		}
		emit(domain.EventStatus, fmt.Sprintf("Python failed, retrying (%d/%d)", count, n.cfg.MaxPythonRetries))
		return u
	}

	if n.Runner == nil {
		return fail(PythonExecute, domain.FailureFatal, "no code runner configured",
			"Python analysis is not available in this deployment."), nil
	}
	code := domain.ValueOr[string](st, KeyPythonCode)
	if strings.TrimSpace(code) == "" {
		if prev := domain.ValueOr[string](st, KeyPythonError); prev != "" {
			return retryFailure(prev), nil
		}
		return retryFailure("no code was generated"), nil
	}

	var input []pythonInput
	for _, r := range orderedResults(st) {
		if r.Result == nil {
			continue
		}
		input = append(input, pythonInput{Step: r.StepNumber, Columns: r.Result.Columns, Rows: r.Result.Rows})
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	emit(domain.EventStatus, fmt.Sprintf("Running Python for step %d", cursor))
	res, err := n.Runner.Run(ctx, ports.CodeRequest{Language: "python", Code: code, Input: payload})
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		return retryFailure(err.Error()), nil
	}
	for _, a := range res.Artifacts {
		if strings.HasPrefix(a.MimeType, "image/") {
			emit(domain.EventImage, "data:"+a.MimeType+";base64,"+base64.StdEncoding.EncodeToString(a.Data))
		}
	}
	if !res.Success {
		reason := strings.TrimSpace(res.Stderr)
		if reason == "" {
			reason = "script exited with an error"
		}
		return retryFailure(truncate(reason, maxOutputBytes)), nil
	}

	output := truncate(res.Stdout, maxOutputBytes)
	return domain.Update{
		KeyPythonOutput: output,
		KeyPythonError:  nil,
		KeyStepResults: withStepResult(st, domain.StepResult{
			StepNumber: cursor,
			Tool:       domain.ToolPython,
			Output:     output,
		}),
	}, nil
}

func (n *nodes) pythonAnalyze(ctx context.Context, st *domain.State, emit runtime.Emitter) (domain.Update, error) {
	plan, cursor, step, err := currentStep(st)
	if err != nil {
		return nil, err
	}
	output := domain.ValueOr[string](st, KeyPythonOutput)
	p, err := prompt.Build(prompt.PythonAnalyze, map[string]any{
		"Query":       canonicalQuery(st),
		"Instruction": step.Parameters.Instruction,
		"Output":      output,
	})
	if err != nil {
		return nil, err
	}

	analysis, err := n.LLM.Complete(ctx, p)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		n.Logger.Warn("python analysis failed, keeping raw output", "error", err)
		analysis = output
	}
	analysis = strings.TrimSpace(analysis)
	if analysis != "" {
		emit(domain.EventMarkdown, analysis+"\n")
	}

	u := merge(advance(plan, cursor), domain.Update{
		KeyPythonAnalysis: analysis,
		KeyStepResults: withStepResult(st, domain.StepResult{
			StepNumber: cursor,
			Tool:       domain.ToolPython,
			Output:     analysis,
		}),
	})
	if analysis != "" {
		u[KeyThoughts] = []string{analysis}
	}
	return u, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...[truncated]"
}
