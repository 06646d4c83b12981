package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// MaxArtifactSize caps a single file collected from the output directory.
const MaxArtifactSize = 8 << 20

// Runner implements ports.CodeRunner by running scripts in a local interpreter.
// Each run gets a scratch directory; the script sees it as its working
// directory and as OUTPUT_DIR for files it wants returned.
//
// Isolation is whatever the host gives the interpreter. Deploy it inside a
// container or a jail when the model output is untrusted.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new sandbox runner.
func NewRunner(cfg Config, opts ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg.withDefaults(), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req.Code with req.Input on stdin.
// A script that exits non-zero or times out yields Success=false, not an error.
// Errors are reserved for the runner itself failing (no interpreter, no disk).
func (r *Runner) Run(ctx context.Context, req ports.CodeRequest) (ports.CodeResult, error) {
	if lang := strings.ToLower(req.Language); lang != "" && lang != "python" {
		return ports.CodeResult{}, fmt.Errorf("unsupported language %q", req.Language)
	}

	dir, err := os.MkdirTemp(r.cfg.WorkDir, "sqlgraph-run-")
	if err != nil {
		return ports.CodeResult{}, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return ports.CodeResult{}, fmt.Errorf("failed to create output dir: %w", err)
	}
	script := filepath.Join(dir, "main.py")
	if err := os.WriteFile(script, []byte(req.Code), 0o600); err != nil {
		return ports.CodeResult{}, fmt.Errorf("failed to write script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Python, script)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(req.Input)
	cmd.WaitDelay = time.Second

	env := []string{"OUTPUT_DIR=" + outDir, "MPLBACKEND=Agg", "PYTHONIOENCODING=utf-8"}
	for k, v := range r.cfg.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	r.logger.Debug("sandbox run finished", "duration", time.Since(start), "err", runErr)

	result := ports.CodeResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Success: runErr == nil,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			result.Stderr = strings.TrimSpace(result.Stderr + fmt.Sprintf("\nexecution timed out after %s", r.cfg.Timeout))
			return result, nil
		case ctx.Err() != nil:
			return result, ctx.Err()
		case errors.As(runErr, &exitErr):
			return result, nil
		default:
			return result, fmt.Errorf("failed to start interpreter %q: %w", r.cfg.Python, runErr)
		}
	}

	artifacts, err := collectArtifacts(outDir)
	if err != nil {
		r.logger.Warn("failed to collect artifacts", "err", err)
	}
	result.Artifacts = artifacts
	return result, nil
}

func collectArtifacts(dir string) ([]ports.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []ports.Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() > MaxArtifactSize {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return out, err
		}
		out = append(out, ports.Artifact{
			Name:     e.Name(),
			MimeType: mimeType(e.Name()),
			Data:     data,
		})
	}
	return out, nil
}

func mimeType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}
