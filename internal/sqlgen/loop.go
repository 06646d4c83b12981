// Package sqlgen generates, scores and repairs SQL with a bounded number of
// model rounds.
package sqlgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/sqlgraph/internal/llmjson"
	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/internal/prompt"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// Defaults of the repair loop.
const (
	DefaultMaxRounds      = 3
	DefaultThreshold      = 0.95
	SecurityWarnThreshold = 0.7
)

// Reason kinds carried into repair prompts.
const (
	ReasonExecution = "execution_error"
	ReasonSemantic  = "semantic"
)

// Request describes one synthesis or repair.
type Request struct {
	Query       string
	Instruction string
	Dialect     string
	Schema      string
	Evidence    string
	// ExistingSQL is empty for fresh generation.
	ExistingSQL string
	Reason      string
	ReasonKind  string
}

// Candidate is one model output and its score.
type Candidate struct {
	Round int
	SQL   string
	Score Score
}

// Result is the accepted candidate. SQL is empty when every round failed.
type Result struct {
	SQL        string
	Score      Score
	Rounds     int
	Candidates []Candidate
}

// Loop runs the synthesis/repair rounds.
type Loop struct {
	llm       ports.LLM
	maxRounds int
	threshold float64
	logger    *slog.Logger
	onRound   func(ctx context.Context, round int, total float64)
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxRounds bounds the number of model calls.
func WithMaxRounds(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithThreshold sets the total score accepted without further rounds.
func WithThreshold(t float64) Option {
	return func(l *Loop) {
		if t > 0 {
			l.threshold = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRoundHook is called after every scored round.
func WithRoundHook(fn func(ctx context.Context, round int, total float64)) Option {
	return func(l *Loop) {
		l.onRound = fn
	}
}

// NewLoop creates a repair loop over llm.
func NewLoop(llm ports.LLM, opts ...Option) *Loop {
	l := &Loop{
		llm:       llm,
		maxRounds: DefaultMaxRounds,
		threshold: DefaultThreshold,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxRounds returns the configured round bound.
func (l *Loop) MaxRounds() int {
	return l.maxRounds
}

// Run performs at most MaxRounds model calls and returns the best candidate.
// Model errors consume a round; only context cancellation is returned as an error.
// progress, when set, receives one line per round for display.
func (l *Loop) Run(ctx context.Context, req Request, progress func(string)) (Result, error) {
	var (
		res  Result
		best *Candidate
	)
	say := func(format string, args ...any) {
		if progress != nil {
			progress(fmt.Sprintf(format, args...))
		}
	}

	for round := 1; round <= l.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rounds = round

		p, err := l.promptFor(req, best)
		if err != nil {
			return res, err
		}
		out, err := l.llm.Complete(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			l.logger.Warn("sql round failed", "round", round, "error", err)
			say("round %d: model call failed", round)
			continue
		}

		sql := Clean(out)
		if sql == "" {
			l.logger.Warn("sql round returned nothing", "round", round)
			say("round %d: empty candidate", round)
			continue
		}

		a := Evaluate(sql)
		cand := Candidate{Round: round, SQL: sql, Score: a.Score}
		res.Candidates = append(res.Candidates, cand)
		if l.onRound != nil {
			l.onRound(ctx, round, a.Total)
		}
		say("round %d: score %.2f (syntax %.2f, security %.2f, performance %.2f)", round, a.Total, a.Syntax, a.Security, a.Performance)

		if best == nil || cand.Score.Total > best.Score.Total {
			c := cand
			best = &c
		}
		if best.Score.Total >= l.threshold {
			break
		}
	}

	if best == nil {
		return res, nil
	}
	res.SQL = l.finalize(best.SQL)
	res.Score = best.Score
	return res, nil
}

func (l *Loop) promptFor(req Request, best *Candidate) (ports.Prompt, error) {
	data := map[string]any{
		"Query":       req.Query,
		"Instruction": req.Instruction,
		"Dialect":     dialectName(req.Dialect),
		"Schema":      req.Schema,
		"Evidence":    req.Evidence,
		"Reason":      req.Reason,
		"ReasonKind":  req.ReasonKind,
	}
	switch {
	case best != nil:
		data["SQL"] = best.SQL
		data["Total"] = best.Score.Total
		data["Issues"] = Evaluate(best.SQL).Issues
		return prompt.Build(prompt.SQLOptimize, data)
	case strings.TrimSpace(req.ExistingSQL) != "":
		data["SQL"] = req.ExistingSQL
		return prompt.Build(prompt.SQLRepair, data)
	default:
		return prompt.Build(prompt.SQLGenerate, data)
	}
}

func (l *Loop) finalize(sql string) string {
	out := Finalize(sql)
	if s := SecurityOnly(out); s < SecurityWarnThreshold {
		l.logger.Warn("accepted sql is below the security threshold", "security", s, "sql", out)
	}
	return out
}

// Clean strips fences and surrounding prose markers from a model answer.
func Clean(out string) string {
	s := llmjson.StripFences(out)
	if i := strings.Index(strings.ToUpper(s), "SQL:"); i == 0 {
		s = s[4:]
	}
	return strings.TrimSpace(s)
}

// Finalize trims sql and guarantees a terminating semicolon.
func Finalize(sql string) string {
	s := strings.TrimSpace(sql)
	if s == "" {
		return ""
	}
	s = strings.TrimRight(s, "; \t\n")
	return s + ";"
}

func dialectName(d string) string {
	if d == "" {
		return "ANSI"
	}
	return d
}
