package sqlgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/internal/workflow"
	"github.com/aretw0/sqlgraph/pkg/adapters/memory"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/session"
)

// Deps are the collaborators the workflow calls. LLM, Retriever, Database and
// Datasources are required.
type Deps = workflow.Deps

// Config tunes the workflow's bounds and thresholds.
type Config = workflow.Config

// DefaultConfig returns the workflow defaults.
func DefaultConfig() Config { return workflow.DefaultConfig() }

// Status is how a request ended.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusAwaitingReview Status = "awaiting_review"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
	StatusRunning        Status = "running"
)

var (
	// ErrSessionExists is returned when starting a session ID that is suspended.
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
)

// StartRequest opens a new workflow instance.
type StartRequest struct {
	Query              string `json:"query"`
	ScopeID            string `json:"scope_id"`
	HumanReviewEnabled bool   `json:"human_review_enabled,omitempty"`
	// SessionID is generated when empty.
	SessionID string `json:"session_id,omitempty"`
}

// ResumeRequest answers a review interrupt.
type ResumeRequest struct {
	SessionID    string `json:"session_id"`
	Approved     bool   `json:"approved"`
	FeedbackText string `json:"feedback_text,omitempty"`
}

// Result summarizes a finished request.
type Result struct {
	SessionID string          `json:"session_id"`
	Status    Status          `json:"status"`
	Report    string          `json:"report,omitempty"`
	SQL       string          `json:"sql,omitempty"`
	Plan      *domain.Plan    `json:"plan,omitempty"`
	Failure   *domain.Failure `json:"failure,omitempty"`
	// Message is the user-facing text of a failure.
	Message string `json:"message,omitempty"`
}

// SessionInfo lists a known session.
type SessionInfo struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// ReviewEvent is the json payload emitted when a run suspends for review.
type ReviewEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Plan      domain.Plan `json:"plan"`
}

// Engine runs natural-language questions through the workflow graph.
// It is safe for concurrent use; each request drives its own state.
type Engine struct {
	graph    *runtime.Compiled
	sessions *session.Manager
	logger   *slog.Logger
	newID    func() string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. It is also handed to the workflow when
// Deps.Logger is unset.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSessionManager sets where suspended sessions are kept.
// The default is an in-memory store.
func WithSessionManager(m *session.Manager) Option {
	return func(e *Engine) {
		e.sessions = m
	}
}

// New compiles the workflow and builds the engine.
func New(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{newID: uuid.NewString}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = e.logger
	}
	if e.sessions == nil {
		e.sessions = session.NewManager(memory.NewStore(), session.WithLogger(e.logger))
	}

	g, err := workflow.New(deps, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}
	e.graph = g
	return e, nil
}

// Graph returns the compiled workflow, for rendering and inspection.
func (e *Engine) Graph() *runtime.Compiled {
	return e.graph
}

// Start runs a new question until it completes, fails or suspends for review.
// Every call ends with exactly one complete or error event on sink.
func (e *Engine) Start(ctx context.Context, req StartRequest, sink domain.EventSink) (*Result, error) {
	sink = orNop(sink)
	id := req.SessionID
	if id == "" {
		id = e.newID()
	}
	res := &Result{SessionID: id}

	if strings.TrimSpace(req.Query) == "" || req.ScopeID == "" {
		return e.abort(res, sink, fmt.Errorf("%w: query and scope_id are required", ErrInvalidRequest))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	untrack, err := e.sessions.Track(id, cancel)
	if err != nil {
		return e.abort(res, sink, err)
	}
	defer untrack()

	if _, err := e.sessions.Load(ctx, id); err == nil {
		return e.abort(res, sink, fmt.Errorf("%w: %s", ErrSessionExists, id))
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return e.abort(res, sink, err)
	}

	st := e.graph.Registry().NewState()
	if err := st.Apply(domain.Update{
		workflow.KeyQuery:              req.Query,
		workflow.KeyScopeID:            req.ScopeID,
		workflow.KeySessionID:          id,
		workflow.KeyHumanReviewEnabled: req.HumanReviewEnabled,
	}); err != nil {
		return e.abort(res, sink, err)
	}

	e.logger.Info("run started", "session_id", id, "scope_id", req.ScopeID, "review", req.HumanReviewEnabled)
	out, err := e.graph.Run(runCtx, id, st, "", sink)
	return e.finish(ctx, res, out, err, sink)
}

// Resume applies review feedback to a suspended session and continues it.
// A checkpoint is consumed by the first resume; later calls get ErrSessionNotFound.
func (e *Engine) Resume(ctx context.Context, req ResumeRequest, sink domain.EventSink) (*Result, error) {
	sink = orNop(sink)
	res := &Result{SessionID: req.SessionID}
	if req.SessionID == "" {
		return e.abort(res, sink, fmt.Errorf("%w: session_id is required", ErrInvalidRequest))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	untrack, err := e.sessions.Track(req.SessionID, cancel)
	if err != nil {
		return e.abort(res, sink, err)
	}
	defer untrack()

	cp, err := e.sessions.Take(ctx, req.SessionID)
	if err != nil {
		return e.abort(res, sink, err)
	}
	// Until the graph runs again the checkpoint must survive a rejected resume.
	putBack := func(cause error) (*Result, error) {
		if err := e.sessions.Save(ctx, cp); err != nil {
			e.logger.Error("failed to restore checkpoint", "session_id", req.SessionID, "err", err)
		}
		return e.abort(res, sink, cause)
	}
	if runtime.NodeID(cp.NodeID) != workflow.HumanFeedback {
		return putBack(fmt.Errorf("%w: %s", domain.ErrNotSuspended, req.SessionID))
	}

	st, err := cp.Restore(e.graph.Registry())
	if err != nil {
		return putBack(fmt.Errorf("failed to restore session: %w", err))
	}
	feedback := domain.HumanFeedback{Approved: req.Approved, Text: strings.TrimSpace(req.FeedbackText)}
	if err := st.Set(workflow.KeyHumanFeedback, feedback); err != nil {
		return putBack(err)
	}

	e.logger.Info("run resumed", "session_id", req.SessionID, "approved", req.Approved)
	out, err := e.graph.Run(runCtx, req.SessionID, st, runtime.NodeID(cp.NodeID), sink)
	return e.finish(ctx, res, out, err, sink)
}

// Cancel stops a running instance, or discards a suspended one.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	if e.sessions.Cancel(sessionID) {
		e.logger.Info("run cancelled", "session_id", sessionID)
		return nil
	}
	if _, err := e.sessions.Load(ctx, sessionID); err != nil {
		return err
	}
	return e.sessions.Delete(ctx, sessionID)
}

// Checkpoint returns the stored checkpoint of a suspended session.
func (e *Engine) Checkpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Sessions lists running and suspended sessions, sorted by ID.
func (e *Engine) Sessions(ctx context.Context) ([]SessionInfo, error) {
	seen := make(map[string]bool)
	var out []SessionInfo
	for _, id := range e.sessions.Running() {
		seen[id] = true
		out = append(out, SessionInfo{ID: id, Status: StatusRunning})
	}
	stored, err := e.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range stored {
		if !seen[id] {
			out = append(out, SessionInfo{ID: id, Status: StatusAwaitingReview})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *Engine) finish(ctx context.Context, res *Result, out runtime.Outcome, runErr error, sink domain.EventSink) (*Result, error) {
	if out.State != nil {
		collect(res, out.State)
	}

	switch out.Status {
	case runtime.StatusInterrupted:
		cp, err := domain.NewCheckpoint(res.SessionID, string(out.Node), out.State)
		if err != nil {
			return e.abort(res, sink, fmt.Errorf("failed to checkpoint session: %w", err))
		}
		cp.Meta = map[string]string{"scope": domain.ValueOr[string](out.State, workflow.KeyScopeID)}
		if err := e.sessions.Save(ctx, cp); err != nil {
			return e.abort(res, sink, fmt.Errorf("failed to checkpoint session: %w", err))
		}
		review := ReviewEvent{Type: "human_review", SessionID: res.SessionID}
		if res.Plan != nil {
			review.Plan = *res.Plan
		}
		payload, _ := json.Marshal(review)
		sink(domain.Event{Type: domain.EventJSON, Node: string(out.Node), Payload: string(payload)})
		res.Status = StatusAwaitingReview
		sink(domain.Event{Type: domain.EventComplete, Payload: domain.PayloadAwaitingReview})
		e.logger.Info("run suspended for review", "session_id", res.SessionID)
		return res, nil

	case runtime.StatusCancelled:
		res.Status = StatusCancelled
		res.Message = "The request was cancelled."
		sink(domain.Event{Type: domain.EventError, Node: string(out.Node), Payload: res.Message})
		return res, runErr

	case runtime.StatusFailed:
		res.Status = StatusFailed
		if res.Message == "" {
			res.Message = "The request could not be completed because of an internal error."
		}
		e.logger.Error("run failed", "session_id", res.SessionID, "node", out.Node, "err", runErr)
		sink(domain.Event{Type: domain.EventError, Node: string(out.Node), Payload: res.Message})
		return res, runErr
	}

	if res.Failure != nil {
		res.Status = StatusFailed
		if res.Message == "" {
			res.Message = res.Failure.Message
		}
		e.logger.Warn("run ended with failure", "session_id", res.SessionID, "kind", res.Failure.Kind, "node", res.Failure.Node, "msg", res.Failure.Message)
		sink(domain.Event{Type: domain.EventError, Node: res.Failure.Node, Payload: res.Message})
		return res, nil
	}

	res.Status = StatusCompleted
	sink(domain.Event{Type: domain.EventComplete, Payload: string(StatusCompleted)})
	e.logger.Info("run completed", "session_id", res.SessionID)
	return res, nil
}

// abort ends a request that never reached, or could not leave, the graph.
func (e *Engine) abort(res *Result, sink domain.EventSink, err error) (*Result, error) {
	res.Status = StatusFailed
	res.Message = err.Error()
	sink(domain.Event{Type: domain.EventError, Payload: res.Message})
	return res, err
}

// collect copies the user-facing outputs out of the final state.
func collect(res *Result, st *domain.State) {
	if plan, ok := domain.Value[domain.Plan](st, workflow.KeyPlan); ok {
		res.Plan = &plan
	}
	res.Report = domain.ValueOr[string](st, workflow.KeyReport)
	if f, ok := domain.Value[domain.Failure](st, workflow.KeyFailure); ok {
		res.Failure = &f
	}
	res.Message = domain.ValueOr[string](st, workflow.KeyTerminalMessage)

	results := domain.ValueOr[map[int]domain.StepResult](st, workflow.KeyStepResults)
	last := -1
	for n, r := range results {
		if r.SQL != "" && n > last {
			last = n
			res.SQL = r.SQL
		}
	}
	if res.SQL == "" && res.Plan != nil {
		for _, s := range res.Plan.ExecutionPlan {
			if s.Parameters.SQLQuery != "" {
				res.SQL = s.Parameters.SQLQuery
			}
		}
	}
}

func orNop(sink domain.EventSink) domain.EventSink {
	if sink == nil {
		return func(domain.Event) {}
	}
	return sink
}
