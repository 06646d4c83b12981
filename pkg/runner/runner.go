package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/sqlgraph"
	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Engine is the part of *sqlgraph.Engine the runner drives.
type Engine interface {
	Start(ctx context.Context, req sqlgraph.StartRequest, sink domain.EventSink) (*sqlgraph.Result, error)
	Resume(ctx context.Context, req sqlgraph.ResumeRequest, sink domain.EventSink) (*sqlgraph.Result, error)
}

// Runner handles the start/review/resume loop of an Engine using an IOHandler.
type Runner struct {
	Engine  Engine
	Handler IOHandler
	// Reviewer decides suspended plans. Defaults to asking Handler.
	Reviewer Reviewer
	Logger   *slog.Logger

	signals bool
}

// NewRunner creates a Runner with a TextHandler on stdin and stdout.
func NewRunner(engine Engine, opts ...Option) *Runner {
	r := &Runner{Engine: engine, signals: true}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	if r.Reviewer == nil {
		r.Reviewer = ConfirmationReviewer(r.Handler)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run starts a question and keeps resuming it through review rounds.
func (r *Runner) Run(ctx context.Context, req sqlgraph.StartRequest) (*sqlgraph.Result, error) {
	ctx, done := r.bind(ctx)
	defer done()

	res, err := r.Engine.Start(ctx, req, r.sink(ctx))
	return r.loop(ctx, res, err)
}

// Resume answers a suspended session and continues the loop.
func (r *Runner) Resume(ctx context.Context, req sqlgraph.ResumeRequest) (*sqlgraph.Result, error) {
	ctx, done := r.bind(ctx)
	defer done()

	res, err := r.Engine.Resume(ctx, req, r.sink(ctx))
	return r.loop(ctx, res, err)
}

func (r *Runner) loop(ctx context.Context, res *sqlgraph.Result, err error) (*sqlgraph.Result, error) {
	for err == nil && res.Status == sqlgraph.StatusAwaitingReview {
		review := ReviewRequest{SessionID: res.SessionID}
		if res.Plan != nil {
			review.Plan = *res.Plan
		}

		fb, rerr := r.Reviewer(ctx, review)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || ctx.Err() != nil {
				r.Logger.Debug("review abandoned", "session_id", res.SessionID, "err", rerr)
				_ = r.Handler.SystemOutput(ctx, fmt.Sprintf("Session %s is waiting for review. Resume it with: sqlgraph resume %s", res.SessionID, res.SessionID))
				return res, nil
			}
			return res, fmt.Errorf("review failed: %w", rerr)
		}

		r.Logger.Debug("review decided", "session_id", res.SessionID, "approved", fb.Approved)
		res, err = r.Engine.Resume(ctx, sqlgraph.ResumeRequest{
			SessionID:    res.SessionID,
			Approved:     fb.Approved,
			FeedbackText: fb.Text,
		}, r.sink(ctx))
	}
	return res, err
}

func (r *Runner) sink(ctx context.Context) domain.EventSink {
	return func(e domain.Event) {
		if err := r.Handler.Output(ctx, e); err != nil {
			r.Logger.Warn("failed to write event", "type", e.Type, "err", err)
		}
	}
}

func (r *Runner) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	if !r.signals {
		return context.WithCancel(ctx)
	}
	sm := NewSignalManager()
	ctx, cancel := sm.Bind(ctx)
	return ctx, func() {
		cancel()
		sm.Stop()
	}
}
