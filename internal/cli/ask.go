package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/aretw0/sqlgraph"
	"github.com/aretw0/sqlgraph/internal/presentation/tui"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/runner"
)

var stderr io.Writer = os.Stderr

// ErrRunFailed is returned when a run ends without a report.
var ErrRunFailed = errors.New("run failed")

// IOOptions select how a run talks to the user.
type IOOptions struct {
	// JSON switches to NDJSON events on stdout and JSON review decisions on stdin.
	JSON bool
	// Yes approves every plan without asking.
	Yes bool
	// MaxRejections stops a session rejected that many times. Zero is unlimited.
	MaxRejections int
	// ImageDir receives chart artifacts in text mode.
	ImageDir string
	// Quiet hides the banner.
	Quiet bool
}

// AskOptions are the inputs of the ask command.
type AskOptions struct {
	IOOptions
	Query     string
	ScopeID   string
	SessionID string
	Review    bool
}

// ResumeOptions are the inputs of the resume command.
type ResumeOptions struct {
	IOOptions
	SessionID string
	Reject    bool
	Feedback  string
}

// Ask runs one question through the review loop.
func Ask(ctx context.Context, app *App, opts AskOptions, in io.Reader, out io.Writer) (*sqlgraph.Result, error) {
	r := newRunner(app, opts.IOOptions, in, out)
	res, err := r.Run(ctx, sqlgraph.StartRequest{
		Query:              opts.Query,
		ScopeID:            opts.ScopeID,
		SessionID:          opts.SessionID,
		HumanReviewEnabled: opts.Review || app.Config.Workflow.HumanReview,
	})
	return report(res, err, opts.IOOptions, out)
}

// Resume answers a suspended session. Without Reject or Feedback the plan is approved.
func Resume(ctx context.Context, app *App, opts ResumeOptions, in io.Reader, out io.Writer) (*sqlgraph.Result, error) {
	r := newRunner(app, opts.IOOptions, in, out)
	res, err := r.Resume(ctx, sqlgraph.ResumeRequest{
		SessionID:    opts.SessionID,
		Approved:     !opts.Reject && opts.Feedback == "",
		FeedbackText: opts.Feedback,
	})
	return report(res, err, opts.IOOptions, out)
}

func newRunner(app *App, opts IOOptions, in io.Reader, out io.Writer) *runner.Runner {
	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(in, out)
	} else {
		var hopts []runner.TextHandlerOption
		if isTerminal(out) {
			if !opts.Quiet {
				tui.PrintBanner(out)
			}
			if render, err := tui.NewRenderer(0); err == nil {
				hopts = append(hopts, runner.WithTextHandlerRenderer(render))
			} else {
				app.Logger.Warn("markdown renderer unavailable", "err", err)
			}
		}
		if opts.ImageDir != "" {
			hopts = append(hopts, runner.WithImageDir(opts.ImageDir))
		}
		handler = runner.NewTextHandler(in, out, hopts...)
	}

	var reviewer runner.Reviewer
	switch {
	case opts.Yes:
		reviewer = runner.AutoApprove()
	case !opts.JSON && !isTerminal(in):
		// Nobody can answer a prompt on a pipe; leave the session suspended.
		reviewer = func(context.Context, runner.ReviewRequest) (domain.HumanFeedback, error) {
			return domain.HumanFeedback{}, io.EOF
		}
	default:
		reviewer = runner.ConfirmationReviewer(handler)
	}
	if opts.MaxRejections > 0 {
		reviewer = runner.MaxRejections(opts.MaxRejections, reviewer)
	}

	return runner.NewRunner(app.Engine,
		runner.WithLogger(app.Logger),
		runner.WithHandler(handler),
		runner.WithReviewer(reviewer),
	)
}

func report(res *sqlgraph.Result, err error, opts IOOptions, out io.Writer) (*sqlgraph.Result, error) {
	if err != nil {
		return res, err
	}
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(map[string]any{"type": "result", "payload": res}); err != nil {
			return res, err
		}
	} else {
		switch res.Status {
		case sqlgraph.StatusCompleted:
			if res.SQL != "" {
				fmt.Fprintf(out, "\n%s\n%s\n", tui.Status(out, "SQL"), res.SQL)
			}
		case sqlgraph.StatusAwaitingReview:
		default:
			fmt.Fprintln(out, tui.Status(out, fmt.Sprintf("session %s %s", res.SessionID, res.Status)))
		}
	}
	if res.Status == sqlgraph.StatusFailed {
		return res, fmt.Errorf("%w: %s", ErrRunFailed, res.Message)
	}
	return res, nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
