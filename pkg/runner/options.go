package runner

import (
	"log/slog"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithHandler configures the IOHandler. The default is a TextHandler on
// stdin and stdout.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithReviewer overrides how suspended plans are decided.
// The default asks the handler.
func WithReviewer(reviewer Reviewer) Option {
	return func(r *Runner) {
		r.Reviewer = reviewer
	}
}

// WithSignals toggles SIGINT/SIGTERM cancellation. It is on by default.
func WithSignals(enabled bool) Option {
	return func(r *Runner) {
		r.signals = enabled
	}
}
