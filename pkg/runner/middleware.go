package runner

import (
	"context"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Reviewer decides a suspended plan.
type Reviewer func(ctx context.Context, req ReviewRequest) (domain.HumanFeedback, error)

// AutoApprove accepts every plan. It suits headless runs where review was
// requested only to record the plan.
func AutoApprove() Reviewer {
	return func(context.Context, ReviewRequest) (domain.HumanFeedback, error) {
		return domain.HumanFeedback{Approved: true}, nil
	}
}

// ConfirmationReviewer asks the handler.
func ConfirmationReviewer(handler IOHandler) Reviewer {
	return handler.Review
}

// MaxRejections approves once next has rejected n plans of the same run.
// Rejections replan through the model, so an unbounded loop is never useful.
func MaxRejections(n int, next Reviewer) Reviewer {
	seen := make(map[string]int)
	return func(ctx context.Context, req ReviewRequest) (domain.HumanFeedback, error) {
		if seen[req.SessionID] >= n {
			return domain.HumanFeedback{Approved: true}, nil
		}
		fb, err := next(ctx, req)
		if err == nil && !fb.Approved {
			seen[req.SessionID]++
		}
		return fb, err
	}
}
