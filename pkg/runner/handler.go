package runner

import (
	"context"
	"strings"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// ReviewRequest is what a reviewer sees when a run suspends.
type ReviewRequest struct {
	SessionID string      `json:"session_id"`
	Plan      domain.Plan `json:"plan"`
}

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents one engine event.
	Output(ctx context.Context, e domain.Event) error

	// Review asks for a plan decision. io.EOF means no decision will come and
	// the session stays suspended.
	Review(ctx context.Context, req ReviewRequest) (domain.HumanFeedback, error)

	// SystemOutput presents a meta-message (e.g. how to resume a session).
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms markdown before it is written, e.g. to ANSI.
type ContentRenderer func(string) (string, error)

// ParseDecision turns a typed answer into feedback. An empty answer, "y" or
// "yes" approves; "n" or "no" rejects; anything else rejects with that text
// as the reviewer's note.
func ParseDecision(answer string) domain.HumanFeedback {
	a := strings.TrimSpace(answer)
	switch strings.ToLower(a) {
	case "", "y", "yes", "ok", "approve":
		return domain.HumanFeedback{Approved: true}
	case "n", "no", "reject":
		return domain.HumanFeedback{}
	}
	return domain.HumanFeedback{Text: a}
}
