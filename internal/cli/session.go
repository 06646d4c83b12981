package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// ListSessions prints running and suspended sessions.
func ListSessions(ctx context.Context, app *App, out io.Writer) error {
	sessions, err := app.Engine.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATUS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Status)
	}
	return tw.Flush()
}

type inspection struct {
	SessionID string            `json:"session_id"`
	Node      string            `json:"node"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
	State     json.RawMessage   `json:"state"`
}

// InspectSession prints the checkpoint of a suspended session.
func InspectSession(ctx context.Context, app *App, id string, out io.Writer) error {
	cp, err := app.Engine.Checkpoint(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %q: %w", id, err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(inspection{
		SessionID: cp.SessionID,
		Node:      cp.NodeID,
		CreatedAt: cp.CreatedAt,
		Meta:      cp.Meta,
		State:     cp.State,
	})
}

// RemoveSessions cancels or deletes every id, reporting each one.
func RemoveSessions(ctx context.Context, app *App, ids []string, out io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := app.Engine.Cancel(ctx, id); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				err = fmt.Errorf("session %q not found", id)
			}
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "Removed session '%s'\n", id)
	}
	return errors.Join(errs...)
}
