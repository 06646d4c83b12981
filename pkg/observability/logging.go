package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// LogHooks logs node transitions at debug level and run outcomes at info.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("node_enter", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("node_leave",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"duration", e.Duration,
				"changed", e.Changed,
				"failed", e.Failed,
			)
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			logger.Info("run_end", "session_id", e.SessionID, "status", e.Status)
		},
	}
}
