package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

// DefaultMaxSteps bounds node invocations per run.
const DefaultMaxSteps = 100

// Status is how a run stopped.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Option configures a compiled graph.
type Option func(*Compiled)

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiled) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Compiled) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithMaxSteps sets the step budget.
func WithMaxSteps(n int) Option {
	return func(c *Compiled) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// Compiled is an immutable, runnable graph. It is safe for concurrent runs;
// each run owns its State.
type Compiled struct {
	order      []NodeID
	nodes      map[NodeID]NodeFunc
	edges      map[NodeID]NodeID
	branches   map[NodeID]branch
	interrupts map[NodeID]bool
	entry      NodeID
	reg        *domain.Registry

	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	maxSteps int
}

func (c *Compiled) applyOptions(opts []Option) {
	c.logger = logging.NewNop()
	c.maxSteps = DefaultMaxSteps
	for _, opt := range opts {
		opt(c)
	}
}

// Outcome describes where a run stopped.
type Outcome struct {
	Status Status
	// Node is the interrupt node for suspended runs, or the failing node.
	Node  NodeID
	State *domain.State
	Path  []NodeID
}

// Run drives st from start until End, an interrupt or an error.
// Updates are committed to st in place. An empty start means the entry node.
func (c *Compiled) Run(ctx context.Context, sessionID string, st *domain.State, start NodeID, sink domain.EventSink) (Outcome, error) {
	if start == "" {
		start = c.entry
	}
	if _, ok := c.nodes[start]; !ok {
		return Outcome{Status: StatusFailed, State: st}, fmt.Errorf("unknown start node %q", start)
	}
	if sink == nil {
		sink = func(domain.Event) {}
	}

	out := Outcome{State: st}
	finish := func(status Status, node NodeID, err error) (Outcome, error) {
		out.Status = status
		out.Node = node
		if c.hooks.OnRunEnd != nil {
			c.hooks.OnRunEnd(ctx, &domain.RunEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), SessionID: sessionID},
				Status:    string(status),
			})
		}
		c.logger.Debug("run finished", "session_id", sessionID, "status", status, "node", node, "steps", len(out.Path))
		return out, err
	}

	cur := start
	for step := 0; ; step++ {
		if cur == End {
			return finish(StatusCompleted, End, nil)
		}
		if step > 0 && c.interrupts[cur] {
			return finish(StatusInterrupted, cur, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(StatusCancelled, cur, err)
		}
		if step >= c.maxSteps {
			return finish(StatusFailed, cur, fmt.Errorf("%w after %d steps", ErrStepBudget, step))
		}

		upd, err := c.invoke(ctx, sessionID, cur, st, sink)
		out.Path = append(out.Path, cur)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return finish(StatusCancelled, cur, err)
			}
			return finish(StatusFailed, cur, fmt.Errorf("node %s: %w", cur, err))
		}
		if err := st.Apply(upd); err != nil {
			return finish(StatusFailed, cur, fmt.Errorf("node %s: commit: %w", cur, err))
		}

		next, err := c.next(cur, st)
		if err != nil {
			return finish(StatusFailed, cur, err)
		}
		c.logger.Debug("transition", "session_id", sessionID, "from", cur, "to", next)
		cur = next
	}
}

type nodeResult struct {
	update domain.Update
	err    error
}

// invoke runs one node on its own goroutine. Events are forwarded to sink in
// emission order while the node runs; the update is returned once it finishes.
func (c *Compiled) invoke(ctx context.Context, sessionID string, id NodeID, st *domain.State, sink domain.EventSink) (domain.Update, error) {
	fn := c.nodes[id]
	started := time.Now()
	if c.hooks.OnNodeEnter != nil {
		c.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: started, Type: domain.EventNodeEnter, SessionID: sessionID},
			NodeID:    string(id),
		})
	}

	events := make(chan domain.Event, 16)
	done := make(chan nodeResult, 1)

	var mu sync.Mutex
	closed := false
	emit := func(t domain.EventType, payload string) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			c.logger.Warn("event emitted after node returned", "node", id, "type", t)
			return
		}
		events <- domain.Event{Type: t, Node: string(id), Payload: payload}
	}

	go func() {
		var res nodeResult
		defer func() {
			if r := recover(); r != nil {
				res = nodeResult{err: fmt.Errorf("panic: %v", r)}
			}
			mu.Lock()
			closed = true
			close(events)
			mu.Unlock()
			done <- res
		}()
		upd, err := fn(ctx, st, emit)
		res = nodeResult{update: upd, err: err}
	}()

	for ev := range events {
		sink(ev)
	}
	res := <-done

	if c.hooks.OnNodeLeave != nil {
		c.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, SessionID: sessionID},
			NodeID:    string(id),
			Duration:  time.Since(started),
			Changed:   changedKeys(res.update),
			Failed:    res.err != nil,
		})
	}
	return res.update, res.err
}

func changedKeys(u domain.Update) []string {
	if len(u) == 0 {
		return nil
	}
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
