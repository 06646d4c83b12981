package domain

import (
	"context"
	"time"
)

// EventType is the display category of a streamed event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventJSON     EventType = "json"
	EventImage    EventType = "image"
	EventMarkdown EventType = "markdown"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is a streamed status event. Events are for display only and say
// nothing about whether the emitting node's state has been committed.
type Event struct {
	Type    EventType `json:"type"`
	Node    string    `json:"node,omitempty"`
	Payload string    `json:"payload"`
}

// Terminal reports whether the event closes a request stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// EventSink receives events in emission order.
type EventSink func(Event)

// Payload of the complete event that follows a review interrupt.
const PayloadAwaitingReview = "awaiting_review"

// LifecycleType defines the category of a lifecycle event.
type LifecycleType string

const (
	EventNodeEnter LifecycleType = "node_enter"
	EventNodeLeave LifecycleType = "node_leave"
)

// EventBase contains common fields for lifecycle events.
type EventBase struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      LifecycleType `json:"type"`
	SessionID string        `json:"session_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Duration time.Duration `json:"duration,omitempty"`
	// Changed lists the keys the node's update touched (leave only).
	Changed []string `json:"changed,omitempty"`
	Failed  bool     `json:"failed,omitempty"`
}

// RunEvent reports how a request ended.
type RunEvent struct {
	EventBase
	Status string `json:"status"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnRunEnd    func(context.Context, *RunEvent)
	// OnRepairRound is called once per SQL synthesis round.
	OnRepairRound func(ctx context.Context, round int, total float64)
}

// Merge combines hook sets, calling each in order.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter: chainNode(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave: chainNode(h.OnNodeLeave, other.OnNodeLeave),
		OnRunEnd: func(ctx context.Context, e *RunEvent) {
			if h.OnRunEnd != nil {
				h.OnRunEnd(ctx, e)
			}
			if other.OnRunEnd != nil {
				other.OnRunEnd(ctx, e)
			}
		},
		OnRepairRound: func(ctx context.Context, round int, total float64) {
			if h.OnRepairRound != nil {
				h.OnRepairRound(ctx, round, total)
			}
			if other.OnRepairRound != nil {
				other.OnRepairRound(ctx, round, total)
			}
		},
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	return func(ctx context.Context, e *NodeEvent) {
		if a != nil {
			a(ctx, e)
		}
		if b != nil {
			b(ctx, e)
		}
	}
}
