// Package testutils holds fakes shared by package tests.
package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aretw0/sqlgraph/pkg/ports"
)

// ErrScriptExhausted is returned when a ScriptedLLM has no answer left.
var ErrScriptExhausted = errors.New("scripted llm: no more responses")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// ScriptedLLM answers from per-stage queues. A prompt is routed to the first
// stage whose marker appears in its system or user text; unmatched prompts
// use the default queue.
type ScriptedLLM struct {
	mu      sync.Mutex
	routes  []route
	queue   []Reply
	Prompts []ports.Prompt
}

type route struct {
	marker  string
	replies []Reply
	// sticky keeps answering the last reply once the queue is drained.
	sticky bool
}

// NewScriptedLLM answers unmatched prompts with replies in order.
func NewScriptedLLM(replies ...string) *ScriptedLLM {
	s := &ScriptedLLM{}
	for _, r := range replies {
		s.queue = append(s.queue, Reply{Text: r})
	}
	return s
}

// On answers prompts containing marker with replies in order.
func (s *ScriptedLLM) On(marker string, replies ...string) *ScriptedLLM {
	rs := make([]Reply, 0, len(replies))
	for _, r := range replies {
		rs = append(rs, Reply{Text: r})
	}
	return s.OnReplies(marker, false, rs...)
}

// Always answers prompts containing marker with reply, forever.
func (s *ScriptedLLM) Always(marker, reply string) *ScriptedLLM {
	return s.OnReplies(marker, true, Reply{Text: reply})
}

// OnReplies registers a route with explicit replies.
func (s *ScriptedLLM) OnReplies(marker string, sticky bool, replies ...Reply) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route{marker: marker, replies: replies, sticky: sticky})
	return s
}

// Calls returns how many prompts contained marker.
func (s *ScriptedLLM) Calls(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.Prompts {
		if strings.Contains(p.System, marker) || strings.Contains(p.User, marker) {
			n++
		}
	}
	return n
}

// Complete implements ports.LLM.
func (s *ScriptedLLM) Complete(ctx context.Context, p ports.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, p)

	for i := range s.routes {
		r := &s.routes[i]
		if !strings.Contains(p.System, r.marker) && !strings.Contains(p.User, r.marker) {
			continue
		}
		if len(r.replies) == 0 {
			return "", ErrScriptExhausted
		}
		next := r.replies[0]
		if len(r.replies) > 1 || !r.sticky {
			r.replies = r.replies[1:]
		}
		return next.Text, next.Err
	}
	if len(s.queue) == 0 {
		return "", ErrScriptExhausted
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next.Text, next.Err
}

// Stream implements ports.LLM by splitting the completion into words.
func (s *ScriptedLLM) Stream(ctx context.Context, p ports.Prompt, h ports.StreamHandler) (string, error) {
	text, err := s.Complete(ctx, p)
	if err != nil {
		return "", err
	}
	for _, frag := range strings.SplitAfter(text, " ") {
		if frag == "" {
			continue
		}
		if err := h(frag); err != nil {
			return "", err
		}
	}
	return text, nil
}
