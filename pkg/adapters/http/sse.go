package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// eventStream writes engine events as server-sent events. The response is
// committed lazily: a request rejected before its first event can still be
// answered with a plain HTTP error.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	pending []domain.Event
	stop    chan struct{}
	wg      sync.WaitGroup
}

func newEventStream(w http.ResponseWriter, flusher http.Flusher) *eventStream {
	return &eventStream{w: w, flusher: flusher, stop: make(chan struct{})}
}

// sink holds back a leading error event until the request outcome is known.
func (s *eventStream) sink(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started && e.Type == domain.EventError {
		s.pending = append(s.pending, e)
		return
	}
	s.write(e)
}

// commit sends the SSE headers and anything held back. Callers hold mu.
func (s *eventStream) commit() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	pending := s.pending
	s.pending = nil
	for _, e := range pending {
		s.write(e)
	}
}

func (s *eventStream) write(e domain.Event) {
	s.commit()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, data)
	s.flusher.Flush()
}

// heartbeat keeps idle connections open through proxies while a node works.
func (s *eventStream) heartbeat(every time.Duration) {
	if every <= 0 {
		return
	}
	s.wg.Add(1)
	go s.ping(every)
}

func (s *eventStream) ping(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.mu.Lock()
			if s.started {
				fmt.Fprint(s.w, ": ping\n\n")
				s.flusher.Flush()
			}
			s.mu.Unlock()
		}
	}
}

// finish stops the heartbeat. It reports whether the response is still
// uncommitted, in which case the caller answers with a plain error.
func (s *eventStream) finish(rejected bool) bool {
	close(s.stop)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started && rejected {
		return true
	}
	s.commit()
	return false
}
