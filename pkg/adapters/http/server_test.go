package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph"
	sqlhttp "github.com/aretw0/sqlgraph/pkg/adapters/http"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/session"
)

type fakeEngine struct {
	mu       sync.Mutex
	starts   []sqlgraph.StartRequest
	resumes  []sqlgraph.ResumeRequest
	startErr error
	delay    time.Duration
	sessions map[string]*domain.Checkpoint
}

func newFake() *fakeEngine {
	return &fakeEngine{sessions: map[string]*domain.Checkpoint{
		"s1": {SessionID: "s1", NodeID: "human_feedback_node", State: json.RawMessage(`{"query":"q"}`)},
	}}
}

func (f *fakeEngine) Start(_ context.Context, req sqlgraph.StartRequest, sink domain.EventSink) (*sqlgraph.Result, error) {
	f.mu.Lock()
	f.starts = append(f.starts, req)
	f.mu.Unlock()
	if sink == nil {
		sink = func(domain.Event) {}
	}
	if f.startErr != nil {
		sink(domain.Event{Type: domain.EventError, Payload: f.startErr.Error()})
		return &sqlgraph.Result{SessionID: "s9", Status: sqlgraph.StatusFailed}, f.startErr
	}
	sink(domain.Event{Type: domain.EventStatus, Node: "rewrite_node", Payload: "Understanding the question"})
	time.Sleep(f.delay)
	sink(domain.Event{Type: domain.EventMarkdown, Node: "report_generator_node", Payload: "总额 42"})
	sink(domain.Event{Type: domain.EventComplete, Payload: "completed"})
	return &sqlgraph.Result{SessionID: "s9", Status: sqlgraph.StatusCompleted, Report: "总额 42", SQL: "SELECT 42;"}, nil
}

func (f *fakeEngine) Resume(_ context.Context, req sqlgraph.ResumeRequest, sink domain.EventSink) (*sqlgraph.Result, error) {
	f.mu.Lock()
	f.resumes = append(f.resumes, req)
	_, ok := f.sessions[req.SessionID]
	delete(f.sessions, req.SessionID)
	f.mu.Unlock()
	if sink == nil {
		sink = func(domain.Event) {}
	}
	if !ok {
		sink(domain.Event{Type: domain.EventError, Payload: "session not found"})
		return &sqlgraph.Result{SessionID: req.SessionID, Status: sqlgraph.StatusFailed}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, req.SessionID)
	}
	sink(domain.Event{Type: domain.EventComplete, Payload: "completed"})
	return &sqlgraph.Result{SessionID: req.SessionID, Status: sqlgraph.StatusCompleted}, nil
}

func (f *fakeEngine) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeEngine) Checkpoint(_ context.Context, id string) (*domain.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cp, nil
}

func (f *fakeEngine) Sessions(context.Context) ([]sqlgraph.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sqlgraph.SessionInfo
	for id := range f.sessions {
		out = append(out, sqlgraph.SessionInfo{ID: id, Status: sqlgraph.StatusAwaitingReview})
	}
	return out, nil
}

func newHandler(t *testing.T, eng sqlhttp.Engine, opts ...sqlhttp.Option) http.Handler {
	t.Helper()
	h, err := sqlhttp.NewHandler(eng, append([]sqlhttp.Option{sqlhttp.WithHeartbeat(0)}, opts...)...)
	require.NoError(t, err)
	return h
}

func do(h http.Handler, method, path, body, accept string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// sseEvents parses the data lines of an event stream.
func sseEvents(t *testing.T, body string) []domain.Event {
	t.Helper()
	var out []domain.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var e domain.Event
		require.NoError(t, json.Unmarshal([]byte(data), &e))
		out = append(out, e)
	}
	return out
}

func TestLoadSpec(t *testing.T) {
	doc, err := sqlhttp.LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/v1/query"))
	assert.NotNil(t, doc.Paths.Find("/v1/sessions/{id}/resume"))
}

func TestServer_HealthInfoSpec(t *testing.T) {
	h := newHandler(t, newFake())

	w := do(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(h, http.MethodGet, "/v1/info", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"app":"sqlgraph"`)

	w = do(h, http.MethodGet, "/openapi.yaml", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(sqlhttp.Spec()), w.Body.String())
}

func TestServer_QueryStreamsEvents(t *testing.T) {
	eng := newFake()
	h := newHandler(t, eng)

	w := do(h, http.MethodPost, "/v1/query", `{"query": " 上月华东区销售额 ", "scope_id": "sales"}`, "text/event-stream")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: status\n")

	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, domain.Event{Type: domain.EventStatus, Node: "rewrite_node", Payload: "Understanding the question"}, events[0])
	assert.Equal(t, domain.EventComplete, events[2].Type)

	require.Len(t, eng.starts, 1)
	assert.Equal(t, "上月华东区销售额", eng.starts[0].Query, "query is sanitized and trimmed")
}

func TestServer_QueryJSON(t *testing.T) {
	h := newHandler(t, newFake())

	w := do(h, http.MethodPost, "/v1/query", `{"query": "q", "scope_id": "sales"}`, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var res sqlgraph.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)
	assert.Equal(t, "SELECT 42;", res.SQL)
}

func TestServer_QueryValidation(t *testing.T) {
	eng := newFake()
	h := newHandler(t, eng)

	tests := []struct {
		name, body string
	}{
		{"missing scope", `{"query": "q"}`},
		{"empty query", `{"query": "", "scope_id": "sales"}`},
		{"wrong type", `{"query": "q", "scope_id": "sales", "human_review_enabled": "yes"}`},
		{"control characters only", `{"query": "\u0007", "scope_id": "sales"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/v1/query", tt.body, "text/event-stream")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
	assert.Empty(t, eng.starts)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query": "q", "scope_id": "s"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RejectedRunIsPlainError(t *testing.T) {
	eng := newFake()
	eng.startErr = fmt.Errorf("%w: s9", session.ErrSessionRunning)
	h := newHandler(t, eng)

	w := do(h, http.MethodPost, "/v1/query", `{"query": "q", "scope_id": "sales", "session_id": "s9"}`, "text/event-stream")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "session is already running")
}

func TestServer_ResumeSession(t *testing.T) {
	eng := newFake()
	h := newHandler(t, eng)

	w := do(h, http.MethodPost, "/v1/sessions/s1/resume", `{"approved": false, "feedback_text": "按门店拆分"}`, "text/event-stream")
	require.Equal(t, http.StatusOK, w.Code)
	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventComplete, events[0].Type)
	assert.Equal(t, []sqlgraph.ResumeRequest{{SessionID: "s1", FeedbackText: "按门店拆分"}}, eng.resumes)

	w = do(h, http.MethodPost, "/v1/sessions/s1/resume", `{"approved": true}`, "text/event-stream")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, http.MethodPost, "/v1/sessions/s1/resume", `{"feedback_text": "x"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "approved is required")
}

func TestServer_Sessions(t *testing.T) {
	eng := newFake()
	h := newHandler(t, eng)

	w := do(h, http.MethodGet, "/v1/sessions", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"s1","status":"awaiting_review"}]`, w.Body.String())

	w = do(h, http.MethodGet, "/v1/sessions/s1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cp domain.Checkpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
	assert.Equal(t, "human_feedback_node", cp.NodeID)

	w = do(h, http.MethodDelete, "/v1/sessions/s1", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(h, http.MethodDelete, "/v1/sessions/s1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(h, http.MethodGet, "/v1/sessions/s1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, http.MethodGet, "/v1/sessions", "", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_GraphAndMetrics(t *testing.T) {
	h := newHandler(t, newFake())
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/graph", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/metrics", "", "").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sqlgraph_runs_total 1\n"))
	})
	h = newHandler(t, newFake(), sqlhttp.WithGraph("graph TD\n"), sqlhttp.WithMetrics(metrics))
	w := do(h, http.MethodGet, "/v1/graph", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "graph TD\n", w.Body.String())
	assert.Contains(t, do(h, http.MethodGet, "/metrics", "", "").Body.String(), "sqlgraph_runs_total")
}

func TestServer_CORS(t *testing.T) {
	h := newHandler(t, newFake(), sqlhttp.WithAllowedOrigins("https://bi.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/v1/query", nil)
	req.Header.Set("Origin", "https://bi.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://bi.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Heartbeat(t *testing.T) {
	eng := newFake()
	eng.delay = 80 * time.Millisecond
	h, err := sqlhttp.NewHandler(eng, sqlhttp.WithHeartbeat(10*time.Millisecond))
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/query", strings.NewReader(`{"query": "q", "scope_id": "sales"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body strings.Builder
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		body.WriteString(sc.Text() + "\n")
	}
	assert.Contains(t, body.String(), ": ping")
	assert.Len(t, sseEvents(t, body.String()), 3)
}
