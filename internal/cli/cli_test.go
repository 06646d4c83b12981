package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph"
	"github.com/aretw0/sqlgraph/internal/config"
	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/internal/testutils"
	"github.com/aretw0/sqlgraph/pkg/adapters/sqlite"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

const (
	scope      = "sales"
	query      = "上月华东区销售额"
	goodSQL    = "SELECT SUM(amount) AS total FROM orders WHERE region = '华东'"
	reportText = "上月华东区销售额为 1280000 元。"
	sqlPlan    = `{"thought_process": "汇总订单金额", "execution_plan": [{"step": 1, "tool_to_use": "SQL_EXECUTE_NODE", "tool_parameters": {"instruction": "统计华东区订单金额合计"}}, {"step": 2, "tool_to_use": "REPORT_GENERATOR_NODE", "tool_parameters": {}}]}`

	catalogYAML = `
scopes:
  - id: sales
    tables:
      - name: orders
        description: 订单表 销售额 区域
        primary_key: id
        columns:
          - {name: amount, type: DECIMAL, description: 订单销售额}
          - {name: region, type: TEXT, description: 区域}
    evidence:
      - 华东区包括上海、江苏、浙江
`
)

type fakeDB struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeDB) Query(_ context.Context, _ domain.Datasource, sql string) (*domain.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	return &domain.QueryResult{Columns: []string{"total"}, Rows: [][]string{{"1280000"}}}, nil
}

func scripted() *testutils.ScriptedLLM {
	return testutils.NewScriptedLLM().
		Always("You clarify analytics questions", "2026年9月华东区订单销售额合计").
		Always("Extract the search keywords", `{"keywords": ["华东", "销售额"]}`).
		Always("You are a data analysis planner", sqlPlan).
		Always("You write a single read-only", goodSQL).
		Always("You check whether SQL answers", "通过").
		Always("You write concise analytics reports", reportText)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	cfg := config.Default()
	cfg.Retrieval.Catalog = path
	cfg.Datasources = []domain.Datasource{{ID: "ds1", Scope: scope, Name: "sales", Dialect: "mysql", Active: true}}
	return &cfg
}

func newTestApp(t *testing.T, cfg *config.Config, db ports.Database) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, logging.NewNop(), Overrides{LLM: scripted(), Database: db})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func lastLine(t *testing.T, s string) map[string]any {
	t.Helper()
	var last string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			last = sc.Text()
		}
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(last), &m))
	return m
}

func TestAsk_Completes(t *testing.T) {
	db := &fakeDB{}
	app := newTestApp(t, testConfig(t), db)
	var out bytes.Buffer

	res, err := Ask(context.Background(), app, AskOptions{Query: query, ScopeID: scope}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)
	assert.Equal(t, reportText, res.Report)
	assert.Contains(t, out.String(), reportText)
	assert.Contains(t, out.String(), goodSQL)
	assert.Len(t, db.queries, 1)
}

func TestAsk_ReviewOnPipeSuspends(t *testing.T) {
	db := &fakeDB{}
	app := newTestApp(t, testConfig(t), db)
	ctx := context.Background()
	var out bytes.Buffer

	res, err := Ask(ctx, app, AskOptions{Query: query, ScopeID: scope, SessionID: "s1", Review: true}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusAwaitingReview, res.Status)
	assert.Contains(t, out.String(), "sqlgraph resume s1")
	assert.Empty(t, db.queries)

	out.Reset()
	require.NoError(t, ListSessions(ctx, app, &out))
	assert.Contains(t, out.String(), "s1")
	assert.Contains(t, out.String(), string(sqlgraph.StatusAwaitingReview))

	out.Reset()
	require.NoError(t, InspectSession(ctx, app, "s1", &out))
	var insp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &insp))
	assert.Equal(t, "s1", insp["session_id"])
	assert.Equal(t, scope, insp["meta"].(map[string]any)["scope"])

	out.Reset()
	res, err = Resume(ctx, app, ResumeOptions{SessionID: "s1"}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)
	assert.Len(t, db.queries, 1)
}

func TestAsk_YesApprovesReview(t *testing.T) {
	app := newTestApp(t, testConfig(t), &fakeDB{})
	res, err := Ask(context.Background(), app, AskOptions{
		IOOptions: IOOptions{Yes: true},
		Query:     query, ScopeID: scope, Review: true,
	}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)
}

func TestAsk_JSONReview(t *testing.T) {
	app := newTestApp(t, testConfig(t), &fakeDB{})
	var out bytes.Buffer

	res, err := Ask(context.Background(), app, AskOptions{
		IOOptions: IOOptions{JSON: true},
		Query:     query, ScopeID: scope, Review: true,
	}, strings.NewReader(`{"approved": true}`+"\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)

	last := lastLine(t, out.String())
	assert.Equal(t, "result", last["type"])
	assert.Equal(t, "completed", last["payload"].(map[string]any)["status"])
}

func TestAsk_FailureReturnsError(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t), logging.NewNop(), Overrides{
		LLM:      testutils.NewScriptedLLM().Always("You clarify analytics questions", "UNSUPPORTED"),
		Database: &fakeDB{},
	})
	require.NoError(t, err)
	defer app.Close()

	res, err := Ask(context.Background(), app, AskOptions{Query: "讲个笑话", ScopeID: scope}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, sqlgraph.StatusFailed, res.Status)
}

func TestRemoveSessions(t *testing.T) {
	app := newTestApp(t, testConfig(t), &fakeDB{})
	ctx := context.Background()
	_, err := Ask(ctx, app, AskOptions{Query: query, ScopeID: scope, SessionID: "s1", Review: true}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)

	var out bytes.Buffer
	err = RemoveSessions(ctx, app, []string{"s1", "ghost"}, &out)
	assert.ErrorContains(t, err, `session "ghost" not found`)
	assert.Contains(t, out.String(), "Removed session 's1'")

	out.Reset()
	require.NoError(t, ListSessions(ctx, app, &out))
	assert.Equal(t, "No sessions found.\n", out.String())
}

func TestFileStore_EncryptsCheckpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreFile
	cfg.Store.Path = t.TempDir()
	cfg.Store.EncryptionKey = strings.Repeat("ab", 32)
	app := newTestApp(t, cfg, &fakeDB{})
	ctx := context.Background()

	_, err := Ask(ctx, app, AskOptions{Query: query, ScopeID: scope, SessionID: "s1", Review: true}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Path, "s1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "华东")

	res, err := Resume(ctx, app, ResumeOptions{SessionID: "s1"}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.RedisAddr = mr.Addr()
	app := newTestApp(t, cfg, &fakeDB{})
	ctx := context.Background()

	_, err := Ask(ctx, app, AskOptions{Query: query, ScopeID: scope, SessionID: "s1", Review: true}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, mr.Exists("sqlgraph:session:s1"))
	assert.Positive(t, mr.TTL("sqlgraph:session:s1"))

	res, err := Resume(ctx, app, ResumeOptions{SessionID: "s1"}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, sqlgraph.StatusCompleted, res.Status)
	assert.False(t, mr.Exists("sqlgraph:session:s1"))
}

func TestIndexCatalog_SQLiteReindexes(t *testing.T) {
	cfg := testConfig(t)
	catalog, err := config.LoadCatalog(cfg.Retrieval.Catalog)
	require.NoError(t, err)

	r, err := sqlite.Open("")
	require.NoError(t, err)
	defer r.Close()
	idx := sqliteIndex{r}
	ctx := context.Background()

	require.NoError(t, indexCatalog(ctx, idx, catalog))
	require.NoError(t, indexCatalog(ctx, idx, catalog))

	cols, err := r.Search(ctx, ports.SearchRequest{ScopeID: scope, Kind: domain.DocColumn, Names: []string{"orders"}})
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	ev, err := r.Search(ctx, ports.SearchRequest{ScopeID: scope, Kind: domain.DocEvidence, Query: "华东"})
	require.NoError(t, err)
	assert.Len(t, ev, 1)
}

func TestNewHTTPHandler(t *testing.T) {
	app := newTestApp(t, testConfig(t), &fakeDB{})
	h, err := NewHTTPHandler(app)
	require.NoError(t, err)

	for _, path := range []string{"/healthz", "/metrics", "/v1/graph"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Contains(t, app.Mermaid(), "graph TD")
}

func TestServeMCP_UnknownTransport(t *testing.T) {
	app := newTestApp(t, testConfig(t), &fakeDB{})
	err := ServeMCP(context.Background(), app, MCPOptions{Transport: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown transport")
}

func TestServe_StopsOnCancel(t *testing.T) {
	app := newTestApp(t, testConfig(t), &fakeDB{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, app, ServeOptions{Addr: "127.0.0.1:0"}))
}
