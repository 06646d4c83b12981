package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/sqlgraph"
	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/runner"
)

// GraphURI is the resource carrying the workflow diagram.
const GraphURI = "sqlgraph://graph"

// Engine is the part of *sqlgraph.Engine exposed as tools.
type Engine interface {
	Start(ctx context.Context, req sqlgraph.StartRequest, sink domain.EventSink) (*sqlgraph.Result, error)
	Resume(ctx context.Context, req sqlgraph.ResumeRequest, sink domain.EventSink) (*sqlgraph.Result, error)
	Cancel(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]sqlgraph.SessionInfo, error)
}

// RunResponse is the structured result of ask and resume.
type RunResponse struct {
	Result *sqlgraph.Result `json:"result" jsonschema_description:"Final status, report, SQL and plan of the run"`
	// Progress holds the status lines emitted while the run worked.
	Progress []string `json:"progress,omitempty" jsonschema_description:"Status messages emitted during the run"`
	// Review is the plan in markdown when the run waits for approval.
	Review string `json:"review,omitempty" jsonschema_description:"Plan awaiting approval, if any"`
}

// SessionsResponse lists sessions.
type SessionsResponse struct {
	Sessions []sqlgraph.SessionInfo `json:"sessions"`
}

type askArgs struct {
	Query              string `json:"query"`
	ScopeID            string `json:"scope_id"`
	HumanReviewEnabled bool   `json:"human_review_enabled"`
	SessionID          string `json:"session_id"`
}

type resumeArgs struct {
	SessionID    string `json:"session_id"`
	Approved     bool   `json:"approved"`
	FeedbackText string `json:"feedback_text"`
}

// Server exposes the engine as an MCP server.
type Server struct {
	engine    Engine
	graph     string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGraph publishes a Mermaid diagram of the workflow.
func WithGraph(mermaid string) Option {
	return func(s *Server) {
		s.graph = mermaid
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("sqlgraph", strings.TrimSpace(sqlgraph.Version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	mux := http.NewServeMux()
	mux.Handle("/sse", c.Handler(sseServer.SSEHandler()))
	mux.Handle("/message", c.Handler(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("mcp server listening", "addr", addr, "transport", "sse")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer an analytics question over the datasource of a scope. Returns the report, the SQL that produced it and the plan. With human_review_enabled the run stops after planning and must be continued with resume."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question in natural language")),
		mcp.WithString("scope_id", mcp.Required(), mcp.Description("Workspace whose schema and datasource are used")),
		mcp.WithBoolean("human_review_enabled", mcp.Description("Stop for plan approval before running SQL")),
		mcp.WithString("session_id", mcp.Description("Session ID to use (optional)")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleAsk))

	s.mcpServer.AddTool(mcp.NewTool("resume",
		mcp.WithDescription("Approve or reject the plan of a session waiting for review. A rejection with feedback_text replans."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session waiting for review")),
		mcp.WithBoolean("approved", mcp.Required(), mcp.Description("Whether the plan is approved")),
		mcp.WithString("feedback_text", mcp.Description("What to change when rejecting")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleResume))

	s.mcpServer.AddTool(mcp.NewTool("cancel",
		mcp.WithDescription("Stop a running session or discard one waiting for review."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to cancel")),
	), s.handleCancel)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List running sessions and sessions waiting for review."),
		mcp.WithOutputSchema[SessionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleSessions))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the workflow as a Mermaid diagram."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.graph == "" {
			return mcp.NewToolResultError("graph not available"), nil
		}
		return mcp.NewToolResultText(s.graph), nil
	})
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest, args askArgs) (RunResponse, error) {
	query, err := runner.SanitizeQuery(args.Query)
	if err != nil {
		s.logger.Warn("mcp ask: input rejected", "err", err, "size", len(args.Query))
		return RunResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	var progress []string
	res, err := s.engine.Start(ctx, sqlgraph.StartRequest{
		Query:              query,
		ScopeID:            args.ScopeID,
		HumanReviewEnabled: args.HumanReviewEnabled,
		SessionID:          args.SessionID,
	}, collect(&progress))
	return respond(res, progress, err)
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest, args resumeArgs) (RunResponse, error) {
	feedback, err := runner.SanitizeInput(args.FeedbackText)
	if err != nil {
		return RunResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	var progress []string
	res, err := s.engine.Resume(ctx, sqlgraph.ResumeRequest{
		SessionID:    args.SessionID,
		Approved:     args.Approved,
		FeedbackText: feedback,
	}, collect(&progress))
	return respond(res, progress, err)
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.engine.Cancel(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", err)), nil
	}
	return mcp.NewToolResultText("cancelled " + id), nil
}

func (s *Server) handleSessions(ctx context.Context, request mcp.CallToolRequest, _ struct{}) (SessionsResponse, error) {
	list, err := s.engine.Sessions(ctx)
	if err != nil {
		return SessionsResponse{}, err
	}
	if list == nil {
		list = []sqlgraph.SessionInfo{}
	}
	return SessionsResponse{Sessions: list}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Workflow diagram",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: GraphURI, MIMEType: "text/plain", Text: s.graph},
		}, nil
	})
}

// collect keeps status lines; the rest of the stream is summarized by Result.
func collect(progress *[]string) domain.EventSink {
	return func(e domain.Event) {
		if e.Type == domain.EventStatus {
			*progress = append(*progress, e.Payload)
		}
	}
}

func respond(res *sqlgraph.Result, progress []string, err error) (RunResponse, error) {
	if err != nil {
		return RunResponse{}, err
	}
	out := RunResponse{Result: res, Progress: progress}
	if res.Status == sqlgraph.StatusAwaitingReview && res.Plan != nil {
		out.Review = res.Plan.Markdown()
	}
	return out, nil
}
