package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	sqlhttp "github.com/aretw0/sqlgraph/pkg/adapters/http"
	"github.com/aretw0/sqlgraph/pkg/adapters/mcp"
)

// ShutdownTimeout bounds graceful shutdown of the listeners.
const ShutdownTimeout = 5 * time.Second

// ServeOptions select the listeners of the serve command.
type ServeOptions struct {
	Addr string
	// WithMCP also serves the MCP SSE transport on MCPAddr.
	WithMCP bool
	MCPAddr string
}

// NewHTTPHandler builds the HTTP API for app.
func NewHTTPHandler(app *App) (http.Handler, error) {
	cfg := app.Config.Server
	opts := []sqlhttp.Option{
		sqlhttp.WithLogger(app.Logger),
		sqlhttp.WithGraph(app.Mermaid()),
		sqlhttp.WithAllowedOrigins(cfg.AllowedOrigins...),
		sqlhttp.WithHeartbeat(cfg.Heartbeat),
	}
	if cfg.Metrics {
		opts = append(opts, sqlhttp.WithMetrics(app.Metrics.Handler()))
	}
	return sqlhttp.NewHandler(app.Engine, opts...)
}

// NewMCPServer builds the MCP adapter for app.
func NewMCPServer(app *App) *mcp.Server {
	return mcp.NewServer(app.Engine, mcp.WithLogger(app.Logger), mcp.WithGraph(app.Mermaid()))
}

// Serve runs the HTTP API, and optionally the MCP SSE transport, until ctx is done.
func Serve(ctx context.Context, app *App, opts ServeOptions) error {
	handler, err := NewHTTPHandler(app)
	if err != nil {
		return fmt.Errorf("failed to build http handler: %w", err)
	}
	srv := &http.Server{Addr: opts.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("http server listening", "addr", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		app.Logger.Info("http server stopped")
		return nil
	})
	if opts.WithMCP {
		g.Go(func() error {
			return ServeMCP(ctx, app, MCPOptions{Transport: TransportSSE, Addr: opts.MCPAddr})
		})
	}
	return g.Wait()
}

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// MCPOptions select the MCP transport.
type MCPOptions struct {
	Transport string
	Addr      string
	BaseURL   string
}

// ServeMCP serves the MCP tools on the chosen transport.
func ServeMCP(ctx context.Context, app *App, opts MCPOptions) error {
	srv := NewMCPServer(app)
	switch opts.Transport {
	case TransportStdio, "":
		app.Logger.Info("mcp server listening", "transport", TransportStdio)
		return srv.ServeStdio()
	case TransportSSE:
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = app.Config.Server.BaseURL
		}
		if baseURL == "" {
			host := opts.Addr
			if strings.HasPrefix(host, ":") {
				host = "localhost" + host
			}
			baseURL = "http://" + host
		}
		return srv.ServeSSE(ctx, opts.Addr, baseURL)
	default:
		return fmt.Errorf("unknown transport %q, supported: stdio, sse", opts.Transport)
	}
}
