package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/sqlgraph/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the JSON and server-sent events API described by /openapi.yaml.
With --mcp the MCP SSE transport runs alongside on server.mcp_addr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.ServeOptions{Addr: app.Config.Server.Addr, MCPAddr: app.Config.Server.MCPAddr}
		if cmd.Flags().Changed("addr") {
			opts.Addr, _ = cmd.Flags().GetString("addr")
		}
		opts.WithMCP, _ = cmd.Flags().GetBool("mcp")
		return cli.Serve(ctx, app, opts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")
	serveCmd.Flags().Bool("mcp", false, "Also serve MCP over SSE")
}
