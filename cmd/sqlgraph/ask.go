package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/sqlgraph/internal/cli"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the analysis",
	Long: `Runs the full workflow for one question. With --review the plan is shown
for approval before any SQL runs; type y to approve, n to reject, or write
feedback to get a revised plan.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.AskOptions{Query: strings.Join(args, " ")}
		opts.ScopeID, _ = cmd.Flags().GetString("scope")
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Review, _ = cmd.Flags().GetBool("review")
		opts.IOOptions = ioOptions(cmd)

		_, err = cli.Ask(cmd.Context(), app, opts, os.Stdin, os.Stdout)
		return err
	},
}

func ioOptions(cmd *cobra.Command) cli.IOOptions {
	var o cli.IOOptions
	o.JSON, _ = cmd.Flags().GetBool("json")
	o.Yes, _ = cmd.Flags().GetBool("yes")
	o.MaxRejections, _ = cmd.Flags().GetInt("max-rejections")
	o.ImageDir, _ = cmd.Flags().GetString("image-dir")
	o.Quiet, _ = cmd.Flags().GetBool("quiet")
	return o
}

func addIOFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "NDJSON events on stdout, JSON review decisions on stdin")
	cmd.Flags().BoolP("yes", "y", false, "Approve every plan without asking")
	cmd.Flags().Int("max-rejections", 0, "Stop after this many rejected plans (0 = unlimited)")
	cmd.Flags().String("image-dir", "", "Save chart images to this directory")
	cmd.Flags().BoolP("quiet", "q", false, "Hide the banner")
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("scope", "s", "", "Scope (agent) whose schema and datasource are used")
	askCmd.Flags().String("session", "", "Session ID (generated when empty)")
	askCmd.Flags().BoolP("review", "r", false, "Review the plan before it runs")
	_ = askCmd.MarkFlagRequired("scope")
	addIOFlags(askCmd)
}
