package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/sqlgraph/internal/cli"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Answer a plan waiting for review",
	Long:  `Approves the suspended plan, or rejects it with --reject or --feedback so a new plan is drafted.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.ResumeOptions{SessionID: args[0], IOOptions: ioOptions(cmd)}
		opts.Reject, _ = cmd.Flags().GetBool("reject")
		opts.Feedback, _ = cmd.Flags().GetString("feedback")

		_, err = cli.Resume(cmd.Context(), app, opts, os.Stdin, os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().Bool("reject", false, "Reject the plan")
	resumeCmd.Flags().StringP("feedback", "f", "", "Reject the plan with this note for the planner")
	addIOFlags(resumeCmd)
}
