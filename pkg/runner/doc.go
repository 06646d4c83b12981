/*
Package runner drives an Engine from a terminal or a pipe.

A Runner starts a question, forwards every event to an IOHandler and, when the
run suspends for plan review, asks the handler for a decision and resumes the
session. The loop repeats until the session completes, fails or the input ends.

# Key Components

  - Runner: the start/review/resume loop, cancelled by SIGINT or SIGTERM.
  - TextHandler: human-readable output and a review prompt.
  - JSONHandler: JSON lines in both directions, for scripts and other tools.
  - Reviewer: the policy that decides a review, e.g. AutoApprove for headless use.

# Usage

	r := runner.NewRunner(engine,
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	res, err := r.Run(ctx, sqlgraph.StartRequest{Query: q, ScopeID: "sales", HumanReviewEnabled: true})
*/
package runner
