package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/sqlgraph"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sqlgraph",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sqlgraph version %s\n", strings.TrimSpace(sqlgraph.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
