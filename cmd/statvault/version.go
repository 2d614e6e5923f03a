package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicktill/statvault/pkg/server"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print statvault version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "statvault %s (commit: %s, built: %s)\n", version, commit, date)
			return err
		},
	}
}

func init() {
	server.Version = version
}
