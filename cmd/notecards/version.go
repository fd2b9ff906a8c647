package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/notecards/internal/version"
)

// VersionCmd prints build information.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(Version)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "notecards %s\n", info.Version)
			if info.Revision != "" {
				rev := info.Revision
				if info.Dirty {
					rev += "-dirty"
				}
				fmt.Fprintf(out, "  revision: %s\n", rev)
			}
			fmt.Fprintf(out, "  go:       %s\n", info.GoVersion)
			fmt.Fprintf(out, "  install:  %s\n", info.Install)
			return nil
		},
	}
}
