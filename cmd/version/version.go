package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of nowsync.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nowsync version: %s\n", version.Version)
		},
	}
}
