package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/nowsync/cmd/config"
	"github.com/sidkik/nowsync/cmd/login"
	"github.com/sidkik/nowsync/cmd/open"
	"github.com/sidkik/nowsync/cmd/pull"
	"github.com/sidkik/nowsync/cmd/resync"
	"github.com/sidkik/nowsync/cmd/status"
	"github.com/sidkik/nowsync/cmd/upload"
	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/cmd/version"
	"github.com/sidkik/nowsync/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "NOWSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "nowsync",
		Short:        "Sync the scripts of a ServiceNow instance with a local directory",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(util.WorkspaceFlag, ".",
		"The workspace directory. It contains the `src` directory and the `.snconfig` directory.")

	rootCmd.AddCommand(
		configCmd.New(),
		login.New(),
		open.New(),
		pull.New(),
		resync.New(),
		status.New(),
		upload.New(),
		version.New(),
		watch.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
