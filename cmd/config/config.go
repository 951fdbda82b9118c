package config

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout                  io.Writer = os.Stdout
	parseConnection                   = config.ParseConnection
	parseSyncConfig                   = config.ParseSyncConfig
	createInitialSyncConfig           = config.CreateInitialSyncConfig
)

// New creates a new `config` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the nowsync workspace configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create an example sync configuration",
		Long: "Create an example sync configuration in the workspace.\n" +
			"If a configuration already exists, it's left untouched and the\n" +
			"example is written next to it.",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := withWorkspace(cmd, initSyncConfig); err != nil {
				util.HandleFatalError(err)
			}
		},
	})

	// Setup the commands for querying the contents of the configuration.
	type getterSpec struct {
		use, short string
		fn         func(config.Workspace) error
	}

	getters := []getterSpec{
		{
			use:   "get-instance",
			short: "Get the URL of the instance that the workspace syncs with",
			fn:    printInstance,
		},
		{
			use:   "tables",
			short: "List the tables that are synced, and the folders they're synced to",
			fn:    printTables,
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(cmd *cobra.Command, _ []string) {
				if err := withWorkspace(cmd, getter.fn); err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}
			},
		})
	}

	return cmd
}

func withWorkspace(cmd *cobra.Command, fn func(config.Workspace) error) error {
	ws, err := util.GetWorkspace(cmd)
	if err != nil {
		return errors.WithContext(err, "get workspace")
	}
	return fn(ws)
}

func initSyncConfig(ws config.Workspace) error {
	path, err := createInitialSyncConfig(ws)
	if err != nil {
		return errors.WithContext(err, "create sync config")
	}

	fmt.Fprintf(stdout, "Check your default sync config at %s\n", path)
	return nil
}

func printInstance(ws config.Workspace) error {
	conn, err := parseConnection(ws)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, conn.InstanceURL)
	return nil
}

func printTables(ws config.Workspace) error {
	cfg, err := parseSyncConfig(ws)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "FOLDER\tTABLE\tQUERY")
	for _, rule := range cfg.Tables {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rule.Folder, rule.Table, rule.Query)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if cfg.IsLegacy() {
		fmt.Fprintf(stdout, "\nRead from the legacy %s. Run `nowsync config init` "+
			"to create a versioned sync config.\n", cfg.GetPath())
	}
	return nil
}
