package open

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout  io.Writer = os.Stdout
	openURL           = browser.OpenURL
)

type recordLinker interface {
	RecordURL(path string) (string, error)
}

// New creates a new `open` command.
func New() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "open FILE",
		Short: "Open the record that a file was synced from in the browser",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(cmd, args[0], printOnly); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the link instead of opening it.")
	return cmd
}

func run(cmd *cobra.Command, path string, printOnly bool) error {
	ws, err := util.GetWorkspace(cmd)
	if err != nil {
		return errors.WithContext(err, "get workspace")
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	svc, err := util.NewServices(ctx, ws)
	if err != nil {
		return err
	}
	defer svc.Close()

	return Main(svc.Syncer, path, printOnly)
}

// Main opens the record of the file at `path`.
func Main(linker recordLinker, path string, printOnly bool) error {
	url, err := linker.RecordURL(path)
	if err != nil {
		return err
	}

	if printOnly {
		fmt.Fprintln(stdout, url)
		return nil
	}

	if err := openURL(url); err != nil {
		return errors.WithContext(err, "open browser")
	}
	return nil
}
