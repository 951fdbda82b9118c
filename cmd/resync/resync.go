package resync

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/sync"
)

// Options selects what is resynced.
type Options struct {
	Table  string
	Folder string

	// Yes skips the confirmation before the source directory is deleted.
	Yes bool
}

// syncer is the subset of sync.Syncer used by the command.
type syncer interface {
	ResyncAll(ctx context.Context) (sync.Summary, error)
	ResyncTable(ctx context.Context, table string) (sync.Summary, error)
	ResyncFolder(ctx context.Context, folder string) (sync.Summary, error)
}

// Mocked for unit testing.
var promptYesOrNo = util.PromptYesOrNo

// New creates a new `resync` command.
func New() *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Download the records of the synced tables",
		Long: "Download the records of every table in the sync configuration.\n" +
			"The source directory is deleted first, so local changes that weren't\n" +
			"uploaded are lost. Use --table or --folder to only resync one table.",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := run(cmd, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.Table, "table", "", "Only resync the rule for this table.")
	cmd.Flags().StringVar(&opts.Folder, "folder", "", "Only resync the rule for this folder.")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Don't ask for confirmation.")
	return cmd
}

func run(cmd *cobra.Command, opts Options) error {
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

	return Main(ctx, svc.Syncer, opts)
}

// Main runs the resync selected by `opts`.
func Main(ctx context.Context, s syncer, opts Options) error {
	if opts.Table != "" && opts.Folder != "" {
		return errors.NewFriendlyError("Only one of --table and --folder can be set.")
	}

	var summary sync.Summary
	var err error
	switch {
	case opts.Table != "":
		summary, err = s.ResyncTable(ctx, opts.Table)
	case opts.Folder != "":
		summary, err = s.ResyncFolder(ctx, opts.Folder)
	default:
		if !opts.Yes {
			ok, err := promptYesOrNo("Are you sure? The current ./src folder will be deleted.")
			if err != nil {
				return errors.WithContext(err, "prompt")
			}
			if !ok {
				return nil
			}
		}
		summary, err = s.ResyncAll(ctx)
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"records":   summary.Records,
		"elapsed":   summary.Elapsed,
		"cancelled": summary.Cancelled,
	}).Debug("Resync finished")
	return nil
}
