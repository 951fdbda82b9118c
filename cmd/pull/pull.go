package pull

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/sync"
)

type puller interface {
	PullFile(ctx context.Context, path string) (sync.Outcome, error)
}

// New creates a new `pull` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "pull FILE...",
		Short: "Replace files with the current version of their records",
		Long: "Download the record field that each file was synced from.\n" +
			"If the file was modified locally, you're asked whether to overwrite it.",
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(cmd, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(cmd *cobra.Command, paths []string) error {
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

	return Main(ctx, svc.Syncer, paths)
}

// Main pulls each file in order. It stops at the first failure.
func Main(ctx context.Context, p puller, paths []string) error {
	for _, path := range paths {
		outcome, err := p.PullFile(ctx, path)
		if err != nil {
			if _, ok := errors.RootCause(err).(errors.Friendly); ok {
				return err
			}
			return errors.WithContext(err, fmt.Sprintf("pull %s", path))
		}
		log.WithFields(log.Fields{
			"path":    path,
			"outcome": outcome,
		}).Debug("Finished pull")
	}
	return nil
}
