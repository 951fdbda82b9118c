package upload

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/sync"
)

type uploader interface {
	UploadFile(ctx context.Context, path string) (sync.Outcome, error)
}

// New creates a new `upload` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload local changes to the records that the files were synced from",
		Long: "Upload the contents of each file to the record field it was synced from.\n" +
			"If the record was modified on the instance since the last sync, you're\n" +
			"asked whether to overwrite it.",
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

// Main uploads each file in order. It stops at the first failure.
func Main(ctx context.Context, u uploader, paths []string) error {
	for _, path := range paths {
		outcome, err := u.UploadFile(ctx, path)
		if err != nil {
			// Errors about the file itself are more useful without the
			// context.
			if _, ok := errors.RootCause(err).(errors.Friendly); ok {
				return err
			}
			return errors.WithContext(err, fmt.Sprintf("upload %s", path))
		}
		log.WithFields(log.Fields{
			"path":    path,
			"outcome": outcome,
		}).Debug("Finished upload")
	}
	return nil
}
