package watch

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/fswatch"
	"github.com/sidkik/nowsync/pkg/sync"
)

// Mocked for unit testing.
var fs = afero.NewOsFs()

type uploader interface {
	Lookup(path string) (sync.TrackedFile, error)
	UploadFile(ctx context.Context, path string) (sync.Outcome, error)
}

type reporter interface {
	Info(msg string)
	Error(msg string)
}

// New creates a new `watch` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Upload tracked files whenever they're saved",
		Long: "Watch the source directory, and upload tracked files when their\n" +
			"contents change. Files that aren't tracked are ignored.",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := run(cmd); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(cmd *cobra.Command) error {
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

	cfg, err := svc.Syncer.SyncConfig()
	if err != nil {
		return err
	}

	var folders []string
	for _, rule := range cfg.Tables {
		folders = append(folders, rule.Folder)
	}

	watcher, err := fswatch.Watch(ws.SourceDir(), folders)
	if err != nil {
		return errors.WithContext(err, "watch source directory")
	}
	defer watcher.Close()

	svc.UI.Info("Watching for changes. Press Ctrl-C to stop.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths, ok := <-watcher.Changes():
			if !ok {
				return nil
			}
			uploadChanged(ctx, svc.Syncer, svc.UI, paths)
		}
	}
}

// uploadChanged uploads the tracked files whose contents differ from the
// last sync.
func uploadChanged(ctx context.Context, u uploader, r reporter, paths []string) {
	for _, path := range paths {
		tracked, err := u.Lookup(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("Ignoring change to untracked file")
			continue
		}

		hash, err := sync.HashFile(fs, tracked.Meta.FilePath)
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("Failed to hash changed file")
			continue
		}
		if hash == tracked.Meta.Hash {
			continue
		}

		if _, err := u.UploadFile(ctx, tracked.Meta.FilePath); err != nil {
			log.WithError(err).WithField("path", path).Warn("Failed to upload changed file")
			r.Error(errors.GetPrintableMessage(err))
		}
	}
}
