package status

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/cmd/util"
	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/meta"
	"github.com/sidkik/nowsync/pkg/sync"
)

// Mocked for unit testing.
var (
	fs               = afero.NewOsFs()
	stdout io.Writer = os.Stdout
)

const (
	modified  = "modified"
	deleted   = "deleted"
	untracked = "untracked"
)

type index interface {
	TrackedFiles() []meta.FileMetadata
	FindAnywhere(filePath string) (meta.FileMetadata, bool)
	Global(key string) (interface{}, bool)
}

// New creates a new `status` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "status [FILE...]",
		Short: "List the tracked files that changed since they were last synced",
		Long: "List the tracked files whose contents differ from the version that was\n" +
			"last pulled or uploaded. When files are given, only they are checked.\n" +
			"No requests are made to the instance.",
		Run: func(cmd *cobra.Command, args []string) {
			ws, err := util.GetWorkspace(cmd)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "get workspace"))
			}

			store := meta.New(fs, ws, log.StandardLogger())
			store.Load()
			if err := Main(ws, store, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

// Main prints the status of the tracked files that changed locally. If
// `paths` is empty, every tracked file is checked.
func Main(ws config.Workspace, idx index, paths []string) error {
	if lastResync, ok := idx.Global(meta.LastResyncKey); ok {
		fmt.Fprintf(stdout, "Last full resync: %v\n\n", lastResync)
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	changed := 0
	files, err := filesToCheck(idx, paths)
	if err != nil {
		return err
	}
	for _, file := range files {
		state := untracked
		if file.tracked {
			state, err = fileState(file.FileMetadata)
			if err != nil {
				return errors.WithContext(err, fmt.Sprintf("check %s", file.FilePath))
			}
		}
		if state == "" {
			continue
		}

		if changed == 0 {
			fmt.Fprintln(w, "STATUS\tFILE")
		}
		changed++
		fmt.Fprintf(w, "%s\t%s\n", state, relPath(ws, file.FilePath))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if changed == 0 {
		fmt.Fprintln(stdout, "All tracked files are in sync.")
	}
	return nil
}

type checkedFile struct {
	meta.FileMetadata
	tracked bool
}

func filesToCheck(idx index, paths []string) (files []checkedFile, err error) {
	if len(paths) == 0 {
		for _, file := range idx.TrackedFiles() {
			files = append(files, checkedFile{file, true})
		}
		return files, nil
	}

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.WithContext(err, "get absolute path")
		}

		file, ok := idx.FindAnywhere(absPath)
		if !ok {
			file.FilePath = absPath
		}
		files = append(files, checkedFile{file, ok})
	}
	return files, nil
}

func fileState(file meta.FileMetadata) (string, error) {
	exists, err := afero.Exists(fs, file.FilePath)
	if err != nil {
		return "", err
	}
	if !exists {
		return deleted, nil
	}

	hash, err := sync.HashFile(fs, file.FilePath)
	if err != nil {
		return "", err
	}
	if hash != file.Hash {
		return modified, nil
	}
	return "", nil
}

func relPath(ws config.Workspace, path string) string {
	rel, err := filepath.Rel(ws.Root, path)
	if err != nil {
		return path
	}
	return rel
}
