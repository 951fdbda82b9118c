// Package fswatch reports edits to the files in the source directory.
package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watcher sends the paths of files that were written.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan []string
}

// Watch watches the given folders within `srcDir`, including their
// subdirectories. Folders that don't exist yet are skipped.
func Watch(srcDir string, folders []string) (*Watcher, error) {
	pathsToWatch, err := getPathsToWatch(srcDir, folders)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	w := &Watcher{watcher: watcher}
	w.changes = combineUpdates(watcher.Events, w.addDir)
	go w.logErrors()
	return w, nil
}

// Changes returns the channel that receives the paths of written files.
// Writes that happen while the previous paths haven't been received yet are
// combined into a single update. The channel is closed by Close, and changes
// that haven't been received by then are dropped.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) logErrors() {
	for err := range w.watcher.Errors {
		log.WithError(err).Warn("File watcher error")
	}
}

// addDir starts watching a directory that was created after Watch was
// called. It returns false if `path` isn't a directory.
func (w *Watcher) addDir(path string) bool {
	fi, err := fs.Stat(path)
	if err != nil || !fi.IsDir() {
		return false
	}

	paths, err := getChildren(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to list new directory")
	}
	for _, p := range append([]string{path}, paths...) {
		if err := w.watcher.Add(p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to watch new directory")
		}
	}
	return true
}

func combineUpdates(updates <-chan fsnotify.Event, handleDir func(string) bool) chan []string {
	combined := make(chan []string)
	go func() {
		defer close(combined)

		pending := map[string]struct{}{}
		for {
			// Only try to send once there's something to send.
			var out chan []string
			var batch []string
			if len(pending) > 0 {
				out = combined
				batch = sortedPaths(pending)
			}

			select {
			case event, ok := <-updates:
				// The events channel is closed by Close, after which nothing
				// receives the pending changes.
				if !ok {
					return
				}

				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if event.Op&fsnotify.Create != 0 && handleDir(event.Name) {
					continue
				}
				pending[event.Name] = struct{}{}
			case out <- batch:
				pending = map[string]struct{}{}
			}
		}
	}()
	return combined
}

func sortedPaths(set map[string]struct{}) []string {
	var paths []string
	for path := range set {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func getPathsToWatch(srcDir string, folders []string) (paths []string, err error) {
	for _, folder := range folders {
		path := filepath.Join(srcDir, folder)

		fi, err := fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				log.WithField("path", path).Debug("Folder doesn't exist. Not watching it")
				continue
			}
			return nil, errors.WithContext(err, "stat")
		}
		if !fi.IsDir() {
			return nil, errors.New("%q is not a directory", path)
		}

		// Because fsnotify doesn't watch directories recursively, we walk
		// the directory's contents and add all subdirectories.
		subdirs, err := getChildren(path)
		if err != nil {
			return nil, errors.WithContext(err, "get subdirs")
		}
		paths = append(paths, path)
		paths = append(paths, subdirs...)
	}
	return paths, nil
}

func getChildren(dir string) (paths []string, err error) {
	err = afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if path != dir && fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
