package sync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/errors"
)

// ExactCasePath returns the absolute path of `path`, with each component
// spelled the way it's stored on disk. Paths given by users and editors on
// case insensitive filesystems don't always match the tracked paths
// otherwise.
func ExactCasePath(fs afero.Fs, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WithContext(err, "get absolute path")
	}

	volume := filepath.VolumeName(absPath)
	exact := volume + string(filepath.Separator)
	rest := strings.TrimPrefix(absPath[len(volume):], string(filepath.Separator))
	if rest == "" {
		return exact, nil
	}

	for _, component := range strings.Split(rest, string(filepath.Separator)) {
		name, err := exactCaseName(fs, exact, component)
		if err != nil {
			return "", err
		}
		exact = filepath.Join(exact, name)
	}
	return exact, nil
}

func exactCaseName(fs afero.Fs, dir, name string) (string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.FileNotFound{Path: filepath.Join(dir, name)}
		}
		return "", errors.WithContext(err, "read dir")
	}

	var folded string
	for _, entry := range entries {
		if entry.Name() == name {
			return name, nil
		}
		if folded == "" && strings.EqualFold(entry.Name(), name) {
			folded = entry.Name()
		}
	}
	if folded == "" {
		return "", errors.FileNotFound{Path: filepath.Join(dir, name)}
	}
	return folded, nil
}
