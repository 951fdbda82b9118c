package config

import (
	"os"

	"github.com/spf13/afero"
)

// fs backs every config read and write. Tests swap in an afero.MemMapFs.
var fs = afero.NewOsFs()

func isPathNotFoundError(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	if fileErr, ok := err.(*os.PathError); ok &&
		fileErr.Op == "open" && fileErr.Err.Error() == "no such file or directory" {
		return true
	}
	return false
}

func exists(path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if isPathNotFoundError(err) {
		return false, nil
	}
	return false, err
}
