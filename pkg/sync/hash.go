package sync

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/errors"
)

// Hash returns the hex encoded MD5 hash of `content`. The hash detects
// changes, it isn't used for anything security related.
func Hash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NormalizeLineEndings converts CRLF line endings to LF. Content must be
// normalized before it's hashed.
func NormalizeLineEndings(content string) string {
	return strings.ReplaceAll(content, "\r\n", "\n")
}

// CheckIntegrity returns whether `content` hashes to `storedHash`.
func CheckIntegrity(storedHash, content string) bool {
	return Hash(content) == storedHash
}

// HashFile returns the hash of the normalized contents of the file at the
// given path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	var contents strings.Builder
	if _, err := io.Copy(&contents, f); err != nil {
		return "", errors.WithContext(err, "read")
	}
	return Hash(NormalizeLineEndings(contents.String())), nil
}
