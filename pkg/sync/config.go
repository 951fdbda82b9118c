package sync

import (
	"path/filepath"
	"strings"

	"github.com/sidkik/nowsync/pkg/config"
)

// RuleForFile returns the rule that owns `path`. The first directory under
// `srcDir` must be exactly the rule's folder, and `path` must be inside it.
func RuleForFile(cfg config.SyncConfig, srcDir, path string) (config.TableRule, bool) {
	remaining, ok := matchPattern(path, srcDir)
	if !ok || remaining == "" {
		return config.TableRule{}, false
	}

	segments := strings.SplitN(filepath.ToSlash(remaining), "/", 2)
	if len(segments) != 2 || segments[1] == "" {
		return config.TableRule{}, false
	}
	return cfg.RuleForFolder(segments[0])
}

// matchPattern returns true if `path` is either an exact match, or a child of
// `pattern`.
// For example, `/foo`, `/foo/bar`, and `/foo/bar/baz` match `/foo`.
// `foo` does not match `/foo` because it's a relative path.
func matchPattern(path string, pattern string) (remaining string, ok bool) {
	relativePath, err := filepath.Rel(pattern, path)
	if err != nil || relativePath == ".." ||
		strings.HasPrefix(relativePath, ".."+string(filepath.Separator)) {
		return "", false
	}

	if relativePath == "." {
		return "", true
	}
	return relativePath, true
}
