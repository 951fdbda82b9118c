package sync

import (
	"path"
	"regexp"
	"strings"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/remote"
)

// missingPlaceholderValue replaces placeholders whose field is empty.
const missingPlaceholderValue = "NONE"

var (
	placeholderRegex = regexp.MustCompile(`<([\w_]+)>`)
	unsafeCharsRegex = regexp.MustCompile(`[^A-Za-z0-9 \-+_()]`)
)

// compileSubdirPattern expands the `<field>` placeholders in `pattern` with
// the record's values. Each path segment is expanded separately, and values
// are sanitized before they're substituted, so a `/` in a value can't
// introduce new segments.
func compileSubdirPattern(pattern string, record remote.Record) string {
	segments := strings.Split(pattern, "/")
	for i, segment := range segments {
		segments[i] = placeholderRegex.ReplaceAllStringFunc(segment, func(match string) string {
			field := placeholderRegex.FindStringSubmatch(match)[1]
			if value := sanitize(record.Value(field)); value != "" {
				return value
			}
			return missingPlaceholderValue
		})
	}
	return strings.Join(segments, "/")
}

// subdirFields returns the fields referenced by `pattern`'s placeholders.
func subdirFields(pattern string) (fields []string) {
	for _, match := range placeholderRegex.FindAllStringSubmatch(pattern, -1) {
		fields = append(fields, match[1])
	}
	return fields
}

// sanitize replaces the characters that aren't safe in file names with
// spaces.
func sanitize(name string) string {
	return strings.TrimSpace(unsafeCharsRegex.ReplaceAllString(name, " "))
}

// sanitizePath sanitizes each segment of a slash separated path. Segments
// that are empty after sanitizing are dropped.
func sanitizePath(p string) string {
	var segments []string
	for _, segment := range strings.Split(p, "/") {
		if segment = sanitize(segment); segment != "" {
			segments = append(segments, segment)
		}
	}
	return path.Join(segments...)
}

// requiredFields returns the record fields needed to materialize the rule's
// records.
func requiredFields(rule config.TableRule) []string {
	fields := []string{rule.Key, remote.FieldScope}
	for _, mapping := range rule.Fields {
		fields = append(fields, mapping.Field)
	}
	fields = append(fields, subdirFields(rule.SubDirPattern)...)

	seen := map[string]struct{}{}
	var deduped []string
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		deduped = append(deduped, field)
	}
	return deduped
}

// recordDir returns the directory, relative to the rule's folder, that the
// record's files are written to.
func recordDir(rule config.TableRule, record remote.Record) string {
	// Records with several files get their own directory so that the
	// files stay together.
	if len(rule.Fields) > 1 {
		return sanitizeOr(record.Value(rule.Key), record.ID())
	}

	if rule.SubDirPattern == "" {
		return ""
	}
	return sanitizePath(compileSubdirPattern(rule.SubDirPattern, record))
}

// fileName returns the name of the file that holds `mapping`'s field.
func fileName(rule config.TableRule, mapping config.FieldMapping, record remote.Record) string {
	name := mapping.Name
	if name == "" {
		name = record.Value(rule.Key)
	}
	return sanitizeOr(name, record.ID()) + "." + mapping.Extension
}

func sanitizeOr(name, fallback string) string {
	if sanitized := sanitize(name); sanitized != "" {
		return sanitized
	}
	return sanitize(fallback)
}
