// Package logging mirrors log entries into a log file in the workspace, so
// that the history of sync operations can be inspected after the fact.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sidkik/nowsync/pkg/version"
)

const (
	maxSizeMB  = 5
	maxBackups = 3
	maxAgeDays = 28
)

// fileFormatter formats entries for the log file. Colors are disabled since
// the file isn't read by a terminal.
var fileFormatter = &logrus.TextFormatter{
	FullTimestamp: true,
	DisableColors: true,
}

// NewFileHook creates a hook that writes every entry at or above `level` to
// `path`. The file is rotated once it grows too large. The returned closer
// must be closed when the process exits.
func NewFileHook(path string, level logrus.Level) (logrus.Hook, io.Closer) {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return newHook(writer, level), writer
}

func newHook(out io.Writer, level logrus.Level) *hook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &hook{levels: levels, out: out}
}

type hook struct {
	levels []logrus.Level
	out    io.Writer
}

func (h *hook) Levels() []logrus.Level {
	return h.levels
}

func (h *hook) Fire(entry *logrus.Entry) error {
	dataCopy := logrus.Fields{
		"nowsync-version": version.Version,
	}
	for k, v := range entry.Data {
		dataCopy[k] = v
	}

	// Copy the entry so that the version field doesn't show up in the
	// terminal output.
	entryCopy := *entry
	entryCopy.Data = dataCopy

	logBytes, err := fileFormatter.Format(&entryCopy)
	if err != nil {
		logrus.WithError(err).Debug("Failed to format log entry for log file")
		return nil
	}

	if _, err := h.out.Write(logBytes); err != nil {
		logrus.WithError(err).Debug("Failed to write log file")
	}

	// Never return an error because doing so causes the error to be printed
	// directly to `stderr`, which messes up the prompts:
	// https://github.com/Sirupsen/logrus/issues/116
	return nil
}
