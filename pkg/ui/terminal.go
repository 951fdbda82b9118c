package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// Terminal prompts the user over a text stream.
type Terminal struct {
	ctx    context.Context
	out    io.Writer
	errOut io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewTerminal creates a terminal UI. Operations are cancelled when `ctx` is
// done.
func NewTerminal(ctx context.Context, in io.Reader, out, errOut io.Writer) *Terminal {
	return &Terminal{
		ctx:    ctx,
		out:    out,
		errOut: errOut,
		reader: bufio.NewReader(in),
	}
}

// Confirm prints the choices as a numbered list, and reads the user's
// selection.
func (t *Terminal) Confirm(question string, choices ...string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, question)
	if len(choices) == 0 {
		return "", nil
	}

	fmt.Fprintln(t.out)
	for i, choice := range choices {
		fmt.Fprintf(t.out, "\t%d. %s\n", i+1, choice)
	}
	fmt.Fprintln(t.out)

	for {
		fmt.Fprintf(t.out, "Please choose one [1-%d]: ", len(choices))
		resp, err := t.reader.ReadString('\n')
		if err != nil {
			return "", errors.WithContext(err, "read response")
		}

		choice, err := strconv.Atoi(strings.TrimSpace(resp))
		if err != nil || choice < 1 || choice > len(choices) {
			// Try again if the input is invalid.
			continue
		}
		return choices[choice-1], nil
	}
}

// Progress prints a line whenever progress is reported.
func (t *Terminal) Progress(title string, cancellable bool) Progress {
	fmt.Fprintf(t.out, "%s...\n", title)
	return &terminalProgress{
		terminal:    t,
		title:       title,
		cancellable: cancellable,
	}
}

// Diff prints a line diff from the remote content to the local file.
func (t *Terminal) Diff(remoteContent, localPath string) error {
	local, err := afero.ReadFile(fs, localPath)
	if err != nil {
		return errors.WithContext(err, "read local file")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "--- remote\n+++ %s\n", localPath)
	fmt.Fprint(t.out, LineDiff(remoteContent, string(local)))
	return nil
}

func (t *Terminal) Info(msg string) {
	fmt.Fprintln(t.out, msg)
}

func (t *Terminal) Error(msg string) {
	fmt.Fprintln(t.errOut, msg)
}

// LineDiff returns a unified-style listing of the lines that differ between
// `a` and `b`. Unchanged lines are prefixed with a space, removed lines with
// `-`, and added lines with `+`.
func LineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	charsA, charsB, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(charsA, charsB, false), lines)

	var sb strings.Builder
	for _, diff := range diffs {
		prefix := " "
		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}

		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix + line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

type terminalProgress struct {
	terminal    *Terminal
	title       string
	cancellable bool
}

func (p *terminalProgress) Report(percent int, msg string) {
	fmt.Fprintf(p.terminal.out, "[%3d%%] %s\n", percent, strings.TrimSpace(msg))
}

func (p *terminalProgress) IsCancelled() bool {
	return p.cancellable && p.terminal.ctx.Err() != nil
}

func (p *terminalProgress) Complete() {
	fmt.Fprintf(p.terminal.out, "%s... Done\n", p.title)
}
