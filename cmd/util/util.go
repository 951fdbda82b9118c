package util

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/logging"
	"github.com/sidkik/nowsync/pkg/meta"
	"github.com/sidkik/nowsync/pkg/remote"
	"github.com/sidkik/nowsync/pkg/scope"
	"github.com/sidkik/nowsync/pkg/sync"
	"github.com/sidkik/nowsync/pkg/ui"
)

// WorkspaceFlag is the name of the persistent flag that selects the
// workspace directory.
const WorkspaceFlag = "workspace"

// Mocked for unit testing.
var (
	stdout    io.Writer = os.Stdout
	stdin     io.Reader = os.Stdin
	osExit              = os.Exit
	parseConn           = config.ParseConnection
	newClient           = remote.New
)

// HandleFatalError handles errors that are severe enough to terminate the
// program.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", errors.GetPrintableMessage(err))
	osExit(1)
}

// HandlePanic logs the panic before re-panicking so that it ends up in the
// log file.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("Unexpected panic")
		panic(r)
	}
}

// PromptYesOrNo asks the user a yes or no question. Anything other than an
// explicit yes is a no.
func PromptYesOrNo(prompt string) (bool, error) {
	fmt.Fprintf(stdout, "%s [y/N] ", prompt)
	resp, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.WithContext(err, "read response")
	}

	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// SignalContext returns a context that's cancelled when the user interrupts
// the program.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// GetWorkspace returns the workspace selected by the `--workspace` flag.
func GetWorkspace(cmd *cobra.Command) (config.Workspace, error) {
	root := "."
	if flag := cmd.Flag(WorkspaceFlag); flag != nil && flag.Value.String() != "" {
		root = flag.Value.String()
	}
	return config.NewWorkspace(root)
}

// Services are the components that sync operations are run with.
type Services struct {
	Workspace  config.Workspace
	Connection config.Connection
	Client     remote.Client
	Store      *meta.Store
	Syncer     *sync.Syncer
	UI         *ui.Terminal

	logFile io.Closer
}

// NewServices connects to the instance configured for the workspace, and
// loads the workspace's metadata and sync configuration. Close must be
// called once the services aren't needed anymore.
func NewServices(ctx context.Context, ws config.Workspace) (*Services, error) {
	conn, err := parseConn(ws)
	if err != nil {
		return nil, errors.WithContext(err, "parse connection config")
	}

	client, err := newClient(remote.Config{
		InstanceURL:   conn.InstanceURL,
		Authorization: conn.BasicAuth,
	})
	if err != nil {
		return nil, errors.WithContext(err, "create client")
	}

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(ws.ConfigDir(), 0755); err != nil {
		return nil, errors.WithContext(err, "create config dir")
	}

	// Mirror everything that's logged during the operation into the
	// workspace's log file.
	hook, logFile := logging.NewFileHook(ws.LogPath(), log.InfoLevel)
	log.AddHook(hook)

	logger := log.StandardLogger()
	store := meta.New(fs, ws, logger)
	loadResult := store.Load()
	log.WithFields(log.Fields{
		"migrated": loadResult.Migrated,
		"reset":    loadResult.Reset,
	}).Debug("Loaded metadata")

	terminal := ui.NewTerminal(ctx, stdin, stdout, os.Stderr)
	syncer := sync.New(sync.Options{
		Fs:          fs,
		Workspace:   ws,
		Store:       store,
		Scopes:      scope.New(client, store, logger),
		Client:      client,
		UI:          terminal,
		Log:         logger,
		InstanceURL: conn.InstanceURL,
	})

	return &Services{
		Workspace:  ws,
		Connection: conn,
		Client:     client,
		Store:      store,
		Syncer:     syncer,
		UI:         terminal,
		logFile:    logFile,
	}, nil
}

// Close releases the log file.
func (s *Services) Close() {
	if err := s.logFile.Close(); err != nil {
		log.WithError(err).Debug("Failed to close log file")
	}
}
