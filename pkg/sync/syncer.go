package sync

import (
	"context"
	"fmt"
	"path/filepath"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/meta"
	"github.com/sidkik/nowsync/pkg/remote"
	"github.com/sidkik/nowsync/pkg/scope"
	"github.com/sidkik/nowsync/pkg/ui"
)

// Mocked out for unit testing.
var (
	parseSyncConfig         = config.ParseSyncConfig
	createInitialSyncConfig = config.CreateInitialSyncConfig
)

// Options are the collaborators of a Syncer.
type Options struct {
	Fs        afero.Fs
	Workspace config.Workspace
	Store     *meta.Store
	Scopes    *scope.Resolver
	Client    remote.Client
	UI        ui.UI
	Log       log.FieldLogger

	// InstanceURL is used to build links to records.
	InstanceURL string

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Syncer runs sync operations between the instance and the workspace's
// source directory.
type Syncer struct {
	fs          afero.Fs
	ws          config.Workspace
	store       *meta.Store
	scopes      *scope.Resolver
	client      remote.Client
	ui          ui.UI
	log         log.FieldLogger
	clock       clockwork.Clock
	instanceURL string

	// busy is held for the duration of an operation.
	busy goSync.Mutex

	configLock      goSync.Mutex
	config          config.SyncConfig
	configErr       error
	lastReportedErr string
}

// Summary describes a finished resync.
type Summary struct {
	// Records is the number of records processed. A record may produce
	// zero, one or many files.
	Records int

	Elapsed   time.Duration
	Cancelled bool
}

// New creates a Syncer and loads the workspace's sync configuration. A
// configuration error doesn't prevent the Syncer from being created. It's
// reported to the user, and resyncs do nothing until it's fixed.
func New(opts Options) *Syncer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Syncer{
		fs:          opts.Fs,
		ws:          opts.Workspace,
		store:       opts.Store,
		scopes:      opts.Scopes,
		client:      opts.Client,
		ui:          opts.UI,
		log:         opts.Log,
		clock:       opts.Clock,
		instanceURL: opts.InstanceURL,
	}
	s.LoadSyncConfig()
	return s
}

// LoadSyncConfig reads the sync configuration from disk. If there is no
// configuration, an example configuration is created for the user to
// review. Each distinct error is only shown to the user once.
func (s *Syncer) LoadSyncConfig() error {
	cfg, err := parseSyncConfig(s.ws)
	if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
		err = s.createInitialSyncConfig()
	}

	s.configLock.Lock()
	defer s.configLock.Unlock()

	if err != nil {
		s.configErr = err
		s.log.WithError(err).Warn("Failed to load sync config")

		msg := errors.GetPrintableMessage(err)
		if msg != s.lastReportedErr {
			s.ui.Error(msg)
			s.lastReportedErr = msg
		}
		return err
	}

	s.config = cfg
	s.configErr = nil
	s.lastReportedErr = ""
	s.log.WithFields(log.Fields{
		"path":   cfg.GetPath(),
		"tables": len(cfg.Tables),
	}).Debug("Loaded sync config")
	return nil
}

func (s *Syncer) createInitialSyncConfig() error {
	path, err := createInitialSyncConfig(s.ws)
	if err != nil {
		return errors.WithContext(err, "create initial sync config")
	}

	s.ui.Info(fmt.Sprintf("Check your default sync config at %s", path))
	return errors.ConfigError{
		Path:   filepath.Base(path),
		Reason: "created a default configuration. Review it, and resync",
	}
}

// SyncConfig returns the loaded configuration, or the error that prevented
// it from loading.
func (s *Syncer) SyncConfig() (config.SyncConfig, error) {
	s.configLock.Lock()
	defer s.configLock.Unlock()
	return s.config, s.configErr
}

// ResyncAll deletes the source directory and the tracked files, and
// downloads every table in the sync configuration again. Tables are synced
// in order. Cancellation, either through the context or the progress
// indicator, is only checked between tables. A table that fails to sync is
// reported and skipped, except when the instance rejects our credentials,
// which aborts the resync with errors.ErrNotAuthenticated. The metadata is
// saved in every case.
func (s *Syncer) ResyncAll(ctx context.Context) (Summary, error) {
	if !s.busy.TryLock() {
		return Summary{}, errors.ErrOperationInProgress
	}
	defer s.busy.Unlock()

	// Pick up changes made since the last operation.
	if err := s.LoadSyncConfig(); err != nil {
		return Summary{}, nil
	}
	cfg, _ := s.SyncConfig()

	start := s.clock.Now()
	progress := s.ui.Progress("Syncing records", true)
	defer progress.Complete()

	s.store.ClearAll()
	if err := s.fs.RemoveAll(s.ws.SourceDir()); err != nil {
		s.log.WithError(err).Warn("Failed to delete source directory")
	}

	var authFailed bool
	if err := s.scopes.RefreshAllScopes(ctx); err != nil {
		if errors.IsNotAuthenticated(err) {
			authFailed = true
		} else {
			s.log.WithError(err).Warn("Failed to refresh applications")
		}
	}

	var cancelled bool
	for i, rule := range cfg.Tables {
		if authFailed {
			break
		}
		if progress.IsCancelled() || ctx.Err() != nil {
			cancelled = true
			s.log.WithField("remaining", len(cfg.Tables)-i).Info("Resync cancelled")
			break
		}

		progress.Report(i*100/len(cfg.Tables),
			fmt.Sprintf("%s (%d of %d)...", rule.Table, i+1, len(cfg.Tables)))

		// Tables that were started are always finished.
		_, err := s.resyncData(context.WithoutCancel(ctx), rule)
		switch {
		case err == nil:
		case errors.IsNotAuthenticated(err):
			authFailed = true
		default:
			s.log.WithError(err).WithField("table", rule.Table).Error("Failed to resync table")
			s.ui.Error(fmt.Sprintf("Error while resyncing table %s", rule.Table))
		}
	}

	if !cancelled && !authFailed {
		s.store.SetGlobal(meta.LastResyncKey, s.clock.Now().UTC().Format(time.RFC3339))
	}
	saveErr := s.store.Save()
	summary := Summary{
		Records:   s.store.FileCount(),
		Elapsed:   s.clock.Since(start),
		Cancelled: cancelled,
	}
	if authFailed {
		return summary, errors.ErrNotAuthenticated
	}
	if saveErr != nil {
		return summary, errors.WithContext(saveErr, "save metadata")
	}

	s.ui.Info(fmt.Sprintf("Sync finished. Elapsed time: %ds. Files created: %d",
		int(summary.Elapsed.Seconds()), summary.Records))
	return summary, nil
}

// ResyncTable resyncs the rule for `table`. It does nothing if no rule
// syncs the table.
func (s *Syncer) ResyncTable(ctx context.Context, table string) (Summary, error) {
	return s.resyncRule(ctx, func(cfg config.SyncConfig) (config.TableRule, bool) {
		return cfg.RuleForTable(table)
	})
}

// ResyncFolder resyncs the rule for `folder`. It does nothing if no rule
// uses the folder.
func (s *Syncer) ResyncFolder(ctx context.Context, folder string) (Summary, error) {
	return s.resyncRule(ctx, func(cfg config.SyncConfig) (config.TableRule, bool) {
		return cfg.RuleForFolder(folder)
	})
}

func (s *Syncer) resyncRule(ctx context.Context,
	find func(config.SyncConfig) (config.TableRule, bool)) (Summary, error) {
	if !s.busy.TryLock() {
		return Summary{}, errors.ErrOperationInProgress
	}
	defer s.busy.Unlock()

	cfg, err := s.SyncConfig()
	if err != nil {
		return Summary{}, nil
	}

	rule, ok := find(cfg)
	if !ok {
		return Summary{}, nil
	}

	start := s.clock.Now()
	progress := s.ui.Progress(fmt.Sprintf("Syncing %s", rule.Table), false)
	defer progress.Complete()

	records, err := s.resyncData(ctx, rule)
	if saveErr := s.store.Save(); saveErr != nil && err == nil {
		err = errors.WithContext(saveErr, "save metadata")
	}
	if err != nil {
		if errors.IsNotAuthenticated(err) {
			return Summary{}, errors.ErrNotAuthenticated
		}
		return Summary{}, errors.WithContext(err, fmt.Sprintf("resync %s", rule.Table))
	}

	s.ui.Info(fmt.Sprintf("Successfully pulled %s", rule.Table))
	return Summary{Records: records, Elapsed: s.clock.Since(start)}, nil
}

// resyncData replaces the rule's folder with the rule's records on the
// instance. It returns the number of records processed.
func (s *Syncer) resyncData(ctx context.Context, rule config.TableRule) (int, error) {
	s.store.ClearFolder(rule.Folder)

	records, err := s.client.List(ctx, rule.Table, remote.ListOptions{
		Query:  rule.Query,
		Fields: requiredFields(rule),
	})
	if err != nil {
		return 0, errors.WithContext(err, "fetch records")
	}

	folder := filepath.Join(s.ws.SourceDir(), rule.Folder)
	if err := s.fs.RemoveAll(folder); err != nil {
		s.log.WithError(err).WithField("folder", folder).Debug("Failed to delete folder")
	}
	if err := s.fs.MkdirAll(folder, 0755); err != nil {
		return 0, errors.WithContext(err, "create folder")
	}

	for _, record := range records {
		s.saveRecord(rule, folder, record)
	}
	s.store.AddRecordCount(len(records))

	s.log.WithFields(log.Fields{
		"table":   rule.Table,
		"records": len(records),
	}).Info("Synced table")
	return len(records), nil
}

// saveRecord writes each mapped field of the record to its own file, and
// tracks the files. Failures are reported per file.
func (s *Syncer) saveRecord(rule config.TableRule, folder string, record remote.Record) {
	dir := filepath.Join(folder, filepath.FromSlash(recordDir(rule, record)))
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		s.log.WithError(err).WithField("dir", dir).Error("Failed to create record directory")
	}

	for _, mapping := range rule.Fields {
		path := filepath.Join(dir, fileName(rule, mapping, record))

		// Fields protected by a policy come back empty.
		content := record.Value(mapping.Field)
		if content == "" {
			continue
		}

		content = NormalizeLineEndings(content)
		if err := afero.WriteFile(s.fs, path, []byte(content), 0644); err != nil {
			s.log.WithError(err).WithField("path", path).Error("Failed to write file")
			s.ui.Error(fmt.Sprintf("Error synchronizing file %s", path))
			continue
		}

		s.store.Append(rule.Folder, meta.FileMetadata{
			FilePath: path,
			RemoteID: record.ID(),
			Field:    mapping.Field,
			Hash:     Hash(content),
			Scope:    record.ScopeID(),
		})
	}
}
