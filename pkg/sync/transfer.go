package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/meta"
	"github.com/sidkik/nowsync/pkg/remote"
	"github.com/sidkik/nowsync/pkg/ui"
)

const (
	uploadConflictQuestion = "The record has been modified on instance since last sync. " +
		"Overwrite remote version?"
	pullConflictQuestion = "The file has been modified locally. " +
		"Overwrite local version with the remote one?"
)

// Outcome describes how a single file operation ended.
type Outcome int

const (
	// Updated means that the destination was overwritten.
	Updated Outcome = iota

	// Skipped means that the user chose not to overwrite a modified
	// destination.
	Skipped

	// DiffShown means that the user looked at the differences instead of
	// overwriting. Nothing was changed.
	DiffShown

	// InSync means that both sides were already identical.
	InSync
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case DiffShown:
		return "diff shown"
	case InSync:
		return "in sync"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// TrackedFile is a file that's linked to a record field.
type TrackedFile struct {
	Rule config.TableRule
	Meta meta.FileMetadata
}

// Lookup returns the record field that the file at `path` was synced from.
func (s *Syncer) Lookup(path string) (TrackedFile, error) {
	return s.lookup(path, true)
}

func (s *Syncer) lookup(path string, mustExist bool) (TrackedFile, error) {
	cfg, err := s.SyncConfig()
	if err != nil {
		return TrackedFile{}, errors.ErrNoSyncConfig
	}

	exactPath, err := ExactCasePath(s.fs, path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); !ok || mustExist {
			return TrackedFile{}, err
		}

		// Deleted files can still be pulled again.
		exactPath, err = filepath.Abs(path)
		if err != nil {
			return TrackedFile{}, errors.WithContext(err, "get absolute path")
		}
	}

	rule, ok := RuleForFile(cfg, s.ws.SourceDir(), exactPath)
	if !ok {
		return TrackedFile{}, errors.UnrecognizedFileError{Path: exactPath}
	}

	file, ok := s.store.Find(rule.Folder, exactPath)
	if !ok {
		return TrackedFile{}, errors.NotTrackedError{Path: exactPath}
	}
	return TrackedFile{Rule: rule, Meta: file}, nil
}

// RecordURL returns the link that opens the record of the file at `path` on
// the instance.
func (s *Syncer) RecordURL(path string) (string, error) {
	tracked, err := s.Lookup(path)
	if err != nil {
		return "", err
	}
	return remote.RecordURL(s.instanceURL, tracked.Rule.Table, tracked.Meta.RemoteID), nil
}

// UploadFile pushes the contents of the file at `path` to the record field
// it was synced from. Only that field is updated. If the field was modified
// on the instance since the last sync, the user decides whether to
// overwrite it.
func (s *Syncer) UploadFile(ctx context.Context, path string) (Outcome, error) {
	if !s.busy.TryLock() {
		return Skipped, errors.ErrOperationInProgress
	}
	defer s.busy.Unlock()

	tracked, err := s.lookup(path, true)
	if err != nil {
		return Skipped, err
	}

	if !s.scopes.IsFileInCurrentScope(ctx, tracked.Meta) {
		return Skipped, s.scopes.MismatchError()
	}

	remoteContent, err := s.fetchField(ctx, tracked)
	if err != nil {
		return Skipped, err
	}

	if !CheckIntegrity(tracked.Meta.Hash, remoteContent) {
		outcome, err := s.confirmOverwrite(uploadConflictQuestion, remoteContent, tracked.Meta.FilePath)
		if err != nil || outcome != Updated {
			return outcome, err
		}
	}

	localContent, err := afero.ReadFile(s.fs, tracked.Meta.FilePath)
	if err != nil {
		return Skipped, errors.WithContext(err, "read file")
	}

	_, err = s.client.Update(ctx, tracked.Rule.Table, tracked.Meta.RemoteID,
		map[string]string{tracked.Meta.Field: string(localContent)})
	if err != nil {
		if errors.IsNotAuthenticated(err) {
			return Skipped, errors.ErrNotAuthenticated
		}
		return Skipped, errors.WithContext(err, "upload")
	}

	s.store.SetHash(tracked.Rule.Folder, tracked.Meta.FilePath,
		Hash(NormalizeLineEndings(string(localContent))))
	if err := s.store.Save(); err != nil {
		return Updated, errors.WithContext(err, "save metadata")
	}

	s.log.WithField("path", tracked.Meta.FilePath).Info("Uploaded file")
	s.ui.Info("Upload was successful")
	return Updated, nil
}

// PullFile replaces the file at `path` with the current contents of its
// record field. If the local file differs from the remote field, the user
// decides whether to overwrite it. A deleted file is restored without
// asking.
func (s *Syncer) PullFile(ctx context.Context, path string) (Outcome, error) {
	if !s.busy.TryLock() {
		return Skipped, errors.ErrOperationInProgress
	}
	defer s.busy.Unlock()

	tracked, err := s.lookup(path, false)
	if err != nil {
		return Skipped, err
	}
	filePath := tracked.Meta.FilePath
	name := filepath.Base(filePath)

	remoteContent, err := s.fetchField(ctx, tracked)
	if err != nil {
		return Skipped, err
	}

	localContent, err := afero.ReadFile(s.fs, filePath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Skipped, errors.WithContext(err, "read file")
	case NormalizeLineEndings(string(localContent)) == remoteContent:
		s.ui.Info(fmt.Sprintf("%s is already in sync", name))
		return InSync, nil
	default:
		outcome, err := s.confirmOverwrite(pullConflictQuestion, remoteContent, filePath)
		if err != nil || outcome != Updated {
			return outcome, err
		}
	}

	if err := s.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return Skipped, errors.WithContext(err, "create directory")
	}
	if err := afero.WriteFile(s.fs, filePath, []byte(remoteContent), 0644); err != nil {
		return Skipped, errors.WithContext(err, "write file")
	}

	s.store.SetHash(tracked.Rule.Folder, filePath, Hash(remoteContent))
	if err := s.store.Save(); err != nil {
		return Updated, errors.WithContext(err, "save metadata")
	}

	s.log.WithField("path", filePath).Info("Pulled file")
	s.ui.Info(fmt.Sprintf("Successfully pulled %s", name))
	return Updated, nil
}

// fetchField returns the normalized remote contents of the tracked field.
func (s *Syncer) fetchField(ctx context.Context, tracked TrackedFile) (string, error) {
	record, err := s.client.Get(ctx, tracked.Rule.Table, tracked.Meta.RemoteID, tracked.Meta.Field)
	if err != nil {
		if errors.IsNotAuthenticated(err) {
			return "", errors.ErrNotAuthenticated
		}
		return "", errors.WithContext(err, "fetch remote version")
	}

	content, err := record.String(tracked.Meta.Field)
	if err != nil {
		return "", errors.WithContext(err, "fetch remote version")
	}
	return NormalizeLineEndings(content), nil
}

// confirmOverwrite asks the user whether to overwrite a destination that
// changed since the last sync. Showing the diff never overwrites anything.
func (s *Syncer) confirmOverwrite(question, remoteContent, localPath string) (Outcome, error) {
	choice, err := s.ui.Confirm(question, ui.ChoiceSkip, ui.ChoiceOverwrite, ui.ChoiceShowDiff)
	if err != nil {
		return Skipped, errors.WithContext(err, "prompt")
	}

	switch choice {
	case ui.ChoiceOverwrite:
		return Updated, nil
	case ui.ChoiceShowDiff:
		if err := s.ui.Diff(remoteContent, localPath); err != nil {
			return DiffShown, errors.WithContext(err, "show diff")
		}
		return DiffShown, nil
	default:
		return Skipped, nil
	}
}
