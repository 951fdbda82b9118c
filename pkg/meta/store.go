// Package meta persists the index that links files on disk to the remote
// records and fields they were synced from.
package meta

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
)

// FileMetadata links a file on disk to the record field it was synced from.
type FileMetadata struct {
	// FilePath is the absolute, case-exact path of the file.
	FilePath string `json:"filePath"`
	RemoteID string `json:"sysId"`
	Field    string `json:"field"`

	// Hash is the hash of the contents as of the last sync, after line
	// endings were normalized.
	Hash string `json:"hash"`

	// Scope is the remote ID of the application the record belongs to.
	Scope string `json:"scope,omitempty"`
}

// ApplicationMetadata describes an application (scope) on the instance.
type ApplicationMetadata struct {
	Scope    string `json:"scope"`
	Name     string `json:"name"`
	RemoteID string `json:"sysId"`
}

// Index is the persisted document.
type Index struct {
	Files map[string][]FileMetadata `json:"files"`
	Apps  []ApplicationMetadata     `json:"apps"`

	// FileCount is the number of records processed since the index was
	// last cleared. A record may produce zero, one or many files.
	FileCount int `json:"filesCount"`

	Globals map[string]interface{} `json:"globals,omitempty"`
}

func emptyIndex() Index {
	return Index{
		Files: map[string][]FileMetadata{},
		Apps:  []ApplicationMetadata{},
	}
}

// LoadResult describes what happened while loading the index.
type LoadResult struct {
	// Migrated is set when the index was imported from the legacy location.
	Migrated bool

	// Reset is set when the stored index couldn't be read and was replaced
	// by an empty one.
	Reset bool
}

// Store holds the index in memory. Changes are only persisted by Save.
type Store struct {
	fs         afero.Fs
	path       string
	legacyPath string
	log        logrus.FieldLogger

	mu    sync.Mutex
	index Index
}

// New creates a store for the workspace's index. The index is empty until
// Load is called.
func New(fs afero.Fs, ws config.Workspace, log logrus.FieldLogger) *Store {
	return &Store{
		fs:         fs,
		path:       ws.MetadataPath(),
		legacyPath: ws.LegacyMetadataPath(),
		log:        log,
		index:      emptyIndex(),
	}
}

// Load reads the index from disk. An index in the legacy location is
// migrated, and the legacy file is removed. If no index exists, or the
// stored index is unreadable, an empty index is created and saved. Load
// never fails: problems are logged and recovered from.
func (s *Store) Load() (res LoadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index, ok := s.readLegacy(); ok {
		s.index = index
		res.Migrated = true
		if err := s.saveLocked(); err != nil {
			s.log.WithError(err).Error("Failed to save migrated metadata")
			return res
		}
		if err := s.fs.Remove(s.legacyPath); err != nil {
			s.log.WithError(err).Warn("Failed to remove legacy metadata")
		}
		return res
	}

	index, err := readIndex(s.fs, s.path)
	switch {
	case err == nil:
		s.index = index
		return res
	case os.IsNotExist(err):
		s.log.WithField("path", s.path).Debug("No metadata found. Creating an empty index")
	default:
		s.log.WithError(err).WithField("path", s.path).Warn(
			"Failed to load metadata. Resetting to an empty index")
		res.Reset = true
	}

	s.index = emptyIndex()
	if err := s.saveLocked(); err != nil {
		s.log.WithError(err).Error("Failed to save empty metadata")
	}
	return res
}

func (s *Store) readLegacy() (Index, bool) {
	if _, err := s.fs.Stat(s.legacyPath); err != nil {
		return Index{}, false
	}

	index, err := readIndex(s.fs, s.legacyPath)
	if err != nil {
		s.log.WithError(err).WithField("path", s.legacyPath).Warn(
			"Failed to migrate legacy metadata")

		// Move the file aside so that the migration is only attempted once.
		if err := s.fs.Rename(s.legacyPath, CorruptLegacyPath(s.legacyPath)); err != nil {
			s.log.WithError(err).Warn("Failed to move corrupt legacy metadata")
		}
		return Index{}, false
	}
	return index, true
}

// CorruptLegacyPath is where a legacy index that couldn't be migrated is
// moved to.
func CorruptLegacyPath(legacyPath string) string {
	return legacyPath + ".corrupt"
}

func readIndex(fs afero.Fs, path string) (Index, error) {
	indexBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		return Index{}, err
	}

	var index Index
	if err := json.Unmarshal(indexBytes, &index); err != nil {
		return Index{}, errors.WithContext(err, "unmarshal")
	}
	if index.Files == nil {
		index.Files = map[string][]FileMetadata{}
	}
	if index.Apps == nil {
		index.Apps = []ApplicationMetadata{}
	}
	return index, nil
}

// Save persists the index.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	indexBytes, err := json.Marshal(s.index)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.WithContext(err, "create config dir")
	}

	// Write to a temporary file first so that a crash never leaves a
	// truncated index behind.
	tmpPath := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, indexBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return errors.WithContext(err, "rename")
	}
	return nil
}

// ClearAll drops all tracked files, applications and the record count.
// Session globals are kept.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	globals := s.index.Globals
	s.index = emptyIndex()
	s.index.Globals = globals
}

// ClearFolder drops the tracked files of a single folder.
func (s *Store) ClearFolder(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Files[folder] = []FileMetadata{}
}

// Append tracks a new file in `folder`.
func (s *Store) Append(folder string, meta FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Files[folder] = append(s.index.Files[folder], meta)
}

// Find returns the metadata for `filePath` within `folder`.
func (s *Store) Find(folder, filePath string) (FileMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, meta := range s.index.Files[folder] {
		if meta.FilePath == filePath {
			return meta, true
		}
	}
	return FileMetadata{}, false
}

// FindAnywhere searches every folder, in name order, for `filePath`.
func (s *Store) FindAnywhere(filePath string) (FileMetadata, bool) {
	for _, folder := range s.folders() {
		if meta, ok := s.Find(folder, filePath); ok {
			return meta, true
		}
	}
	return FileMetadata{}, false
}

func (s *Store) folders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var folders []string
	for folder := range s.index.Files {
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	return folders
}

// SetHash updates the stored hash of a tracked file. It returns false if the
// file isn't tracked in `folder`.
func (s *Store) SetHash(folder, filePath, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.index.Files[folder]
	for i := range files {
		if files[i].FilePath == filePath {
			files[i].Hash = hash
			return true
		}
	}
	return false
}

// TrackedFiles returns the tracked files of every folder.
func (s *Store) TrackedFiles() (files []FileMetadata) {
	for _, folder := range s.folders() {
		s.mu.Lock()
		files = append(files, s.index.Files[folder]...)
		s.mu.Unlock()
	}
	return files
}

// SetApplications replaces the known applications.
func (s *Store) SetApplications(apps []ApplicationMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Apps = apps
}

// FindApplication returns the application with the given remote ID.
func (s *Store) FindApplication(remoteID string) (ApplicationMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, app := range s.index.Apps {
		if app.RemoteID == remoteID {
			return app, true
		}
	}
	return ApplicationMetadata{}, false
}

// AddRecordCount adds `n` processed records to the file count.
func (s *Store) AddRecordCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.FileCount += n
}

// FileCount returns the number of records processed since the last clear.
func (s *Store) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.FileCount
}

// LastResyncKey is the session global holding the time of the last full
// resync, in RFC 3339.
const LastResyncKey = "lastResync"

// SetGlobal stores a session value.
func (s *Store) SetGlobal(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.Globals == nil {
		s.index.Globals = map[string]interface{}{}
	}
	s.index.Globals[key] = value
}

// Global returns a session value.
func (s *Store) Global(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.index.Globals[key]
	return value, ok
}
