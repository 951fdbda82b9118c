package config

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/nowsync/pkg/errors"
)

const (
	// ConfigDirName is the directory, relative to the workspace root, that
	// holds all of nowsync's configuration and state.
	ConfigDirName = ".snconfig"

	// LegacyDirName is where older releases kept their state. Its contents
	// are migrated into ConfigDirName when found.
	LegacyDirName = ".snsync"

	// SourceDirName is the directory that records are synced into.
	SourceDirName = "src"

	metadataFileName   = "metadata.json"
	syncConfigBaseName = "syncconfig"
	connectionFileName = "config.yaml"
	logFileName        = "nowsync.log"
	envFileName        = ".env"
)

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Workspace resolves the paths used by nowsync relative to a root
// directory.
type Workspace struct {
	Root string
}

// NewWorkspace returns the workspace rooted at `root`. `~` is expanded, and
// relative paths are made absolute.
func NewWorkspace(root string) (Workspace, error) {
	expanded, err := homedirExpand(root)
	if err != nil {
		return Workspace{}, errors.WithContext(err, "expand workspace path")
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return Workspace{}, errors.WithContext(err, "get absolute path")
	}
	return Workspace{Root: abs}, nil
}

func (w Workspace) ConfigDir() string {
	return filepath.Join(w.Root, ConfigDirName)
}

func (w Workspace) LegacyDir() string {
	return filepath.Join(w.Root, LegacyDirName)
}

func (w Workspace) SourceDir() string {
	return filepath.Join(w.Root, SourceDirName)
}

func (w Workspace) MetadataPath() string {
	return filepath.Join(w.ConfigDir(), metadataFileName)
}

func (w Workspace) LegacyMetadataPath() string {
	return filepath.Join(w.LegacyDir(), metadataFileName)
}

func (w Workspace) SyncConfigPath() string {
	return filepath.Join(w.ConfigDir(), syncConfigBaseName+".yaml")
}

func (w Workspace) LegacySyncConfigPath() string {
	return filepath.Join(w.ConfigDir(), syncConfigBaseName+".json")
}

func (w Workspace) ConnectionPath() string {
	return filepath.Join(w.ConfigDir(), connectionFileName)
}

func (w Workspace) LogPath() string {
	return filepath.Join(w.ConfigDir(), logFileName)
}

func (w Workspace) EnvPath() string {
	return filepath.Join(w.Root, envFileName)
}
