package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/errors"
)

// SyncConfig is the ordered list of rules that map remote tables to local
// folders.
type SyncConfig struct {
	Version string      `json:"version,omitempty"`
	Tables  []TableRule `json:"tables"`

	// Only populated and consumed by nowsync. Never set by user.
	path   string
	legacy bool
}

// TableRule describes how the records of a single remote table are laid out
// on disk.
type TableRule struct {
	// Folder is the top-level directory under the source directory. It's
	// unique across all rules.
	Folder string `json:"folder"`
	Table  string `json:"table"`

	// Key is the record field used to name files and per-record
	// directories.
	Key string `json:"key"`

	// SubDirPattern is expanded for each record into a relative directory.
	// Placeholders of the form `<field>` are replaced by the record's value
	// for that field.
	SubDirPattern string `json:"subDirPattern,omitempty"`

	// Query is the encoded query used to filter records on the instance.
	Query string `json:"query,omitempty"`

	Fields []FieldMapping `json:"fields"`
}

// FieldMapping maps a single record field to a file.
type FieldMapping struct {
	Field     string `json:"field_name"`
	Extension string `json:"extension"`

	// Name overrides the file name. If it's empty, the record's key is
	// used.
	Name string `json:"name,omitempty"`
}

// legacySyncConfig is the JSON format used before the configuration was
// versioned.
type legacySyncConfig struct {
	Folders []TableRule `json:"folders"`
}

func (c SyncConfig) getVersion() string {
	return c.Version
}

// GetPath returns the filepath that the configuration was parsed from.
func (c SyncConfig) GetPath() string {
	return c.path
}

// IsLegacy returns whether the configuration was read from the legacy JSON
// format.
func (c SyncConfig) IsLegacy() bool {
	return c.legacy
}

// RuleForFolder returns the rule whose folder is `folder`.
func (c SyncConfig) RuleForFolder(folder string) (TableRule, bool) {
	for _, rule := range c.Tables {
		if rule.Folder == folder {
			return rule, true
		}
	}
	return TableRule{}, false
}

// RuleForTable returns the first rule that syncs `table`.
func (c SyncConfig) RuleForTable(table string) (TableRule, bool) {
	for _, rule := range c.Tables {
		if rule.Table == table {
			return rule, true
		}
	}
	return TableRule{}, false
}

// InitialSyncConfigVersion is the first version of the sync config. Config
// files that do not specify a version will default to this version.
const InitialSyncConfigVersion = "1.0"

// SupportedSyncConfigVersions is the range of sync config versions that this
// binary understands.
const SupportedSyncConfigVersions = ">= 1.0, < 2.0"

// ParseSyncConfig parses the sync configuration of the workspace. The
// versioned YAML document is preferred. If it doesn't exist, the legacy JSON
// document is used instead. If neither exists, errors.FileNotFound is
// returned for the YAML path.
func ParseSyncConfig(ws Workspace) (SyncConfig, error) {
	yamlPath := ws.SyncConfigPath()
	yamlExists, err := exists(yamlPath)
	if err != nil {
		return SyncConfig{}, errors.WithContext(err, "stat")
	}

	var config SyncConfig
	if yamlExists {
		config, err = parseYAMLSyncConfig(yamlPath)
	} else {
		config, err = parseLegacySyncConfig(ws.LegacySyncConfigPath())
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return SyncConfig{}, errors.FileNotFound{Path: yamlPath}
		}
	}
	if err != nil {
		return SyncConfig{}, errors.WithContext(err, "parse")
	}

	if err := config.validate(); err != nil {
		return SyncConfig{}, errors.ConfigError{
			Path:   filepath.Base(config.path),
			Reason: err.Error(),
		}
	}
	return config, nil
}

func parseYAMLSyncConfig(path string) (SyncConfig, error) {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		return SyncConfig{}, errors.WithContext(err, "read file")
	}

	config := SyncConfig{
		path:    path,
		Version: InitialSyncConfigVersion,
	}

	// The first releases stored the rules as a bare list.
	if isList(configBytes) {
		var rules []TableRule
		if err := yaml.UnmarshalStrict(configBytes, &rules, yaml.DisallowUnknownFields); err != nil {
			return SyncConfig{}, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
		}
		config.Tables = rules
		return config, nil
	}

	if err := parseConfigBytes(path, configBytes, &config, SupportedSyncConfigVersions); err != nil {
		return SyncConfig{}, err
	}
	return config, nil
}

func parseLegacySyncConfig(path string) (SyncConfig, error) {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if isPathNotFoundError(err) {
			return SyncConfig{}, errors.FileNotFound{Path: path}
		}
		return SyncConfig{}, errors.WithContext(err, "read file")
	}

	var legacy legacySyncConfig
	if err := yaml.Unmarshal(configBytes, &legacy); err != nil {
		return SyncConfig{}, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	return SyncConfig{
		Version: InitialSyncConfigVersion,
		Tables:  legacy.Folders,
		path:    path,
		legacy:  true,
	}, nil
}

func isList(configBytes []byte) bool {
	jsonBytes, err := yaml.YAMLToJSON(configBytes)
	if err != nil {
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(jsonBytes), []byte("["))
}

func (c SyncConfig) validate() error {
	if len(c.Tables) == 0 {
		return errors.New("no tables are configured")
	}

	folders := map[string]struct{}{}
	for i, rule := range c.Tables {
		for field, value := range map[string]string{
			"folder": rule.Folder,
			"table":  rule.Table,
			"key":    rule.Key,
		} {
			if value == "" {
				return errors.WithContext(errors.MissingFieldError{Field: field},
					fmt.Sprintf("table #%d", i+1))
			}
		}

		if strings.ContainsAny(rule.Folder, `/\`) || rule.Folder == "." || rule.Folder == ".." {
			return errors.New("folder %q must be a plain directory name", rule.Folder)
		}

		if _, ok := folders[rule.Folder]; ok {
			return errors.New("folder %q is used by more than one table", rule.Folder)
		}
		folders[rule.Folder] = struct{}{}

		if len(rule.Fields) == 0 {
			return errors.New("folder %q doesn't sync any fields", rule.Folder)
		}
		for _, field := range rule.Fields {
			if field.Field == "" {
				return errors.WithContext(errors.MissingFieldError{Field: "field_name"},
					fmt.Sprintf("folder %q", rule.Folder))
			}
			if field.Extension == "" {
				return errors.WithContext(errors.MissingFieldError{Field: "extension"},
					fmt.Sprintf("folder %q", rule.Folder))
			}
		}
	}
	return nil
}

// CreateInitialSyncConfig writes an example sync configuration into the
// workspace's config directory. If a configuration already exists, a
// numeric suffix is added to the new file's name. The path of the created
// file is returned.
func CreateInitialSyncConfig(ws Workspace) (string, error) {
	if err := fs.MkdirAll(ws.ConfigDir(), 0755); err != nil {
		return "", errors.WithContext(err, "create config dir")
	}

	for i := 0; ; i++ {
		name := syncConfigBaseName
		if i > 0 {
			name = fmt.Sprintf("%s%d", syncConfigBaseName, i)
		}
		path := filepath.Join(ws.ConfigDir(), name+".yaml")

		taken, err := exists(path)
		if err != nil {
			return "", errors.WithContext(err, "stat")
		}
		if taken {
			continue
		}

		if err := afero.WriteFile(fs, path, []byte(initialSyncConfig), 0644); err != nil {
			return "", errors.WithContext(err, "write")
		}
		return path, nil
	}
}

const initialSyncConfig = `version: "1.0"
tables:
  - folder: script_includes
    table: sys_script_include
    key: name
    fields:
      - field_name: script
        extension: js
  - folder: business_rules
    table: sys_script
    key: name
    subDirPattern: <collection>/<when>
    fields:
      - field_name: script
        extension: js
  - folder: client_scripts
    table: sys_script_client
    key: name
    subDirPattern: <table>
    fields:
      - field_name: script
        extension: js
  - folder: ui_scripts
    table: sys_ui_script
    key: name
    fields:
      - field_name: script
        extension: js
  - folder: ui_pages
    table: sys_ui_page
    key: name
    fields:
      - field_name: html
        extension: html
        name: html
      - field_name: client_script
        extension: js
        name: client_script
      - field_name: processing_script
        extension: js
        name: processing_script
  - folder: widgets
    table: sp_widget
    key: id
    fields:
      - field_name: template
        extension: html
        name: template
      - field_name: css
        extension: scss
        name: css
      - field_name: script
        extension: js
        name: server_script
      - field_name: client_script
        extension: js
        name: client_script
`
