package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/nowsync/pkg/errors"
)

var testWorkspace = Workspace{Root: "/ws"}

func TestParseSyncConfig(t *testing.T) {
	yamlPath := testWorkspace.SyncConfigPath()
	jsonPath := testWorkspace.LegacySyncConfigPath()

	scriptIncludes := TableRule{
		Folder: "script_includes",
		Table:  "sys_script_include",
		Key:    "name",
		Fields: []FieldMapping{{Field: "script", Extension: "js"}},
	}
	widgets := TableRule{
		Folder:        "widgets",
		Table:         "sp_widget",
		Key:           "id",
		SubDirPattern: "<category>",
		Query:         "active=true",
		Fields: []FieldMapping{
			{Field: "template", Extension: "html", Name: "template"},
			{Field: "script", Extension: "js", Name: "server_script"},
		},
	}

	const versionedYAML = `version: "1.0"
tables:
  - folder: script_includes
    table: sys_script_include
    key: name
    fields:
      - field_name: script
        extension: js
  - folder: widgets
    table: sp_widget
    key: id
    subDirPattern: <category>
    query: active=true
    fields:
      - field_name: template
        extension: html
        name: template
      - field_name: script
        extension: js
        name: server_script
`

	tests := []struct {
		name      string
		files     map[string]string
		expConfig SyncConfig
		expError  error
		expErrMsg string
	}{
		{
			name:  "Versioned",
			files: map[string]string{yamlPath: versionedYAML},
			expConfig: SyncConfig{
				Version: "1.0",
				Tables:  []TableRule{scriptIncludes, widgets},
				path:    yamlPath,
			},
		},
		{
			name: "EmptyVersion",
			files: map[string]string{yamlPath: "tables:\n" +
				"  - {folder: script_includes, table: sys_script_include, key: name, " +
				"fields: [{field_name: script, extension: js}]}\n"},
			expConfig: SyncConfig{
				Version: InitialSyncConfigVersion,
				Tables:  []TableRule{scriptIncludes},
				path:    yamlPath,
			},
		},
		{
			name: "CompatibleMinorVersion",
			files: map[string]string{yamlPath: "version: \"1.3\"\ntables:\n" +
				"  - {folder: script_includes, table: sys_script_include, key: name, " +
				"fields: [{field_name: script, extension: js}]}\n"},
			expConfig: SyncConfig{
				Version: "1.3",
				Tables:  []TableRule{scriptIncludes},
				path:    yamlPath,
			},
		},
		{
			name: "BareList",
			files: map[string]string{yamlPath: "- folder: script_includes\n" +
				"  table: sys_script_include\n" +
				"  key: name\n" +
				"  fields:\n" +
				"    - field_name: script\n" +
				"      extension: js\n"},
			expConfig: SyncConfig{
				Version: InitialSyncConfigVersion,
				Tables:  []TableRule{scriptIncludes},
				path:    yamlPath,
			},
		},
		{
			name: "LegacyJSON",
			files: map[string]string{jsonPath: `{"folders": [{"folder": "script_includes", ` +
				`"table": "sys_script_include", "key": "name", ` +
				`"fields": [{"field_name": "script", "extension": "js"}]}]}`},
			expConfig: SyncConfig{
				Version: InitialSyncConfigVersion,
				Tables:  []TableRule{scriptIncludes},
				path:    jsonPath,
				legacy:  true,
			},
		},
		{
			name: "YAMLPreferredOverLegacy",
			files: map[string]string{
				yamlPath: versionedYAML,
				jsonPath: `{"folders": []}`,
			},
			expConfig: SyncConfig{
				Version: "1.0",
				Tables:  []TableRule{scriptIncludes, widgets},
				path:    yamlPath,
			},
		},
		{
			name:     "Missing",
			expError: errors.FileNotFound{Path: yamlPath},
		},
		{
			name:  "IncorrectVersion",
			files: map[string]string{yamlPath: "version: \"2.0\"\ntables: []\n"},
			expError: errors.WithContext(incompatibleVersionError{
				path:   yamlPath,
				exp:    SupportedSyncConfigVersions,
				actual: "2.0",
			}, "parse"),
		},
		{
			name:      "ExtraFields",
			files:     map[string]string{yamlPath: "version: \"1.0\"\nextra: field\n"},
			expErrMsg: `unknown field "extra"`,
		},
		{
			name: "DuplicateFolder",
			files: map[string]string{yamlPath: "tables:\n" +
				"  - {folder: a, table: t1, key: name, fields: [{field_name: script, extension: js}]}\n" +
				"  - {folder: a, table: t2, key: name, fields: [{field_name: script, extension: js}]}\n"},
			expError: errors.ConfigError{
				Path:   "syncconfig.yaml",
				Reason: `folder "a" is used by more than one table`,
			},
		},
		{
			name: "MissingKey",
			files: map[string]string{yamlPath: "tables:\n" +
				"  - {folder: a, table: t1, fields: [{field_name: script, extension: js}]}\n"},
			expError: errors.ConfigError{
				Path:   "syncconfig.yaml",
				Reason: "table #1: missing required field: key",
			},
		},
		{
			name: "NestedFolder",
			files: map[string]string{yamlPath: "tables:\n" +
				"  - {folder: a/b, table: t1, key: name, fields: [{field_name: script, extension: js}]}\n"},
			expError: errors.ConfigError{
				Path:   "syncconfig.yaml",
				Reason: `folder "a/b" must be a plain directory name`,
			},
		},
		{
			name: "NoFields",
			files: map[string]string{yamlPath: "tables:\n" +
				"  - {folder: a, table: t1, key: name}\n"},
			expError: errors.ConfigError{
				Path:   "syncconfig.yaml",
				Reason: `folder "a" doesn't sync any fields`,
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			for path, contents := range test.files {
				require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
			}

			config, err := ParseSyncConfig(testWorkspace)
			switch {
			case test.expErrMsg != "":
				assert.Error(t, err)
				assert.Contains(t, err.Error(), test.expErrMsg)
			case test.expError != nil:
				assert.Equal(t, test.expError, err)
			default:
				assert.NoError(t, err)
				assert.Equal(t, test.expConfig, config)
			}
		})
	}
}

func TestRuleLookup(t *testing.T) {
	config := SyncConfig{Tables: []TableRule{
		{Folder: "business_rules", Table: "sys_script"},
		{Folder: "script_includes", Table: "sys_script_include"},
	}}

	rule, ok := config.RuleForFolder("script_includes")
	assert.True(t, ok)
	assert.Equal(t, "sys_script_include", rule.Table)

	rule, ok = config.RuleForTable("sys_script")
	assert.True(t, ok)
	assert.Equal(t, "business_rules", rule.Folder)

	_, ok = config.RuleForFolder("missing")
	assert.False(t, ok)
	_, ok = config.RuleForTable("missing")
	assert.False(t, ok)
}

func TestCreateInitialSyncConfig(t *testing.T) {
	fs = afero.NewMemMapFs()

	path, err := CreateInitialSyncConfig(testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, testWorkspace.SyncConfigPath(), path)

	// The created config must be valid.
	config, err := ParseSyncConfig(testWorkspace)
	require.NoError(t, err)
	assert.NotEmpty(t, config.Tables)
	for _, rule := range config.Tables {
		if len(rule.Fields) > 1 {
			for _, field := range rule.Fields {
				assert.NotEmpty(t, field.Name, rule.Folder)
			}
		}
	}

	// Existing configs are never overwritten.
	path, err = CreateInitialSyncConfig(testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, "/ws/.snconfig/syncconfig1.yaml", path)

	path, err = CreateInitialSyncConfig(testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, "/ws/.snconfig/syncconfig2.yaml", path)
}
