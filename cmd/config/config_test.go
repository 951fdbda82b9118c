package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/nowsync/pkg/config"
	"github.com/sidkik/nowsync/pkg/errors"
)

var ws = config.Workspace{Root: "/ws"}

func TestInitSyncConfig(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	createInitialSyncConfig = func(ws config.Workspace) (string, error) {
		return "/ws/.snconfig/syncconfig1.yaml", nil
	}

	assert.NoError(t, initSyncConfig(ws))
	assert.Equal(t, "Check your default sync config at /ws/.snconfig/syncconfig1.yaml\n", out.String())

	createInitialSyncConfig = func(ws config.Workspace) (string, error) {
		return "", assert.AnError
	}
	assert.Equal(t, errors.WithContext(assert.AnError, "create sync config"), initSyncConfig(ws))
}

func TestPrintInstance(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	parseConnection = func(config.Workspace) (config.Connection, error) {
		return config.Connection{InstanceURL: "https://dev1234.service-now.com"}, nil
	}

	assert.NoError(t, printInstance(ws))
	assert.Equal(t, "https://dev1234.service-now.com\n", out.String())
}

func TestPrintTables(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	parseSyncConfig = func(config.Workspace) (config.SyncConfig, error) {
		return config.SyncConfig{
			Tables: []config.TableRule{
				{Folder: "script_includes", Table: "sys_script_include"},
				{Folder: "business_rules", Table: "sys_script", Query: "active=true"},
			},
		}, nil
	}

	assert.NoError(t, printTables(ws))
	assert.Equal(t, "FOLDER           TABLE               QUERY\n"+
		"script_includes  sys_script_include  \n"+
		"business_rules   sys_script          active=true\n", out.String())

	configErr := errors.ConfigError{Path: "syncconfig.yaml", Reason: "no tables are configured"}
	parseSyncConfig = func(config.Workspace) (config.SyncConfig, error) {
		return config.SyncConfig{}, configErr
	}
	assert.Equal(t, configErr, printTables(ws))
}
