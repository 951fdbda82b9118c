package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/sidkik/nowsync/pkg/errors"
)

const (
	// InstanceURLEnvKey overrides the configured instance URL.
	InstanceURLEnvKey = "NOWSYNC_INSTANCE_URL"

	// BasicAuthEnvKey overrides the configured Authorization header.
	BasicAuthEnvKey = "NOWSYNC_BASIC_AUTH"

	// InitialConnectionConfigVersion is the version assumed for connection
	// configs that don't specify one.
	InitialConnectionConfigVersion = "1.0"

	// SupportedConnectionConfigVersions is the range of connection config
	// versions that this binary understands.
	SupportedConnectionConfigVersions = ">= 1.0, < 2.0"
)

// Connection contains the information needed to talk to the instance.
type Connection struct {
	Version       string `json:"version,omitempty"`
	InstanceURL   string `json:"connect_instance_url"`
	InstanceLabel string `json:"connect_instance_label,omitempty"`
	BasicAuth     string `json:"connect_basic_auth"`
}

func (c Connection) getVersion() string {
	return c.Version
}

// Mocked for unit testing.
var (
	getenv  = os.Getenv
	loadEnv = func(path string) error { return godotenv.Load(path) }
)

// ParseConnection reads the connection settings of the workspace. Values
// from the environment, or from the workspace's `.env` file, take precedence
// over the config file.
func ParseConnection(ws Workspace) (Connection, error) {
	if err := loadEnv(ws.EnvPath()); err != nil && !isPathNotFoundError(err) {
		return Connection{}, errors.WithContext(err, "load .env")
	}

	path := ws.ConnectionPath()
	conn := Connection{Version: InitialConnectionConfigVersion}
	err := parseConfig(path, &conn, SupportedConnectionConfigVersions)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return Connection{}, errors.WithContext(err, "parse")
		}
	}

	if url := getenv(InstanceURLEnvKey); url != "" {
		conn.InstanceURL = url
	}
	if auth := getenv(BasicAuthEnvKey); auth != "" {
		conn.BasicAuth = auth
	}

	if conn.InstanceURL == "" || conn.BasicAuth == "" {
		return Connection{}, errors.NewFriendlyError("No connection settings "+
			"found in %q. Please run `nowsync login` in your workspace "+
			"directory to set them up.", path)
	}
	conn.InstanceURL = NormalizeInstanceURL(conn.InstanceURL)
	return conn, nil
}

// WriteConnection writes the given connection settings to the workspace.
func WriteConnection(ws Workspace, conn Connection) error {
	conn.Version = InitialConnectionConfigVersion
	yamlBytes, err := yaml.Marshal(conn)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := fs.MkdirAll(ws.ConfigDir(), 0755); err != nil {
		return errors.WithContext(err, "create config dir")
	}

	// The file contains credentials, so only the user should be able to read
	// it.
	if err := afero.WriteFile(fs, ws.ConnectionPath(), yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// NormalizeInstanceURL turns a bare instance name, such as `dev1234`, into
// the instance's URL.
func NormalizeInstanceURL(instance string) string {
	instance = strings.TrimRight(strings.TrimSpace(instance), "/")
	if strings.Contains(instance, "://") {
		return instance
	}
	if !strings.Contains(instance, ".") {
		instance = fmt.Sprintf("%s.service-now.com", instance)
	}
	return "https://" + instance
}

// BasicAuthHeader returns the value of the Authorization header for the
// given credentials.
func BasicAuthHeader(user, password string) string {
	creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return "Basic " + creds
}
