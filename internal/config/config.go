package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ManifestName is the file published next to the artifacts when no explicit
// manifest path is configured. The name keeps the output verifiable with
// plain `sha256sum -c`.
const ManifestName = "SHA256SUMS"

type Config struct {
	// APIKey is the shared secret guarding the job endpoints. Empty disables
	// authentication.
	APIKey         string `envconfig:"SNAPSHOT_PUBLISHER_API_KEY" default:"" json:"-"`
	Address        string `envconfig:"SNAPSHOT_PUBLISHER_ADDRESS" default:":8080" json:"address"`
	MetricsAddress string `envconfig:"SNAPSHOT_PUBLISHER_METRICS_ADDRESS" default:":8081" json:"metrics-address"`

	// SnapshotsDir holds the immutable snapshot artifacts and is served as-is.
	SnapshotsDir string `envconfig:"SNAPSHOT_PUBLISHER_SNAPSHOTS_DIR" default:"/usr/share/nginx/html/snapshots" json:"snapshots-dir"`
	// HTMLRoot is the web root the manifest paths are relative to.
	HTMLRoot string `envconfig:"SNAPSHOT_PUBLISHER_HTML_ROOT" default:"/usr/share/nginx/html" json:"html-root"`
	// ManifestPath defaults to <SnapshotsDir>/SHA256SUMS when empty.
	ManifestPath string `envconfig:"SNAPSHOT_PUBLISHER_MANIFEST_PATH" default:"" json:"manifest-path"`

	// NodeRPC is the endpoint answering the chain tip query.
	NodeRPC string `envconfig:"SNAPSHOT_PUBLISHER_NODE_RPC" default:"localhost:5556" json:"node-rpc"`
	// NodeBin is the executable performing the state export.
	NodeBin string `envconfig:"SNAPSHOT_PUBLISHER_NODE_BIN" default:"/usr/local/bin/noded" json:"node-bin"`
	// NodeDataDir is the working directory of the export process.
	NodeDataDir string `envconfig:"SNAPSHOT_PUBLISHER_NODE_DATA_DIR" default:"/var/lib/noded" json:"node-data-dir"`
	// NodeUser, when set, runs the export under a different OS user via sudo.
	NodeUser string `envconfig:"SNAPSHOT_PUBLISHER_NODE_USER" default:"" json:"node-user"`
	// NodeService is the systemd unit cycled around the export.
	NodeService string `envconfig:"SNAPSHOT_PUBLISHER_NODE_SERVICE" default:"noded" json:"node-service"`

	// ExportTimeout bounds the artifact poll; the export process is killed
	// when it elapses.
	ExportTimeout time.Duration `envconfig:"SNAPSHOT_PUBLISHER_EXPORT_TIMEOUT" default:"15m" json:"export-timeout"`

	LogLevel string `envconfig:"SNAPSHOT_PUBLISHER_LOG_LEVEL" default:"info" json:"log-level"`
	LockPath string `envconfig:"SNAPSHOT_PUBLISHER_LOCK_PATH" default:"/tmp/snapshot-api.lock" json:"lock-path"`
}

// New builds the configuration from the environment, applying defaults and
// derived values.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = filepath.Join(cfg.SnapshotsDir, ManifestName)
	}
	return cfg, nil
}

// Validate checks that the required fields are set.
func (cfg *Config) Validate() error {
	requiredFields := []struct {
		value string
		name  string
	}{
		{cfg.SnapshotsDir, "snapshots-dir"},
		{cfg.HTMLRoot, "html-root"},
		{cfg.NodeBin, "node-bin"},
		{cfg.NodeService, "node-service"},
	}

	for _, field := range requiredFields {
		if field.value == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}

	if cfg.ExportTimeout <= 0 {
		return fmt.Errorf("export-timeout must be positive")
	}

	return nil
}

// String renders the effective configuration for the boot log. The API key
// never appears in it.
func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
