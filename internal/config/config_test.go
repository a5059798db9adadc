package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestDefaultDataDir(t *testing.T) {
	dataDir := DefaultDataDir()
	if !strings.HasSuffix(dataDir, ".arc-ledger") {
		t.Errorf("DefaultDataDir() should end with .arc-ledger, got: %s", dataDir)
	}
	if !filepath.IsAbs(dataDir) {
		t.Errorf("DefaultDataDir() should return absolute path, got: %s", dataDir)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load with no config file should not error, got: %v", err)
	}

	if !strings.HasSuffix(cfg.DataDir, ".arc-ledger") {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Output != "text" {
		t.Errorf("Output = %q, want text", cfg.Output)
	}
	if cfg.Storage.State.Backend != "badger" {
		t.Errorf("Storage.State.Backend = %q, want badger", cfg.Storage.State.Backend)
	}
	if cfg.Storage.Archive.Backend != "fs" {
		t.Errorf("Storage.Archive.Backend = %q, want fs", cfg.Storage.Archive.Backend)
	}
	if cfg.Swap.Validity != 168*time.Hour {
		t.Errorf("Swap.Validity = %s, want 168h", cfg.Swap.Validity)
	}
	if cfg.Observability.LogLevel != "info" || cfg.Observability.LogFormat != "text" {
		t.Errorf("log settings = %q/%q", cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	}
	if cfg.Observability.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.Observability.MetricsAddr)
	}
	if cfg.Observability.OTLPProtocol != "http" {
		t.Errorf("OTLPProtocol = %q, want http", cfg.Observability.OTLPProtocol)
	}
	if cfg.Observability.ServiceName != "arc-ledger" || cfg.Observability.ServiceVersion != "dev" {
		t.Errorf("service = %q %q", cfg.Observability.ServiceName, cfg.Observability.ServiceVersion)
	}
	if cfg.Observability.TraceSampleRate != 1.0 {
		t.Errorf("TraceSampleRate = %v, want 1", cfg.Observability.TraceSampleRate)
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARC_LEDGER_STORAGE_STATE_BACKEND", "sqlite")
	t.Setenv("ARC_LEDGER_OBSERVABILITY_LOG_LEVEL", "debug")
	t.Setenv("ARC_LEDGER_DATA_DIR", "/custom/data/dir")
	t.Setenv("ARC_LEDGER_SWAP_VALIDITY", "1h")
	t.Setenv("ARC_LEDGER_CALLER", "alice")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.State.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Storage.State.Backend)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Observability.LogLevel)
	}
	if cfg.DataDir != "/custom/data/dir" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Swap.Validity != time.Hour {
		t.Errorf("Swap.Validity = %s, want 1h", cfg.Swap.Validity)
	}
	if cfg.Caller != "alice" {
		t.Errorf("Caller = %q, want alice", cfg.Caller)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /tmp/ledger-test
output: json
storage:
  state:
    backend: redis
    config:
      addr: redis:6379
      db: "4"
  archive:
    backend: s3
    config:
      bucket: ledger-archive
swap:
  validity: 48h
observability:
  log_level: warn
  log_format: json
  metrics_addr: :9091
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/ledger-test" || cfg.Output != "json" {
		t.Errorf("DataDir/Output = %q/%q", cfg.DataDir, cfg.Output)
	}
	if cfg.Storage.State.Backend != "redis" || cfg.Storage.State.Config["addr"] != "redis:6379" ||
		cfg.Storage.State.Config["db"] != "4" {
		t.Errorf("state = %+v", cfg.Storage.State)
	}
	if cfg.Storage.Archive.Backend != "s3" || cfg.Storage.Archive.Config["bucket"] != "ledger-archive" {
		t.Errorf("archive = %+v", cfg.Storage.Archive)
	}
	if cfg.Swap.Validity != 48*time.Hour {
		t.Errorf("Swap.Validity = %s", cfg.Swap.Validity)
	}
	if cfg.Observability.LogLevel != "warn" || cfg.Observability.MetricsAddr != ":9091" {
		t.Errorf("observability = %+v", cfg.Observability)
	}
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	if _, err := Load(viper.New(), "/nonexistent/path/to/config.hcl"); err == nil {
		t.Error("Load with explicit missing config file should error")
	}
}

func TestBindFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARC_LEDGER_STORAGE_STATE_BACKEND", "sqlite")

	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	BindFlags(cmd, v)

	err := cmd.PersistentFlags().Parse([]string{
		"--data-dir", "/custom/dir",
		"--as", "bank-a-ops",
		"-o", "markdown",
		"--backend", "memory",
		"--log-level", "debug",
		"--log-format", "json",
		"--metrics-addr", ":9092",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/custom/dir" || cfg.Caller != "bank-a-ops" || cfg.Output != "markdown" {
		t.Errorf("flags not bound: %+v", cfg)
	}
	if cfg.Storage.State.Backend != "memory" {
		t.Errorf("flag should take priority over env, got backend %q", cfg.Storage.State.Backend)
	}
	if cfg.Observability.LogLevel != "debug" || cfg.Observability.LogFormat != "json" ||
		cfg.Observability.MetricsAddr != ":9092" {
		t.Errorf("observability flags not bound: %+v", cfg.Observability)
	}
}

func TestStateConfigDefaultsPath(t *testing.T) {
	tests := []struct {
		backend string
		config  map[string]string
		want    string
	}{
		{"badger", nil, "/data/state"},
		{"sqlite", nil, "/data/state.db"},
		{"badger", map[string]string{"path": "/elsewhere"}, "/elsewhere"},
		{"redis", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := Config{DataDir: "/data"}
			cfg.Storage.State = BackendConfig{Backend: tt.backend, Config: tt.config}
			got := cfg.StateConfig()
			if got.Config["path"] != tt.want {
				t.Errorf("path = %q, want %q", got.Config["path"], tt.want)
			}
		})
	}
}

func TestArchiveConfigDoesNotMutate(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	cfg.Storage.Archive = BackendConfig{Backend: "fs", Config: map[string]string{}}

	got := cfg.ArchiveConfig()
	if got.Config["path"] != "/data/archive" {
		t.Errorf("path = %q", got.Config["path"])
	}
	if _, ok := cfg.Storage.Archive.Config["path"]; ok {
		t.Error("ArchiveConfig mutated the loaded config")
	}
}
