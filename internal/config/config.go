// Package config loads arc-ledger configuration from flags, environment
// variables and an optional config file.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the loader reads,
// e.g. ARC_LEDGER_STORAGE_STATE_BACKEND.
const EnvPrefix = "ARC_LEDGER"

type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	Caller        string              `mapstructure:"caller"`
	Output        string              `mapstructure:"output"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Swap          SwapConfig          `mapstructure:"swap"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type StorageConfig struct {
	State   BackendConfig `mapstructure:"state"`
	Archive BackendConfig `mapstructure:"archive"`
}

type BackendConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

type SwapConfig struct {
	Validity time.Duration `mapstructure:"validity"`
}

type ObservabilityConfig struct {
	LogLevel        string  `mapstructure:"log_level"`
	LogFormat       string  `mapstructure:"log_format"`
	MetricsAddr     string  `mapstructure:"metrics_addr"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPProtocol    string  `mapstructure:"otlp_protocol"`
	ServiceName     string  `mapstructure:"service_name"`
	ServiceVersion  string  `mapstructure:"service_version"`
	TraceSampleRate float64 `mapstructure:"trace_sample_rate"`
}

// DefaultDataDir returns the default data directory (~/.arc-ledger).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arc-ledger"
	}
	return filepath.Join(home, ".arc-ledger")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("caller", "")
	v.SetDefault("output", "text")

	v.SetDefault("storage.state.backend", "badger")
	v.SetDefault("storage.archive.backend", "fs")

	v.SetDefault("swap.validity", "168h")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "text")
	v.SetDefault("observability.metrics_addr", "")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.service_name", "arc-ledger")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.trace_sample_rate", 1.0)
}

// BindFlags registers the global flags on cmd and binds them to viper.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("config", "", "config file path")
	f.String("data-dir", "", "data directory (default ~/.arc-ledger)")
	f.String("as", "", "principal that performs mutating commands")
	f.StringP("output", "o", "", "output format (text, json, markdown)")
	f.String("backend", "", "state backend (badger, sqlite, redis, memory)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")
	f.String("metrics-addr", "", "metrics HTTP listen address")

	_ = v.BindPFlag("config", f.Lookup("config"))
	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("caller", f.Lookup("as"))
	_ = v.BindPFlag("output", f.Lookup("output"))
	_ = v.BindPFlag("storage.state.backend", f.Lookup("backend"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
}

// Load reads config from flags, env, and file, returning the merged Config.
// A missing config file is only an error when configFile names it.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("hcl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.arc-ledger")
		v.AddConfigPath("/etc/arc-ledger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StateConfig returns the state backend settings with the store path
// defaulted under the data directory for file-based backends.
func (c Config) StateConfig() BackendConfig {
	out := BackendConfig{Backend: c.Storage.State.Backend, Config: copyMap(c.Storage.State.Config)}
	if out.Config["path"] == "" {
		switch out.Backend {
		case "badger":
			out.Config["path"] = filepath.Join(c.DataDir, "state")
		case "sqlite":
			out.Config["path"] = filepath.Join(c.DataDir, "state.db")
		}
	}
	return out
}

// ArchiveConfig returns the archive sink settings with the fs root
// defaulted under the data directory.
func (c Config) ArchiveConfig() BackendConfig {
	out := BackendConfig{Backend: c.Storage.Archive.Backend, Config: copyMap(c.Storage.Archive.Config)}
	if out.Backend == "fs" && out.Config["path"] == "" {
		out.Config["path"] = filepath.Join(c.DataDir, "archive")
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
