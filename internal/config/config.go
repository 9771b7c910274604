// Package config loads daemon configuration from defaults, an optional YAML
// file and RESTREAMD_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the daemon needs to run.
type Config struct {
	// DataDir holds the durable catalog, active map and per-job artifacts.
	DataDir string
	// FFmpegPath is the encoder binary; the base name doubles as the
	// expected process name for liveness checks.
	FFmpegPath string
	// IngestURL is the RTMP ingest base; the stream key is appended.
	IngestURL string
	// ListenAddr serves the HTTP API and metrics.
	ListenAddr string
	// ReconcileInterval is the supervisor's refresh cadence.
	ReconcileInterval time.Duration
	// StopGrace is how long a stopped encoder gets between SIGTERM and
	// SIGKILL.
	StopGrace time.Duration
	LogLevel  string
	LogJSON   bool
}

// Load reads configuration. cfgFile may be empty, in which case
// ~/.restreamd/config.yaml is tried; a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ingest_url", "rtmp://a.rtmp.youtube.com/live2")
	v.SetDefault("listen_addr", "127.0.0.1:8090")
	v.SetDefault("reconcile_interval", "10s")
	v.SetDefault("stop_grace", "2s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".restreamd"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("RESTREAMD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		DataDir:           v.GetString("data_dir"),
		FFmpegPath:        v.GetString("ffmpeg_path"),
		IngestURL:         v.GetString("ingest_url"),
		ListenAddr:        v.GetString("listen_addr"),
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		StopGrace:         v.GetDuration("stop_grace"),
		LogLevel:          v.GetString("log_level"),
		LogJSON:           v.GetBool("log_json"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path must not be empty")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile_interval must be positive")
	}
	if c.StopGrace <= 0 {
		return fmt.Errorf("stop_grace must be positive")
	}
	return nil
}

// EncoderName returns the process name the monitor expects for liveness
// checks.
func (c *Config) EncoderName() string {
	return filepath.Base(c.FFmpegPath)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".restreamd", "data")
}
