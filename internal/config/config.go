package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Repository RepositoryConfig `yaml:"repository"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	NATS       NATSConfig       `yaml:"nats"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type RepositoryConfig struct {
	Root string `yaml:"root"`
	// MatchByName enables the name-equality fallback when an imported person's id
	// is unknown to the repository.
	MatchByName *bool `yaml:"match_by_name"`
	ScanWorkers int   `yaml:"scan_workers"`
}

// MatchByNameEnabled reports the effective merge fallback setting (default on).
func (r RepositoryConfig) MatchByNameEnabled() bool {
	return r.MatchByName == nil || *r.MatchByName
}

type ArchiveConfig struct {
	// StagingDir holds extracted archive contents during import. Empty means os.TempDir.
	StagingDir string `yaml:"staging_dir"`
}

type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// LoadOptional behaves like Load but falls back to defaults and env overrides
// when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Repository.Root == "" {
		cfg.Repository.Root = "Evidence"
	}
	if cfg.Repository.ScanWorkers <= 0 {
		cfg.Repository.ScanWorkers = 8
	}
	if cfg.Mirror.Prefix == "" {
		cfg.Mirror.Prefix = "archives/"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "catalog"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EMA_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("EMA_REPOSITORY_ROOT"); v != "" {
		cfg.Repository.Root = v
	}
	if v := os.Getenv("EMA_MATCH_BY_NAME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Repository.MatchByName = &b
		}
	}
	if v := os.Getenv("EMA_SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Repository.ScanWorkers = n
		}
	}
	if v := os.Getenv("EMA_STAGING_DIR"); v != "" {
		cfg.Archive.StagingDir = v
	}
	if v := os.Getenv("EMA_MIRROR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Mirror.Enabled = b
		}
	}
	if v := os.Getenv("EMA_MINIO_ENDPOINT"); v != "" {
		cfg.Mirror.Endpoint = v
	}
	if v := os.Getenv("EMA_MINIO_ACCESS_KEY"); v != "" {
		cfg.Mirror.AccessKey = v
	}
	if v := os.Getenv("EMA_MINIO_SECRET_KEY"); v != "" {
		cfg.Mirror.SecretKey = v
	}
	if v := os.Getenv("EMA_MINIO_BUCKET"); v != "" {
		cfg.Mirror.Bucket = v
	}
	if v := os.Getenv("EMA_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("EMA_WATCH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Watch.Enabled = b
		}
	}
	if v := os.Getenv("EMA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
