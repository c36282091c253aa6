// Package config loads process options for tubeq.
//
// Priority, highest first: command line flags bound by the caller,
// TUBEQ_* environment variables, config.yaml in the data directory, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tanq16/tubeq/internal/archive"
	"github.com/tanq16/tubeq/internal/deps"
)

const (
	EnvPrefix         = "TUBEQ"
	ConfigFileName    = "config.yaml"
	DefaultLogLevel   = "info"
	DefaultLogMaxSize = 20 // MB
	DefaultLogBackups = 3
	DefaultLogMaxAge  = 14 // days
	NoLogFile         = "none"
)

type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	BinDir  string        `mapstructure:"bin_dir"`
	Debug   bool          `mapstructure:"debug"`
	Log     LogConfig     `mapstructure:"log"`
	Deps    DepsConfig    `mapstructure:"deps"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type DepsConfig struct {
	VersionTimeout  time.Duration `mapstructure:"version_timeout"`
	FFmpegTimeout   time.Duration `mapstructure:"ffmpeg_timeout"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	ReleaseURL      string        `mapstructure:"release_url"`
	LatestURL       string        `mapstructure:"latest_url"`
	Proxy           string        `mapstructure:"proxy"`
	ProxyUser       string        `mapstructure:"proxy_user"`
	ProxyPassword   string        `mapstructure:"proxy_password"`
	UserAgent       string        `mapstructure:"user_agent"`
}

type ArchiveConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Profile   string `mapstructure:"profile"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// DefaultDataDir is the per-user directory holding queue state, settings,
// managed tools and logs.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tubeq")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tubeq")
	}
	return ".tubeq"
}

func setDefaults(v *viper.Viper) {
	d := deps.DefaultOptions()
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("bin_dir", "")
	v.SetDefault("debug", false)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	v.SetDefault("deps.version_timeout", d.VersionTimeout)
	v.SetDefault("deps.ffmpeg_timeout", d.FFmpegTimeout)
	v.SetDefault("deps.wait_timeout", d.WaitTimeout)
	v.SetDefault("deps.download_timeout", d.DownloadTimeout)
	v.SetDefault("deps.release_url", d.ReleaseBaseURL)
	v.SetDefault("deps.latest_url", d.LatestAPIURL)
	v.SetDefault("deps.proxy", "")
	v.SetDefault("deps.proxy_user", "")
	v.SetDefault("deps.proxy_password", "")
	v.SetDefault("deps.user_agent", "")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.profile", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.path_style", false)
}

// Load resolves the configuration held by v. Flags should already be bound
// to v. configPath overrides the config.yaml inside the data directory.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = filepath.Join(v.GetString("data_dir"), ConfigFileName)
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if _, statErr := os.Stat(configPath); statErr == nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "logs", "tubeq.log")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	valid := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !valid[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn or error)", c.Log.Level)
	}
	if c.Deps.WaitTimeout < 0 || c.Deps.VersionTimeout < 0 || c.Deps.FFmpegTimeout < 0 || c.Deps.DownloadTimeout < 0 {
		return errors.New("deps timeouts must not be negative")
	}
	return nil
}

func (c *Config) FileLogging() bool {
	return c.Log.File != NoLogFile
}

func (c *Config) DepsOptions() deps.Options {
	return deps.Options{
		VersionTimeout:  c.Deps.VersionTimeout,
		FFmpegTimeout:   c.Deps.FFmpegTimeout,
		WaitTimeout:     c.Deps.WaitTimeout,
		DownloadTimeout: c.Deps.DownloadTimeout,
		ReleaseBaseURL:  c.Deps.ReleaseURL,
		LatestAPIURL:    c.Deps.LatestURL,
		ProxyURL:        c.Deps.Proxy,
		ProxyUsername:   c.Deps.ProxyUser,
		ProxyPassword:   c.Deps.ProxyPassword,
		UserAgent:       c.Deps.UserAgent,
	}
}

func (c *Config) ArchiveOptions() archive.Config {
	return archive.Config{
		Bucket:    c.Archive.Bucket,
		Prefix:    c.Archive.Prefix,
		Profile:   c.Archive.Profile,
		Region:    c.Archive.Region,
		Endpoint:  c.Archive.Endpoint,
		PathStyle: c.Archive.PathStyle,
	}
}
