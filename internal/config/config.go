package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scottbass3/regscope/internal/secrets"
)

const envPrefix = "REGSCOPE"

type Config struct {
	ProviderID      string        `mapstructure:"provider_id"`
	DataDir         string        `mapstructure:"data_dir"`
	SecretsFile     string        `mapstructure:"secrets_file"`
	LogLevel        string        `mapstructure:"log_level"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RetryChallenges bool          `mapstructure:"retry_challenges"`
}

func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "regscope", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "regscope", "config.yaml")
	}
	return "config.yaml"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "regscope")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "regscope")
	}
	return "regscope-data"
}

// New returns a viper instance with defaults and REGSCOPE_ environment
// bindings registered.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("provider_id", "registryV2")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("secrets_file", secrets.DefaultPath())
	v.SetDefault("log_level", "info")
	v.SetDefault("max_concurrency", 8)
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("retry_challenges", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML file at path when it exists and overlays environment
// variables. A missing file is not an error.
func Load(path string) (Config, error) {
	return LoadWith(New(), path)
}

// LoadWith is Load on a caller supplied viper instance, typically one with
// command line flags bound.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode validates and normalizes the settings held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg.ProviderID = strings.TrimSpace(cfg.ProviderID)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.SecretsFile = strings.TrimSpace(cfg.SecretsFile)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if cfg.ProviderID == "" {
		return Config{}, errors.New("config provider_id must not be empty")
	}
	if strings.Contains(cfg.ProviderID, ".") {
		return Config{}, fmt.Errorf("config provider_id %q must not contain '.'", cfg.ProviderID)
	}
	if cfg.DataDir == "" {
		return Config{}, errors.New("config data_dir must not be empty")
	}
	if cfg.SecretsFile == "" {
		return Config{}, errors.New("config secrets_file must not be empty")
	}
	if cfg.MaxConcurrency < 0 {
		return Config{}, fmt.Errorf("config max_concurrency must be >= 0, got %d", cfg.MaxConcurrency)
	}
	if cfg.RequestTimeout < 0 {
		return Config{}, fmt.Errorf("config request_timeout must be >= 0, got %s", cfg.RequestTimeout)
	}
	return cfg, nil
}
