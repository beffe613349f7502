// Package config loads the daemon's bootstrap configuration: an optional
// config.yaml in the config directory overlaid by VODKEEP_* environment
// variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/pkg/credman/keyring"
	"github.com/warpdl/vodkeep/pkg/logger"
)

// EnvConfigDir overrides the configuration directory.
const EnvConfigDir = "VODKEEP_CONFIG_DIR"

// Keys recognised in config.yaml and as VODKEEP_<KEY> environment variables.
const (
	KeyListen           = "listen"
	KeyRPCSecret        = "rpc_secret"
	KeyDatabase         = "database"
	KeyDownloader       = "downloader"
	KeyClientID         = "client_id"
	KeyDownloadPath     = "download_path"
	KeyMaxConcurrent    = "max_concurrent"
	KeyPreferredQuality = "preferred_quality"
	KeyRecentLimit      = "recent_limit"
	KeyLogLevel         = "log_level"
)

// DefaultListen is the daemon's RPC address.
const DefaultListen = "127.0.0.1:3850"

const rpcSecretFile = "rpc_secret"

// Config is the bootstrap configuration.
type Config struct {
	Dir              string
	Listen           string
	RPCSecret        string
	Database         string
	Downloader       string
	ClientID         string
	DownloadPath     string
	MaxConcurrent    int
	PreferredQuality model.Quality
	RecentLimit      int
	// LogLevel filters the daemon's console output. The log file always
	// records every level.
	LogLevel logger.Level
}

// DefaultDir returns $VODKEEP_CONFIG_DIR, or "vodkeep" under the user's
// config directory.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "vodkeep"), nil
}

func defaultDownloadPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Videos", "vodkeep")
}

// Load reads the configuration for dir. A missing config.yaml is not an
// error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyListen, DefaultListen)
	v.SetDefault(KeyDatabase, filepath.Join(dir, "vodkeep.db"))
	v.SetDefault(KeyDownloader, "yt-dlp")
	v.SetDefault(KeyDownloadPath, defaultDownloadPath())
	v.SetDefault(KeyMaxConcurrent, 2)
	v.SetDefault(KeyPreferredQuality, string(model.QualitySource))
	v.SetDefault(KeyRecentLimit, 5)
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix("VODKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not load config file: %w", err)
		}
	}

	cfg := &Config{
		Dir:              dir,
		Listen:           v.GetString(KeyListen),
		RPCSecret:        v.GetString(KeyRPCSecret),
		Database:         v.GetString(KeyDatabase),
		Downloader:       v.GetString(KeyDownloader),
		ClientID:         v.GetString(KeyClientID),
		DownloadPath:     v.GetString(KeyDownloadPath),
		MaxConcurrent:    v.GetInt(KeyMaxConcurrent),
		PreferredQuality: model.Quality(v.GetString(KeyPreferredQuality)),
		RecentLimit:      v.GetInt(KeyRecentLimit),
	}
	level, err := logger.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	cfg.LogLevel = level
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyMaxConcurrent, c.MaxConcurrent)
	}
	if c.RecentLimit < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyRecentLimit, c.RecentLimit)
	}
	if err := c.PreferredQuality.Validate(); err != nil {
		return fmt.Errorf("%s: %w", KeyPreferredQuality, err)
	}
	return nil
}

// DefaultSettings returns the runtime settings used until the user saves
// their own.
func (c *Config) DefaultSettings() model.Settings {
	return model.Settings{
		ClientID:               c.ClientID,
		DownloadPath:           c.DownloadPath,
		MaxConcurrentDownloads: c.MaxConcurrent,
		PreferredQuality:       c.PreferredQuality,
	}
}

// EnsureRPCSecret returns the configured RPC secret. Without one, a random
// secret is read from (or created in) the rpc_secret file in the config
// directory, which the CLI reads to authenticate.
func (c *Config) EnsureRPCSecret() (string, error) {
	if c.RPCSecret != "" {
		return c.RPCSecret, nil
	}
	fs := keyring.NewNamedFileStore(c.Dir, rpcSecretFile)
	secret, err := fs.Get()
	if err == nil && secret != "" {
		c.RPCSecret = secret
		return secret, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate rpc secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	if err := fs.Set(secret); err != nil {
		return "", fmt.Errorf("store rpc secret: %w", err)
	}
	c.RPCSecret = secret
	return secret, nil
}

// ReadRPCSecret returns the configured or previously generated secret
// without creating one.
func (c *Config) ReadRPCSecret() (string, error) {
	if c.RPCSecret != "" {
		return c.RPCSecret, nil
	}
	secret, err := keyring.NewNamedFileStore(c.Dir, rpcSecretFile).Get()
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("no rpc secret found in %s: start the daemon first", c.Dir)
	}
	return secret, err
}
