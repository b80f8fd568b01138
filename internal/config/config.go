package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/artpar/cardsync/internal/core"
)

// Config is the runtime configuration for the sync layer.
type Config struct {
	Remote  RemoteConfig  `mapstructure:"remote"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
}

// RemoteConfig configures the backend client.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig configures the persistent store.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	Namespace string `mapstructure:"namespace"`
}

// CacheConfig configures cache lifetimes.
type CacheConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	SweepOnStart bool          `mapstructure:"sweep_on_start"`
}

// SyncConfig configures mutation behavior.
type SyncConfig struct {
	CardKind       core.Kind `mapstructure:"card_kind"`
	OfflineToggles bool      `mapstructure:"offline_toggles"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:   "~/.cardsync",
			Namespace: "daily_inspiration",
		},
		Cache: CacheConfig{
			TTL:          time.Hour,
			SweepOnStart: true,
		},
		Sync: SyncConfig{
			CardKind:       core.KindInspirational,
			OfflineToggles: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config.yaml from the given paths, then CARDSYNC_* environment
// variables, on top of Default.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, path := range paths {
		v.AddConfigPath(expandHome(path))
	}

	setDefaults(v)

	v.SetEnvPrefix("CARDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.timeout", d.Remote.Timeout.String())
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.namespace", d.Storage.Namespace)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
	v.SetDefault("cache.sweep_on_start", d.Cache.SweepOnStart)
	v.SetDefault("sync.card_kind", string(d.Sync.CardKind))
	v.SetDefault("sync.offline_toggles", d.Sync.OfflineToggles)
	v.SetDefault("log.level", d.Log.Level)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("config: remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid remote.base_url %q", c.Remote.BaseURL)
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("config: remote.timeout must be positive")
	}
	if c.Storage.Namespace == "" {
		return errors.New("config: storage.namespace is required")
	}
	if strings.Contains(c.Storage.Namespace, "/") {
		return fmt.Errorf("config: storage.namespace %q must not contain '/'", c.Storage.Namespace)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("config: cache.ttl must be positive")
	}
	if _, ok := core.KindNames[c.Sync.CardKind]; !ok {
		return fmt.Errorf("config: unknown sync.card_kind %q", c.Sync.CardKind)
	}
	return nil
}

// DBPath returns the path of the persistent store database.
func (c Config) DBPath() string {
	return filepath.Join(expandHome(c.Storage.DataDir), "cardsync.db")
}

// Document returns c in the layout of config.yaml.
func (c Config) Document() map[string]any {
	return map[string]any{
		"remote": map[string]any{
			"base_url": c.Remote.BaseURL,
			"timeout":  c.Remote.Timeout.String(),
		},
		"storage": map[string]any{
			"data_dir":  c.Storage.DataDir,
			"namespace": c.Storage.Namespace,
		},
		"cache": map[string]any{
			"ttl":            c.Cache.TTL.String(),
			"sweep_on_start": c.Cache.SweepOnStart,
		},
		"sync": map[string]any{
			"card_kind":       string(c.Sync.CardKind),
			"offline_toggles": c.Sync.OfflineToggles,
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}
}

// WriteFile writes c as config.yaml into dir, creating dir if needed.
func WriteFile(dir string, c Config) (string, error) {
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create dir: %w", err)
	}

	data, err := yaml.Marshal(c.Document())
	if err != nil {
		return "", fmt.Errorf("config: encode: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("config: write file: %w", err)
	}
	return path, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
