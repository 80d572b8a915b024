package serve

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server and fleet configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`

	// FilesDir is where uploaded files are stored.
	FilesDir string `yaml:"files_dir"`

	// JWTSecret signs access tokens. Required.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// ReconcileInterval is the pause between fleet reconciliation cycles.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	// StopTimeout bounds each worker shutdown.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// CompletionTimeout bounds each completion call made by a worker.
	CompletionTimeout time.Duration `yaml:"completion_timeout"`

	// PollTimeout is the Telegram long-poll timeout in seconds.
	PollTimeout int `yaml:"poll_timeout"`

	// YandexAPIKey and YandexFolderID configure the completion backend.
	// Both fall back to the YANDEX_API_KEY / YANDEX_FOLDER_ID environment
	// variables when empty.
	YandexAPIKey   string `yaml:"yandex_api_key"`
	YandexFolderID string `yaml:"yandex_folder_id"`
}

// UnmarshalYAML decodes the config with durations given in Go duration
// syntax ("30m", "10s") rather than raw nanoseconds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Addr              string `yaml:"addr"`
		DBPath            string `yaml:"db_path"`
		FilesDir          string `yaml:"files_dir"`
		JWTSecret         string `yaml:"jwt_secret"`
		TokenTTL          string `yaml:"token_ttl"`
		ReconcileInterval string `yaml:"reconcile_interval"`
		StopTimeout       string `yaml:"stop_timeout"`
		CompletionTimeout string `yaml:"completion_timeout"`
		PollTimeout       int    `yaml:"poll_timeout"`
		YandexAPIKey      string `yaml:"yandex_api_key"`
		YandexFolderID    string `yaml:"yandex_folder_id"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Addr = raw.Addr
	c.DBPath = raw.DBPath
	c.FilesDir = raw.FilesDir
	c.JWTSecret = raw.JWTSecret
	c.PollTimeout = raw.PollTimeout
	c.YandexAPIKey = raw.YandexAPIKey
	c.YandexFolderID = raw.YandexFolderID

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"token_ttl", raw.TokenTTL, &c.TokenTTL},
		{"reconcile_interval", raw.ReconcileInterval, &c.ReconcileInterval},
		{"stop_timeout", raw.StopTimeout, &c.StopTimeout},
		{"completion_timeout", raw.CompletionTimeout, &c.CompletionTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// LoadConfig reads a YAML config file into a Config with defaults applied.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.DBPath == "" {
		c.DBPath = "botfleet.db"
	}
	if c.FilesDir == "" {
		c.FilesDir = "files"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.YandexAPIKey == "" {
		c.YandexAPIKey = os.Getenv("YANDEX_API_KEY")
	}
	if c.YandexFolderID == "" {
		c.YandexFolderID = os.Getenv("YANDEX_FOLDER_ID")
	}
}
