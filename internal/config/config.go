package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`    // bearer key for the user-facing routes
	PublicURL string `yaml:"public_url"` // base URL workers post webhooks to
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // when set, jobs persist in Postgres instead of redis
}

type FlyConfig struct {
	APIToken string `yaml:"api_token"`
	BaseURL  string `yaml:"base_url"`
	App      string `yaml:"app"`
	Region   string `yaml:"region"`
	Image    string `yaml:"image"`

	VolumeMinGB    int `yaml:"volume_min_gb"`
	VolumeMaxGB    int `yaml:"volume_max_gb"`
	VolumeBufferGB int `yaml:"volume_buffer_gb"`

	MachineCPUs     int `yaml:"machine_cpus"`
	MachineMemoryMB int `yaml:"machine_memory_mb"`
}

type ImporterConfig struct {
	SettleDelay    time.Duration `yaml:"settle_delay"`    // between machine and volume destroy
	Retention      time.Duration `yaml:"retention"`       // how long finished jobs stay pollable
	CleanupWorkers int           `yaml:"cleanup_workers"` // pool size for dispatched cleanup
	CredentialKey  string        `yaml:"credential_key"`  // HMAC key for worker upload credentials
	CredentialTTL  time.Duration `yaml:"credential_ttl"`  // worker credential lifetime
	ReaperCron     string        `yaml:"reaper_cron"`     // schedule for the orphan sweep
	ReaperMinAge   time.Duration `yaml:"reaper_min_age"`  // never reap resources younger than this

	// TokenEncryptionKey encrypts stored drive OAuth tokens at rest.
	// Optional; must be 16, 24 or 32 bytes when set.
	TokenEncryptionKey string `yaml:"token_encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Fly      FlyConfig      `yaml:"fly"`
	Importer ImporterConfig `yaml:"importer"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Fly.VolumeMinGB <= 0 {
		cfg.Fly.VolumeMinGB = 10
	}
	if cfg.Fly.VolumeMaxGB <= 0 {
		cfg.Fly.VolumeMaxGB = 500
	}
	if cfg.Fly.VolumeBufferGB <= 0 {
		cfg.Fly.VolumeBufferGB = 5
	}
	if cfg.Fly.MachineCPUs <= 0 {
		cfg.Fly.MachineCPUs = 2
	}
	if cfg.Fly.MachineMemoryMB <= 0 {
		cfg.Fly.MachineMemoryMB = 2048
	}
	if cfg.Importer.SettleDelay <= 0 {
		cfg.Importer.SettleDelay = 3 * time.Second
	}
	if cfg.Importer.Retention <= 0 {
		cfg.Importer.Retention = 24 * time.Hour
	}
	if cfg.Importer.CleanupWorkers <= 0 {
		cfg.Importer.CleanupWorkers = 4
	}
	if cfg.Importer.CredentialTTL <= 0 {
		cfg.Importer.CredentialTTL = 48 * time.Hour
	}
	if cfg.Importer.ReaperCron == "" {
		cfg.Importer.ReaperCron = "@every 30m"
	}
	if cfg.Importer.ReaperMinAge <= 0 {
		cfg.Importer.ReaperMinAge = 2 * time.Hour
	}

	// Minimal validation
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Fly.APIToken == "" {
		return nil, errors.New("fly.api_token is required")
	}
	if cfg.Fly.App == "" {
		return nil, errors.New("fly.app is required")
	}
	if cfg.Fly.Image == "" {
		return nil, errors.New("fly.image is required")
	}
	if cfg.Server.PublicURL == "" {
		return nil, errors.New("server.public_url is required")
	}
	if cfg.Importer.CredentialKey == "" {
		return nil, errors.New("importer.credential_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
