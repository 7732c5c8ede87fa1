package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agenticscrum/agentmon/internal/logger"
)

// Config is the top-level TOML structure for the agentmon daemon.
//
//	[server]
//	listen = "127.0.0.1:8420"
//	base_path = "/api"
//	metrics = true
//
//	[store]
//	dsn = "/home/me/.agentmon/agentmon.db"
//
//	[archive]
//	dsn = ""            # optional sqlite path or postgres:// DSN
//
//	[monitor]
//	logs_dir = "/home/me/.agentmon/logs"
//	grace_period = "2s"
//
//	[log]
//	level = "info"
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Log     logger.Config `mapstructure:"log"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
	Metrics  bool   `mapstructure:"metrics"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ArchiveConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MonitorConfig struct {
	LogsDir     string        `mapstructure:"logs_dir"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// DataDir is the per-user application-data directory holding the default
// store file and logs directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentmon"
	}
	return filepath.Join(home, ".agentmon")
}

// Default returns the configuration used when no file is given.
func Default() Config {
	dir := DataDir()
	return Config{
		Server: ServerConfig{
			Listen:   "127.0.0.1:8420",
			BasePath: "/api",
			Metrics:  true,
		},
		Store:   StoreConfig{DSN: filepath.Join(dir, "agentmon.db")},
		Monitor: MonitorConfig{LogsDir: filepath.Join(dir, "logs"), GracePeriod: 2 * time.Second},
		Log:     logger.Config{Level: "info"},
	}
}

// Load reads a TOML config from path, layered over Default. An empty path
// returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureDirs creates the data and logs directories if missing.
func (c Config) EnsureDirs() error {
	if dir := filepath.Dir(c.Store.DSN); dir != "." && !isDSNRemote(c.Store.DSN) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	if c.Monitor.LogsDir != "" {
		if err := os.MkdirAll(c.Monitor.LogsDir, 0o750); err != nil {
			return err
		}
	}
	return nil
}

func isDSNRemote(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
