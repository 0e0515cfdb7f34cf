package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr        = ":8080"
	defaultReconcileSchedule = "@every 1m"
	defaultLogLevel          = "info"
)

type Config struct {
	DBDSN             string      `json:"db_dsn" yaml:"db_dsn"`
	EligibilityPath   string      `json:"eligibility_path" yaml:"eligibility_path"`
	ClaimLogPath      string      `json:"claim_log_path" yaml:"claim_log_path"`
	AdminPassword     string      `json:"admin_password" yaml:"admin_password"`
	ListenAddr        string      `json:"listen_addr" yaml:"listen_addr"`
	ReconcileSchedule string      `json:"reconcile_schedule" yaml:"reconcile_schedule"`
	LogLevel          string      `json:"log_level" yaml:"log_level"`
	Flush             FlushConfig `json:"flush" yaml:"flush"`
	Sheets            SheetConfig `json:"sheets" yaml:"sheets"`
}

// FlushConfig bounds the retries around every workbook write.
type FlushConfig struct {
	MaxAttempts       uint `json:"max_attempts" yaml:"max_attempts"`
	InitialIntervalMs int  `json:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalMs     int  `json:"max_interval_ms" yaml:"max_interval_ms"`
}

func (f FlushConfig) InitialInterval() time.Duration {
	return time.Duration(f.InitialIntervalMs) * time.Millisecond
}

func (f FlushConfig) MaxInterval() time.Duration {
	return time.Duration(f.MaxIntervalMs) * time.Millisecond
}

func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.DBDSN == "" {
		return Config{}, fmt.Errorf("db_dsn is required")
	}
	if cfg.EligibilityPath == "" {
		return Config{}, fmt.Errorf("eligibility_path is required")
	}
	if cfg.ClaimLogPath == "" {
		return Config{}, fmt.Errorf("claim_log_path is required")
	}
	if cfg.AdminPassword == "" {
		return Config{}, fmt.Errorf("admin_password is required")
	}

	cfg.applyDefaults()
	if err := cfg.Sheets.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ReconcileSchedule == "" {
		c.ReconcileSchedule = defaultReconcileSchedule
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Flush.MaxAttempts == 0 {
		c.Flush.MaxAttempts = 3
	}
	if c.Flush.InitialIntervalMs <= 0 {
		c.Flush.InitialIntervalMs = 100
	}
	if c.Flush.MaxIntervalMs <= 0 {
		c.Flush.MaxIntervalMs = 2000
	}
	c.Sheets.ApplyDefaults()
}
