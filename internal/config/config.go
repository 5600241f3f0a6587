package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/xxxsen/common/logger"
)

type Config struct {
	Database         DatabaseConfig        `json:"database"`
	JWTSecret        string                `json:"jwt_secret" env:"TRUEPORT_JWT_SECRET"`
	JWTTTLHours      int                   `json:"jwt_ttl_hours"`
	Port             int                   `json:"port" env:"TRUEPORT_PORT"`
	FrontendURL      string                `json:"frontend_url" env:"TRUEPORT_FRONTEND_URL"`
	LogConfig        logger.LogConfig      `json:"log_config"`
	Mail             MailConfig            `json:"mail"`
	Verification     VerificationConfig    `json:"verification"`
	MagicLink        MagicLinkConfig       `json:"magic_link"`
	BackgroundCheck  BackgroundCheckConfig `json:"background_check"`
	Outbox           OutboxConfig          `json:"outbox"`
	SweepSpec        string                `json:"sweep_spec"`
	NATS             NATSConfig            `json:"nats"`
	FileStore        FileStoreConfig       `json:"file_store"`
	MaxUploadSize    int64                 `json:"max_upload_size"`
	CORSAllowlist    []string              `json:"cors_allowlist" env:"TRUEPORT_CORS_ALLOWLIST" envSeparator:","`
	RateLimitSeconds int                   `json:"rate_limit_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" env:"TRUEPORT_DB_DSN"`
	Host     string `json:"host" env:"TRUEPORT_DB_HOST"`
	Port     int    `json:"port" env:"TRUEPORT_DB_PORT"`
	User     string `json:"user" env:"TRUEPORT_DB_USER"`
	Password string `json:"password" env:"TRUEPORT_DB_PASSWORD"`
	DBName   string `json:"dbname" env:"TRUEPORT_DB_NAME"`
	SSLMode  string `json:"sslmode" env:"TRUEPORT_DB_SSLMODE"`
}

type MailConfig struct {
	Host     string `json:"host" env:"TRUEPORT_SMTP_HOST"`
	Port     int    `json:"port" env:"TRUEPORT_SMTP_PORT"`
	Username string `json:"username" env:"TRUEPORT_SMTP_USERNAME"`
	Password string `json:"password" env:"TRUEPORT_SMTP_PASSWORD"`
	From     string `json:"from" env:"TRUEPORT_SMTP_FROM"`
}

type VerificationConfig struct {
	InviteTTLHours   int `json:"invite_ttl_hours" env:"TRUEPORT_INVITE_TTL_HOURS"`
	ActionTTLMinutes int `json:"action_ttl_minutes" env:"TRUEPORT_ACTION_TTL_MINUTES"`
	RecordTTLDays    int `json:"record_ttl_days"`
}

type MagicLinkConfig struct {
	TTLHours int `json:"ttl_hours"`
}

type BackgroundCheckConfig struct {
	TTLDays         int `json:"ttl_days"`
	DefaultReferees int `json:"default_referees"`
}

type OutboxConfig struct {
	BatchSize    int    `json:"batch_size"`
	MaxAttempts  int    `json:"max_attempts"`
	LeaseSeconds int    `json:"lease_seconds"`
	DispatchSpec string `json:"dispatch_spec"`
}

type NATSConfig struct {
	URL           string `json:"url" env:"TRUEPORT_NATS_URL"`
	SubjectPrefix string `json:"subject_prefix"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 168
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.FrontendURL = strings.TrimSuffix(cfg.FrontendURL, "/")
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:5173"
	}
	if cfg.Verification.InviteTTLHours <= 0 {
		cfg.Verification.InviteTTLHours = 72
	}
	if cfg.Verification.ActionTTLMinutes <= 0 {
		cfg.Verification.ActionTTLMinutes = 30
	}
	if cfg.Verification.RecordTTLDays <= 0 {
		cfg.Verification.RecordTTLDays = 30
	}
	if cfg.MagicLink.TTLHours <= 0 {
		cfg.MagicLink.TTLHours = 168
	}
	if cfg.BackgroundCheck.TTLDays <= 0 {
		cfg.BackgroundCheck.TTLDays = 30
	}
	if cfg.BackgroundCheck.DefaultReferees <= 0 {
		cfg.BackgroundCheck.DefaultReferees = 3
	}
	if cfg.BackgroundCheck.DefaultReferees > 3 {
		return fmt.Errorf("background_check.default_referees must be between 1 and 3")
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 20
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = 6
	}
	if cfg.Outbox.LeaseSeconds <= 0 {
		cfg.Outbox.LeaseSeconds = 60
	}
	if cfg.Outbox.DispatchSpec == "" {
		cfg.Outbox.DispatchSpec = "* * * * *"
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = "*/15 * * * *"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "trueport"
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 20 * 1024 * 1024
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.Data == nil {
		return fmt.Errorf("file_store.data is required")
	}
	return nil
}
