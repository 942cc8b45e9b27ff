package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Credential CredentialConfig
	AWS        AWSConfig
	QR         QRConfig
	Waitlist   WaitlistConfig
	Rabbit     RabbitConfig
	Email      EmailConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string `envconfig:"PORT" default:"8080"`
	ReadTimeout        int    `envconfig:"READ_TIMEOUT_SEC" default:"30"`
	WriteTimeout       int    `envconfig:"WRITE_TIMEOUT_SEC" default:"30"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"` // comma-separated, or "*"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL"` // if set, used as-is
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName   string `envconfig:"DB_NAME" default:"seminars"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string `envconfig:"JWT_SECRET" default:"change-me-in-production"`
	ExpireHours int    `envconfig:"JWT_EXPIRE_HOURS" default:"24"`
}

// CredentialConfig holds the site-wide secrets used to sign QR credentials and verify order webhooks.
type CredentialConfig struct {
	Secret             string `envconfig:"CREDENTIAL_SECRET" default:"change-me-in-production"`
	OrderWebhookSecret string `envconfig:"ORDER_WEBHOOK_SECRET"`
}

// AWSConfig holds AWS credentials and the bucket for QR images.
type AWSConfig struct {
	Region               string `envconfig:"AWS_REGION"`
	AccessKeyID          string `envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	QRBucket             string `envconfig:"AWS_S3_QR_BUCKET" default:"seminar-qr-codes"`
	PresignExpireMinutes int    `envconfig:"AWS_PRESIGN_EXPIRE_MINUTES" default:"15"`
}

// QRConfig holds QR image rendering settings.
type QRConfig struct {
	OutputDir string `envconfig:"QR_OUTPUT_DIR"` // local fallback when S3 is not configured; empty = os.TempDir()
	ImageSize int    `envconfig:"QR_IMAGE_SIZE" default:"300"`
}

// WaitlistConfig holds waitlist promotion settings.
type WaitlistConfig struct {
	HoldHours        int `envconfig:"WAITLIST_HOLD_HOURS" default:"48"`
	SweepIntervalSec int `envconfig:"WAITLIST_SWEEP_INTERVAL_SEC" default:"300"`
}

// RabbitConfig holds message broker settings. Empty URL disables event publishing.
type RabbitConfig struct {
	URL      string `envconfig:"RABBIT_URL"`
	Exchange string `envconfig:"RABBIT_EXCHANGE" default:"seminars.events"`
}

// EmailConfig for SMTP delivery. Empty host logs emails instead of sending.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"noreply@example.com"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"CE Seminars"`
	SMTPHost    string `envconfig:"SMTP_HOST"`
	SMTPPort    int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser    string `envconfig:"SMTP_USER"`
	SMTPPass    string `envconfig:"SMTP_PASS"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// HoldWindow returns how long a notified waitlist entry keeps its claim on a freed seat.
func (c WaitlistConfig) HoldWindow() time.Duration {
	if c.HoldHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(c.HoldHours) * time.Hour
}

// SweepInterval returns the waitlist expiry sweep period.
func (c WaitlistConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// Origins splits CORSAllowedOrigins into trimmed entries.
func (c ServerConfig) Origins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return &cfg, nil
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
