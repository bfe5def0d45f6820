package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Storage       StorageConfig       `json:"storage"`
	AWS           AWSConfig           `json:"aws"`
	Notifications NotificationsConfig `json:"notifications"`
	Security      SecurityConfig      `json:"security"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Signing       SigningConfig       `json:"signing"`
	Audit         AuditConfig         `json:"audit"`
	Reminders     RemindersConfig     `json:"reminders"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Mode         string        `json:"mode"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	MaxUploadMB  int64         `json:"max_upload_mb"`
}

// DatabaseConfig represents database configuration. Driver "memory" keeps
// everything in process and is meant for local runs.
type DatabaseConfig struct {
	Driver         string        `json:"driver"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

// StorageConfig selects the blob store: "s3", "local" or "memory".
type StorageConfig struct {
	Driver    string `json:"driver"`
	Bucket    string `json:"bucket"`
	LocalPath string `json:"local_path"`
}

// AWSConfig is shared by S3, SES, SNS and DynamoDB clients.
type AWSConfig struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

// NotificationsConfig configures signer invitations and lifecycle events.
type NotificationsConfig struct {
	Driver         string `json:"driver"`
	SenderEmail    string `json:"sender_email"`
	SigningURL     string `json:"signing_url"`
	EventsTopicARN string `json:"events_topic_arn"`
	QueueSize      int    `json:"queue_size"`
	Workers        int    `json:"workers"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// RateLimitConfig limits sign and reject requests per client IP. An empty
// RedisAddr keeps counters in memory.
type RateLimitConfig struct {
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// SigningConfig
type SigningConfig struct {
	SignatureReserveBytes int `json:"signature_reserve_bytes"`
}

// AuditConfig names the DynamoDB table for access records. Empty logs
// access records instead.
type AuditConfig struct {
	DynamoTable string `json:"dynamo_table"`
}

// RemindersConfig drives the reminder worker.
type RemindersConfig struct {
	Schedule      string `json:"schedule"`
	IntervalHours int    `json:"interval_hours"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxUploadMB:  25,
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "esign",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
			AutoMigrate:    true,
		},
		Storage: StorageConfig{
			Driver:    "local",
			Bucket:    "esign-documents",
			LocalPath: "./data/documents",
		},
		AWS: AWSConfig{
			Region: "eu-west-1",
		},
		Notifications: NotificationsConfig{
			Driver:         "log",
			SenderEmail:    "no-reply@esign.local",
			SigningURL:     "http://localhost:3000/sign?token=%s",
			QueueSize:      256,
			Workers:        2,
			TimeoutSeconds: 10,
		},
		RateLimit: RateLimitConfig{
			Requests:      30,
			WindowSeconds: 60,
		},
		Signing: SigningConfig{
			SignatureReserveBytes: 8192,
		},
		Reminders: RemindersConfig{
			Schedule:      "0 0 9 * * *",
			IntervalHours: 48,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from .env, the JSON file at configPath
// when it exists, then environment variables.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "s3", "local", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Notifications.Driver {
	case "ses", "log":
	default:
		return fmt.Errorf("unknown notifications driver %q", c.Notifications.Driver)
	}
	if !strings.Contains(c.Notifications.SigningURL, "%s") {
		return fmt.Errorf("notifications.signing_url must contain %%s for the token")
	}
	return nil
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")
	setString(&config.Server.Mode, "GIN_MODE")

	setString(&config.Database.Driver, "DATABASE_DRIVER")
	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")

	setString(&config.Storage.Driver, "STORAGE_DRIVER")
	setString(&config.Storage.Bucket, "STORAGE_BUCKET")
	setString(&config.Storage.LocalPath, "STORAGE_LOCAL_PATH")

	setString(&config.AWS.Region, "AWS_REGION")
	setString(&config.AWS.Endpoint, "AWS_ENDPOINT_URL")
	setString(&config.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&config.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&config.AWS.SessionToken, "AWS_SESSION_TOKEN")

	setString(&config.Notifications.Driver, "ESIGN_NOTIFICATIONS_DRIVER")
	setString(&config.Notifications.SenderEmail, "ESIGN_SENDER_EMAIL")
	setString(&config.Notifications.SigningURL, "ESIGN_SIGNING_URL")
	setString(&config.Notifications.EventsTopicARN, "ESIGN_EVENTS_TOPIC_ARN")

	setString(&config.Security.JWTSecret, "JWT_SECRET")

	setInt(&config.RateLimit.Requests, "ESIGN_RATE_LIMIT_REQUESTS")
	setInt(&config.RateLimit.WindowSeconds, "ESIGN_RATE_LIMIT_WINDOW_SECONDS")
	setString(&config.RateLimit.RedisAddr, "REDIS_ADDR")
	setString(&config.RateLimit.RedisPassword, "REDIS_PASSWORD")

	setInt(&config.Signing.SignatureReserveBytes, "ESIGN_SIGNATURE_RESERVE_BYTES")
	setString(&config.Audit.DynamoTable, "ESIGN_AUDIT_TABLE")
	setString(&config.Reminders.Schedule, "ESIGN_REMINDER_SCHEDULE")
	setInt(&config.Reminders.IntervalHours, "ESIGN_REMINDER_INTERVAL_HOURS")
	setString(&config.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateWindow returns the rate limit window as a duration.
func (c *RateLimitConfig) RateWindow() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
