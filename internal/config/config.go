package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	StorageS3     = "s3"
	StorageGDrive = "gdrive"
	StorageLocal  = "local"

	CompressorZstd    = "zstd"
	CompressorBuiltin = "builtin"
)

// Config is read from environment-style keys. Every field maps to one
// upper-case environment variable of the same name (PG_URL, S3_BUCKET, ...).
type Config struct {
	App      AppConfig      `mapstructure:",squash"`
	Database DatabaseConfig `mapstructure:",squash"`
	Schedule ScheduleConfig `mapstructure:",squash"`
	Pipeline PipelineConfig `mapstructure:",squash"`
	Storage  StorageConfig  `mapstructure:",squash"`
	Notify   NotifyConfig   `mapstructure:",squash"`
}

type AppConfig struct {
	Name        string `mapstructure:"app_name"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	LogFile     string `mapstructure:"log_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	WorkDir     string `mapstructure:"work_dir"`

	// Rotation of LogFile
	LogMaxSizeMB  int  `mapstructure:"log_max_size_mb"`
	LogMaxBackups int  `mapstructure:"log_max_backups"`
	LogMaxAgeDays int  `mapstructure:"log_max_age_days"`
	LogCompress   bool `mapstructure:"log_compress"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"pg_url"`
	SkipDatabases  []string      `mapstructure:"skip_databases"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout"`
	PgDumpBin      string        `mapstructure:"pg_dump_bin"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron_schedule"`
}

type PipelineConfig struct {
	Compressor       string        `mapstructure:"compressor"`
	ZstdLevel        int           `mapstructure:"zstd_level"`
	ZstdBin          string        `mapstructure:"zstd_bin"`
	AgeBin           string        `mapstructure:"age_bin"`
	AgeRecipients    []string      `mapstructure:"age_recipients"`
	Sha256sumBin     string        `mapstructure:"sha256sum_bin"`
	SigningKey       string        `mapstructure:"signing_key"`
	SigningNamespace string        `mapstructure:"signing_namespace"`
	SSHKeygenBin     string        `mapstructure:"ssh_keygen_bin"`
	StageTimeout     time.Duration `mapstructure:"stage_timeout"`
}

type StorageConfig struct {
	Type          string        `mapstructure:"storage_type"`
	ObjectPrefix  string        `mapstructure:"object_prefix"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`

	// AWS S3
	Bucket         string `mapstructure:"s3_bucket"`
	Region         string `mapstructure:"s3_region"`
	Endpoint       string `mapstructure:"s3_endpoint"`
	ForcePathStyle bool   `mapstructure:"s3_force_path_style"`
	AccessKey      string `mapstructure:"s3_access_key"`
	SecretKey      string `mapstructure:"s3_secret_key"`

	// Google Drive
	CredentialsFile string `mapstructure:"gdrive_credentials_file"`
	FolderID        string `mapstructure:"gdrive_folder_id"`

	// Local directory
	LocalPath string `mapstructure:"local_storage_path"`
}

type NotifyConfig struct {
	TelegramBotToken      string `mapstructure:"telegram_bot_token"`
	TelegramChatID        string `mapstructure:"telegram_chat_id"`
	TelegramNotifySuccess bool   `mapstructure:"telegram_notify_success"`
}

var defaults = map[string]interface{}{
	"app_name":     "pgsentry",
	"log_level":        "info",
	"log_format":       "console",
	"log_file":         "",
	"log_max_size_mb":  100,
	"log_max_backups":  3,
	"log_max_age_days": 28,
	"log_compress":     true,
	"metrics_addr":     "",
	"work_dir":         "",

	"pg_url":          "",
	"skip_databases":  []string{"postgres"},
	"connect_timeout": 30 * time.Second,
	"export_timeout":  6 * time.Hour,
	"pg_dump_bin":     "pg_dump",

	"cron_schedule": "0 * * * *",

	"compressor":        CompressorZstd,
	"zstd_level":        3,
	"zstd_bin":          "zstd",
	"age_bin":           "age",
	"age_recipients":    []string{},
	"sha256sum_bin":     "sha256sum",
	"signing_key":       "",
	"signing_namespace": "pgsentry",
	"ssh_keygen_bin":    "ssh-keygen",
	"stage_timeout":     2 * time.Hour,

	"storage_type":            StorageS3,
	"object_prefix":           "backup",
	"upload_timeout":          2 * time.Hour,
	"verify_timeout":          time.Minute,
	"s3_bucket":               "",
	"s3_region":               "",
	"s3_endpoint":             "",
	"s3_force_path_style":     false,
	"s3_access_key":           "",
	"s3_secret_key":           "",
	"gdrive_credentials_file": "",
	"gdrive_folder_id":        "",
	"local_storage_path":      "",

	"telegram_bot_token":      "",
	"telegram_chat_id":        "",
	"telegram_notify_success": false,
}

// LoadDotEnv populates the process environment from a .env file. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads defaults, then the optional YAML file at path, then the
// environment. Environment variables take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Database.SkipDatabases = splitList(c.Database.SkipDatabases)
	c.Pipeline.AgeRecipients = splitList(c.Pipeline.AgeRecipients)
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	c.Pipeline.Compressor = strings.ToLower(strings.TrimSpace(c.Pipeline.Compressor))
	c.App.LogFormat = strings.ToLower(strings.TrimSpace(c.App.LogFormat))
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("pg_url is required")
	}

	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("cron_schedule %q: %w", c.Schedule.Cron, err)
	}

	if len(c.Pipeline.AgeRecipients) == 0 {
		return fmt.Errorf("age_recipients must list at least one recipient")
	}

	switch c.Pipeline.Compressor {
	case CompressorZstd, CompressorBuiltin:
	default:
		return fmt.Errorf("unknown compressor: %s", c.Pipeline.Compressor)
	}

	switch c.Storage.Type {
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("s3_bucket is required for s3 storage")
		}
	case StorageGDrive:
		if c.Storage.CredentialsFile == "" || c.Storage.FolderID == "" {
			return fmt.Errorf("gdrive_credentials_file and gdrive_folder_id are required for gdrive storage")
		}
	case StorageLocal:
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("local_storage_path is required for local storage")
		}
	default:
		return fmt.Errorf("unknown storage_type: %s", c.Storage.Type)
	}

	if c.Storage.ObjectPrefix == "" {
		return fmt.Errorf("object_prefix cannot be empty")
	}

	timeouts := map[string]time.Duration{
		"connect_timeout": c.Database.ConnectTimeout,
		"export_timeout":  c.Database.ExportTimeout,
		"stage_timeout":   c.Pipeline.StageTimeout,
		"upload_timeout":  c.Storage.UploadTimeout,
		"verify_timeout":  c.Storage.VerifyTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch c.App.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log_format: %s", c.App.LogFormat)
	}

	if c.App.LogMaxSizeMB < 0 || c.App.LogMaxBackups < 0 || c.App.LogMaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings cannot be negative")
	}

	if (c.Notify.TelegramBotToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("telegram_bot_token and telegram_chat_id must be set together")
	}

	return nil
}

func (c *Config) SigningEnabled() bool {
	return strings.TrimSpace(c.Pipeline.SigningKey) != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.Notify.TelegramBotToken != ""
}
