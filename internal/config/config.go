/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the monitoring core.
type Config struct {
	configFileUsed string

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `mapstructure:"log-level"`

	Storage    StorageConfig    `mapstructure:"storage"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	API        APIConfig        `mapstructure:"api"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`

	// Timezone is the IANA timezone used for window evaluation and the
	// retention sweeper's daily trigger.
	Timezone string `mapstructure:"timezone"`
}

// StorageConfig configures the target/observation storage backend.
type StorageConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres, mysql

	SQLitePath string `mapstructure:"sqlite-path"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl-mode"`

	MaxIdleConns    int           `mapstructure:"max-idle-conns"`
	MaxOpenConns    int           `mapstructure:"max-open-conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn-max-idle-time"`
}

// QueueConfig configures the embedded job queue. The Redis fields are
// parsed from configuration but no component reads them; internal/pubsub
// has only the in-process broadcaster.
type QueueConfig struct {
	// BoltPath is the bbolt database file backing the probe/alert queues.
	BoltPath string `mapstructure:"bolt-path"`

	RedisURL      string `mapstructure:"redis-url"`
	RedisHost     string `mapstructure:"redis-host"`
	RedisPort     int    `mapstructure:"redis-port"`
	RedisPassword string `mapstructure:"redis-password"`
}

// RetentionConfig holds retention settings parsed from configuration.
// The Retention Sweeper does not read them: its windows are fixed in
// internal/retention and chosen by database size.
type RetentionConfig struct {
	CheckDataRetentionDays int `mapstructure:"check-data-retention-days"`
	LogRetentionDays       int `mapstructure:"log-retention-days"`
}

// WorkerConfig configures the Worker Pool.
type WorkerConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	RateLimitPerSec  int `mapstructure:"rate-limit-per-sec"`
}

// DefaultsConfig holds default check settings parsed from configuration.
// Nothing reads them: model.DefaultMonitoringConfig uses a fixed 5-minute
// frequency and 1000ms response threshold.
type DefaultsConfig struct {
	CheckFrequencyMinutes int `mapstructure:"check-frequency-minutes"`
	ResponseThresholdMs   int `mapstructure:"response-threshold-ms"`
}

// SMTPConfig configures the email alert channel.
type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from-email"`
}

// AlertingConfig configures the alert pipeline's dispatch behavior.
type AlertingConfig struct {
	GlobalRatePerSec   int `mapstructure:"global-rate-per-sec"`
	ChannelConcurrency int `mapstructure:"channel-concurrency"`

	// SlackWebhookURL, when set, is an operator-wide Slack sink that
	// receives every dispatched alert in addition to the per-target
	// email/webhook channels.
	SlackWebhookURL string `mapstructure:"slack-webhook-url"`
}

// APIConfig configures the ambient health/metrics/coreapi HTTP surface.
type APIConfig struct {
	BindAddress string `mapstructure:"bind-address"`
}

// MetricsConfig holds a metrics bind address parsed from configuration.
// Nothing reads it: /metrics is served by the API server on
// APIConfig.BindAddress.
type MetricsConfig struct {
	BindAddress string `mapstructure:"bind-address"`
}

// DefaultConfig returns the default configuration, matching spec's
// documented defaults exactly.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLitePath: "/data/monitorcore.db",
			Port:       5432,
			SSLMode:    "disable",
		},
		Queue: QueueConfig{
			BoltPath:  "/data/monitorcore-queue.db",
			RedisPort: 6379,
		},
		Retention: RetentionConfig{
			CheckDataRetentionDays: 1,
			LogRetentionDays:       1,
		},
		Worker: WorkerConfig{
			Concurrency:     50,
			RateLimitPerSec: 100,
		},
		Defaults: DefaultsConfig{
			CheckFrequencyMinutes: 5,
			ResponseThresholdMs:   1000,
		},
		Alerting: AlertingConfig{
			GlobalRatePerSec:   50,
			ChannelConcurrency: 10,
		},
		API: APIConfig{
			BindAddress: ":8080",
		},
		Metrics: MetricsConfig{
			BindAddress: ":9090",
		},
		Timezone: "UTC",
	}
}

// BindFlags binds configuration flags to pflags, mirroring the
// teacher's internal/config/config.go flag layout.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("timezone", "UTC", "IANA timezone for window evaluation and retention scheduling")

	flags.String("storage.type", "sqlite", "Storage backend type (sqlite, postgres, mysql)")
	flags.String("storage.sqlite-path", "/data/monitorcore.db", "Path to SQLite database file")
	flags.String("storage.host", "", "Database host (postgres/mysql)")
	flags.Int("storage.port", 5432, "Database port (postgres/mysql)")
	flags.String("storage.database", "", "Database name (postgres/mysql)")
	flags.String("storage.user", "", "Database user (postgres/mysql)")
	flags.String("storage.password", "", "Database password (postgres/mysql)")
	flags.String("storage.ssl-mode", "disable", "Postgres SSL mode")

	flags.String("queue.bolt-path", "/data/monitorcore-queue.db", "Path to bbolt queue database file")
	flags.String("queue.redis-url", "", "Redis URL for the pub/sub seam (optional)")
	flags.String("queue.redis-host", "", "Redis host (optional, alternative to redis-url)")
	flags.Int("queue.redis-port", 6379, "Redis port")
	flags.String("queue.redis-password", "", "Redis password")

	flags.Int("retention.check-data-retention-days", 1, "Observation retention window in days")
	flags.Int("retention.log-retention-days", 1, "Job log retention window in days")

	flags.Int("worker.concurrency", 50, "Worker pool concurrency")
	flags.Int("worker.rate-limit-per-sec", 100, "Worker pool global rate limit (jobs/sec/process)")

	flags.Int("defaults.check-frequency-minutes", 5, "Default check frequency in minutes")
	flags.Int("defaults.response-threshold-ms", 1000, "Default slow-response threshold in milliseconds")

	flags.String("smtp.host", "", "SMTP host")
	flags.Int("smtp.port", 587, "SMTP port")
	flags.String("smtp.user", "", "SMTP username")
	flags.String("smtp.password", "", "SMTP password")
	flags.String("smtp.from-email", "", "SMTP from-address")

	flags.Int("alerting.global-rate-per-sec", 50, "Global alert dispatch rate limit")
	flags.Int("alerting.channel-concurrency", 10, "Per-channel dispatch concurrency")
	flags.String("alerting.slack-webhook-url", "", "Operator-wide Slack incoming webhook URL (optional)")

	flags.String("api.bind-address", ":8080", "Ambient health/coreapi HTTP bind address")
	flags.String("metrics.bind-address", ":9090", "Prometheus metrics bind address")
}

// Load loads configuration from flags, environment, and an optional
// config file, following the teacher's viper wiring exactly (flags ->
// env with prefix+replacer -> config file -> defaults -> Unmarshal).
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("log-level", defaults.LogLevel)
	v.SetDefault("timezone", defaults.Timezone)
	v.SetDefault("storage.type", defaults.Storage.Type)
	v.SetDefault("storage.sqlite-path", defaults.Storage.SQLitePath)
	v.SetDefault("storage.port", defaults.Storage.Port)
	v.SetDefault("storage.ssl-mode", defaults.Storage.SSLMode)
	v.SetDefault("queue.bolt-path", defaults.Queue.BoltPath)
	v.SetDefault("queue.redis-port", defaults.Queue.RedisPort)
	v.SetDefault("retention.check-data-retention-days", defaults.Retention.CheckDataRetentionDays)
	v.SetDefault("retention.log-retention-days", defaults.Retention.LogRetentionDays)
	v.SetDefault("worker.concurrency", defaults.Worker.Concurrency)
	v.SetDefault("worker.rate-limit-per-sec", defaults.Worker.RateLimitPerSec)
	v.SetDefault("defaults.check-frequency-minutes", defaults.Defaults.CheckFrequencyMinutes)
	v.SetDefault("defaults.response-threshold-ms", defaults.Defaults.ResponseThresholdMs)
	v.SetDefault("alerting.global-rate-per-sec", defaults.Alerting.GlobalRatePerSec)
	v.SetDefault("alerting.channel-concurrency", defaults.Alerting.ChannelConcurrency)
	v.SetDefault("api.bind-address", defaults.API.BindAddress)
	v.SetDefault("metrics.bind-address", defaults.Metrics.BindAddress)

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	// Environment variables. Spec-named vars (SMTP_HOST, TIMEZONE,
	// WORKER_CONCURRENCY, ...) are bound explicitly since their shape
	// doesn't follow the section.key convention the replacer produces
	// for everything else.
	v.SetEnvPrefix("MONITORCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("alerting.slack-webhook-url", "SLACK_WEBHOOK_URL")
	bindSpecEnvVars(v)

	var configFileUsed string
	if configFile, _ := flags.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		configFileUsed = v.ConfigFileUsed()
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/monitorcore")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err == nil {
			configFileUsed = v.ConfigFileUsed()
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.configFileUsed = configFileUsed

	return cfg, nil
}

// bindSpecEnvVars binds the literal environment variable names listed
// against their config keys, so operators can set
// SMTP_HOST instead of MONITORCORE_SMTP_HOST.
func bindSpecEnvVars(v *viper.Viper) {
	_ = v.BindEnv("storage.host", "MONGO_URI", "DATABASE_URL")
	_ = v.BindEnv("queue.redis-url", "REDIS_URL")
	_ = v.BindEnv("queue.redis-host", "REDIS_HOST")
	_ = v.BindEnv("queue.redis-port", "REDIS_PORT")
	_ = v.BindEnv("queue.redis-password", "REDIS_PASSWORD")
	_ = v.BindEnv("smtp.host", "SMTP_HOST")
	_ = v.BindEnv("smtp.port", "SMTP_PORT")
	_ = v.BindEnv("smtp.user", "SMTP_USER")
	_ = v.BindEnv("smtp.password", "SMTP_PASSWORD")
	_ = v.BindEnv("smtp.from-email", "SMTP_FROM_EMAIL")
	_ = v.BindEnv("timezone", "TIMEZONE")
	_ = v.BindEnv("retention.check-data-retention-days", "CHECK_DATA_RETENTION_DAYS")
	_ = v.BindEnv("retention.log-retention-days", "LOG_RETENTION_DAYS")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.rate-limit-per-sec", "WORKER_RATE_LIMIT_PER_SEC")
	_ = v.BindEnv("defaults.check-frequency-minutes", "DEFAULT_CHECK_FREQUENCY")
	_ = v.BindEnv("defaults.response-threshold-ms", "DEFAULT_RESPONSE_THRESHOLD")
}

// ConfigFileUsed returns the path to the config file that was loaded
// (empty if none).
func (c *Config) ConfigFileUsed() string {
	return c.configFileUsed
}

// StorePoolConfig adapts the storage section into store.ConnectionPoolConfig.
func (c *Config) StorePoolConfig() (maxIdle, maxOpen int, maxLifetime, maxIdleTime time.Duration) {
	return c.Storage.MaxIdleConns, c.Storage.MaxOpenConns, c.Storage.ConnMaxLifetime, c.Storage.ConnMaxIdleTime
}
