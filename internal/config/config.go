package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Editing      EditingConfig      `mapstructure:"editing"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Deletion     DeletionConfig     `mapstructure:"deletion"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Authz        AuthzConfig        `mapstructure:"authz"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Notification NotificationConfig `mapstructure:"notification"`
	Export       ExportConfig       `mapstructure:"export"`
	NodeID       int64              `mapstructure:"node_id"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// EditingConfig tunes edit sessions and advisory locks
type EditingConfig struct {
	SessionTimeout        time.Duration `mapstructure:"session_timeout"`
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
	AutoSaveInterval      time.Duration `mapstructure:"autosave_interval"`
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions"`
	EnforceLocks          bool          `mapstructure:"enforce_locks"`
}

// ApprovalConfig tunes the approval queue
type ApprovalConfig struct {
	RecentWindow time.Duration `mapstructure:"recent_window"`
	RecentLimit  int           `mapstructure:"recent_limit"`
	StatsWindow  time.Duration `mapstructure:"stats_window"`
}

// DeletionConfig bounds the deleted-process listing
type DeletionConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// RedisConfig enables the shared edit-lock store
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// AuthzConfig is the static role catalog
type AuthzConfig struct {
	Roles map[string][]string `mapstructure:"roles"`
	Users map[string][]string `mapstructure:"users"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// NotificationConfig lists who hears about submissions
type NotificationConfig struct {
	Approvers []string `mapstructure:"approvers"`
}

// ExportConfig locates saved audit workbooks
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from file and environment variables. An empty
// path or a missing file leaves defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "data/portal.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Editing defaults
	v.SetDefault("editing.session_timeout", 30*time.Minute)
	v.SetDefault("editing.lock_ttl", 15*time.Minute)
	v.SetDefault("editing.autosave_interval", 30*time.Second)
	v.SetDefault("editing.max_concurrent_sessions", 5)
	v.SetDefault("editing.enforce_locks", false)

	// Approval defaults
	v.SetDefault("approval.recent_window", 7*24*time.Hour)
	v.SetDefault("approval.recent_limit", 10)
	v.SetDefault("approval.stats_window", 30*24*time.Hour)

	// Deletion defaults
	v.SetDefault("deletion.default_page_size", 20)
	v.SetDefault("deletion.max_page_size", 100)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.receive_id_type", "open_id")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "process-portal")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("export.dir", "data/exports")
	v.SetDefault("node_id", 1)
}

// bindEnvVars binds the credentials that conventionally live outside the file
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "PORTAL_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "PORTAL_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("redis.url", "PORTAL_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("tracing.endpoint", "PORTAL_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Editing.MaxConcurrentSessions < 0 {
		return fmt.Errorf("editing.max_concurrent_sessions cannot be negative")
	}
	if c.Deletion.DefaultPageSize > c.Deletion.MaxPageSize {
		return fmt.Errorf("deletion.default_page_size exceeds deletion.max_page_size")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}

	return nil
}
