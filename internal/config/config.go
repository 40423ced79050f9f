package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Batch       BatchConfig       `mapstructure:"batch"`
}

// ServerConfig configures the operator HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig configures the persistence layer.
type DatabaseConfig struct {
	// Type selects the dialect: sqlite, postgres, or sqlserver.
	Type string `mapstructure:"type"`
	// Path is the database file for sqlite.
	Path string `mapstructure:"path"`
	// DSN is the connection string for server databases.
	DSN string `mapstructure:"dsn"`

	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
}

// LoggingConfig configures the slog handler stack.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`  // debug, info, warn, error
	Format    string `mapstructure:"format"` // text or json
	File      string `mapstructure:"file"`   // optional rotating log file
	AddSource bool   `mapstructure:"add_source"`
}

// SourceConfig describes the platform repositories are migrated from.
type SourceConfig struct {
	// Type is github, ghes, or azuredevops.
	Type    string `mapstructure:"type"`
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`

	// Organizations to discover for github/ghes sources.
	Organizations []string `mapstructure:"organizations"`

	// ADO organization URLs, e.g. https://dev.azure.com/acme. Only used when
	// Type is azuredevops.
	ADOOrganizations []string `mapstructure:"ado_organizations"`

	// Optional GitHub App credentials. When set they take precedence over
	// Token for the source client.
	AppID             int64  `mapstructure:"app_id"`
	AppPrivateKey     string `mapstructure:"app_private_key"`
	AppInstallationID int64  `mapstructure:"app_installation_id"`
}

// DestinationConfig describes the GitHub side being migrated to.
type DestinationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// DiscoveryConfig tunes the discovery pipeline.
type DiscoveryConfig struct {
	Workers      int    `mapstructure:"workers"`
	TempDir      string `mapstructure:"temp_dir"`
	GitSizerPath string `mapstructure:"git_sizer_path"`

	// CacheFallback governs profiling a repository when its org caches were
	// never warmed: "absent" reports cache-backed features as absent and marks
	// them degraded, "direct" issues per-repository queries instead.
	CacheFallback string `mapstructure:"cache_fallback"`
}

// WorkerConfig tunes the migration worker.
type WorkerConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	Workers             int `mapstructure:"workers"`
}

// BatchConfig tunes batch reconciliation and scheduling.
type BatchConfig struct {
	StatusIntervalSeconds    int `mapstructure:"status_interval_seconds"`
	SchedulerIntervalSeconds int `mapstructure:"scheduler_interval_seconds"`
}

// Load reads config.yaml (from . or ./configs), applies PLANNER_* environment
// overrides, and validates the result. A missing config file is fine as long
// as the environment provides the required values.
func Load() (*Config, error) {
	// Pull .env into the process environment before viper reads it.
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("PLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/planner.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_seconds", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("source.type", "github")
	v.SetDefault("source.base_url", "https://github.com")
	v.SetDefault("destination.base_url", "https://github.com")

	v.SetDefault("discovery.workers", 5)
	v.SetDefault("discovery.git_sizer_path", "git-sizer")
	v.SetDefault("discovery.cache_fallback", "direct")

	v.SetDefault("worker.poll_interval_seconds", 30)
	v.SetDefault("worker.workers", 5)

	v.SetDefault("batch.status_interval_seconds", 30)
	v.SetDefault("batch.scheduler_interval_seconds", 60)
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "github", "ghes", "azuredevops":
	default:
		return fmt.Errorf("source.type must be github, ghes, or azuredevops, got %q", c.Source.Type)
	}

	if c.Source.Token == "" && c.Source.AppID == 0 {
		return fmt.Errorf("source.token (or source.app_id credentials) is required")
	}
	if c.Source.AppID != 0 && c.Source.AppPrivateKey == "" {
		return fmt.Errorf("source.app_private_key is required when source.app_id is set")
	}
	if c.Source.Type == "azuredevops" && len(c.Source.ADOOrganizations) == 0 {
		return fmt.Errorf("source.ado_organizations is required for azuredevops sources")
	}

	if c.Destination.Token == "" {
		return fmt.Errorf("destination.token is required")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "sqlserver":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Type)
		}
	default:
		return fmt.Errorf("database.type must be sqlite, postgres, or sqlserver, got %q", c.Database.Type)
	}

	switch c.Discovery.CacheFallback {
	case "absent", "direct":
	default:
		return fmt.Errorf("discovery.cache_fallback must be absent or direct, got %q", c.Discovery.CacheFallback)
	}

	return nil
}
