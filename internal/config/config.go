// Package config loads tradingd's configuration from a YAML file with
// environment-variable overrides, grounded on the teacher's
// internal/config/config.go and viper wiring.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Core      CoreConfig      `mapstructure:"core"`
	Settle    SettleConfig    `mapstructure:"settlement"`
	TickSrc   TickSourceConfig `mapstructure:"tick_source"`
	TickCache TickCacheConfig `mapstructure:"tick_cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

// AuthConfig holds JWT authentication configuration.
type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Database    string        `mapstructure:"database"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxConnLife time.Duration `mapstructure:"max_conn_life"`
}

// RedisConfig holds Redis connection settings for the tick cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CoreConfig holds the Event Loop's tunables, mirroring
// internal/core/loop.DefaultConfig.
type CoreConfig struct {
	EventChannelCapacity int           `mapstructure:"event_channel_capacity"`
	BusyThreshold        int           `mapstructure:"busy_threshold"`
	SlowEventThreshold   time.Duration `mapstructure:"slow_event_threshold"`
	ShutdownDrainTimeout time.Duration `mapstructure:"shutdown_drain_timeout"`
}

// SettleConfig holds Settlement's tunables, mirroring
// internal/core/settlement.DefaultConfig.
type SettleConfig struct {
	CommissionRate              string `mapstructure:"commission_rate"`
	ReservationReferencePrice   string `mapstructure:"reservation_reference_price_policy"`
	MaxPersistRetries           int    `mapstructure:"max_persist_retries"`
}

// TickSourceConfig holds the simulator's tunables, mirroring
// internal/ticksource.DefaultConfig.
type TickSourceConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Seed         int64         `mapstructure:"seed"`
}

// TickCacheConfig selects and configures the Tick Cache implementation.
type TickCacheConfig struct {
	Backend string        `mapstructure:"backend"` // "redis" or "memory"
	TTL     time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds zerolog's output settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from configPath and overlays TRADINGD_*
// environment variables on top of it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	v.SetEnvPrefix("TRADINGD")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if v.IsSet("CORS_ALLOWED_ORIGINS") {
		cfg.Server.CORSAllowedOrigins = v.GetString("CORS_ALLOWED_ORIGINS")
	}
	if v.IsSet("JWT_SECRET") {
		cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	}
	if v.IsSet("DB_HOST") {
		cfg.Database.Host = v.GetString("DB_HOST")
	}
	if v.IsSet("DB_PORT") {
		cfg.Database.Port = v.GetInt("DB_PORT")
	}
	if v.IsSet("DB_USER") {
		cfg.Database.User = v.GetString("DB_USER")
	}
	if v.IsSet("DB_PASSWORD") {
		cfg.Database.Password = v.GetString("DB_PASSWORD")
	}
	if v.IsSet("DB_NAME") {
		cfg.Database.Database = v.GetString("DB_NAME")
	}
	if v.IsSet("REDIS_HOST") {
		cfg.Redis.Host = v.GetString("REDIS_HOST")
	}
	if v.IsSet("REDIS_PORT") {
		cfg.Redis.Port = v.GetInt("REDIS_PORT")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tradingd")
	v.SetDefault("database.password", "tradingd")
	v.SetDefault("database.database", "tradingd")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_life", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("core.event_channel_capacity", 4096)
	v.SetDefault("core.busy_threshold", 3800)
	v.SetDefault("core.slow_event_threshold", time.Millisecond)
	v.SetDefault("core.shutdown_drain_timeout", 5*time.Second)

	v.SetDefault("settlement.commission_rate", "0.001")
	v.SetDefault("settlement.reservation_reference_price_policy", "lastKnownTick")
	v.SetDefault("settlement.max_persist_retries", 3)

	v.SetDefault("tick_source.tick_interval", 5*time.Millisecond)
	v.SetDefault("tick_source.seed", int64(1))

	v.SetDefault("tick_cache.backend", "memory")
	v.SetDefault("tick_cache.ttl", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// RedisAddr returns the Redis address in host:port form.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
