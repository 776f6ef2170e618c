package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/weft/internal/deploy"
	"github.com/conduit-lang/weft/internal/ratelimit"
	"github.com/conduit-lang/weft/internal/session"
)

// FileName is the configuration file name without extension
const FileName = "weft"

// EnvPrefix prefixes environment overrides, e.g. WEFT_SERVER_PORT
const EnvPrefix = "WEFT"

// Config represents the weft configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Deploy  DeployConfig  `mapstructure:"deploy"`
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	// RateLimit throttles requests per client address
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// AppConfig names the application
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// DeployConfig controls where handler sources are read and generated code
// is written
type DeployConfig struct {
	Source string `mapstructure:"source"`
	Output string `mapstructure:"output"`
	Module string `mapstructure:"module"`
	Clean  bool   `mapstructure:"clean"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	StaticDir       string        `mapstructure:"static_dir"`
	ViewsDir        string        `mapstructure:"views_dir"`
	ReloadViews     bool          `mapstructure:"reload_views"`
	FileDirs        []string      `mapstructure:"file_dirs"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ProfilePath exposes pprof under this prefix; empty keeps it off
	ProfilePath string `mapstructure:"profile_path"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig represents session configuration
type SessionConfig struct {
	Store         string         `mapstructure:"store"`
	TTL           time.Duration  `mapstructure:"ttl"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	CookieName    string         `mapstructure:"cookie_name"`
	Secure        bool           `mapstructure:"secure"`
	SameSite      string         `mapstructure:"same_site"`
	Redis         RedisConfig    `mapstructure:"redis"`
	Database      DatabaseConfig `mapstructure:"database"`
}

// RedisConfig configures the redis session store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig configures the SQL session store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig configures request throttling
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Store    string        `mapstructure:"store"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	FailOpen bool          `mapstructure:"fail_open"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

// Load loads weft.yml from the working directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads weft.yml (or weft.yaml) from dir. A missing file leaves
// the defaults in place.
func LoadFrom(dir string) (*Config, error) {
	v := newViper()
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFile loads an explicit configuration file
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	opts := deploy.DefaultOptions()
	sess := session.DefaultConfig()
	redis := session.DefaultRedisConfig("localhost:6379")

	v.SetDefault("app.name", "weft")

	v.SetDefault("deploy.source", opts.SourceDir)
	v.SetDefault("deploy.output", opts.OutputDir)
	v.SetDefault("deploy.module", "")
	v.SetDefault("deploy.clean", opts.Clean)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.static_dir", "public")
	v.SetDefault("server.views_dir", "views")
	v.SetDefault("server.reload_views", false)
	v.SetDefault("server.file_dirs", []string{"public"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.profile_path", "")

	v.SetDefault("session.store", session.StoreMemory)
	v.SetDefault("session.ttl", sess.TTL)
	v.SetDefault("session.sweep_interval", session.DefaultSweepInterval)
	v.SetDefault("session.cookie_name", sess.CookieName)
	v.SetDefault("session.secure", sess.Secure)
	v.SetDefault("session.same_site", sess.SameSite)
	v.SetDefault("session.redis.addr", redis.Addr)
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", redis.DB)
	v.SetDefault("session.redis.pool_size", redis.PoolSize)
	v.SetDefault("session.redis.prefix", redis.KeyPrefix)
	v.SetDefault("session.database.driver", "sqlite3")
	v.SetDefault("session.database.dsn", "")
	v.SetDefault("session.database.table", session.DefaultTableName)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	limits := ratelimit.DefaultConfig()
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.store", limits.Store)
	v.SetDefault("ratelimit.requests", limits.Requests)
	v.SetDefault("ratelimit.window", limits.Window)
	v.SetDefault("ratelimit.fail_open", true)
	v.SetDefault("ratelimit.redis.addr", limits.RedisAddr)
	v.SetDefault("ratelimit.redis.password", "")
	v.SetDefault("ratelimit.redis.db", 0)
	v.SetDefault("ratelimit.redis.prefix", limits.KeyPrefix)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// DeployOptions returns the loader options for this configuration
func (c *Config) DeployOptions() deploy.Options {
	return deploy.Options{
		SourceDir:  c.Deploy.Source,
		OutputDir:  c.Deploy.Output,
		ModulePath: c.Deploy.Module,
		Clean:      c.Deploy.Clean,
	}
}

// SessionManagerConfig returns the cookie settings for the session manager
func (c *Config) SessionManagerConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.CookieName = c.Session.CookieName
	cfg.TTL = c.Session.TTL
	cfg.Secure = c.Session.Secure
	cfg.SameSite = c.Session.SameSite
	return cfg
}

// SessionStoreConfig returns the session backend settings
func (c *Config) SessionStoreConfig() session.StoreConfig {
	cfg := session.StoreConfig{
		Kind:          c.Session.Store,
		SweepInterval: c.Session.SweepInterval,
		Redis: session.RedisConfig{
			Addr:      c.Session.Redis.Addr,
			Password:  c.Session.Redis.Password,
			DB:        c.Session.Redis.DB,
			PoolSize:  c.Session.Redis.PoolSize,
			KeyPrefix: c.Session.Redis.Prefix,
		},
	}
	cfg.Database.Driver = c.Session.Database.Driver
	cfg.Database.DSN = c.Session.Database.DSN
	cfg.Database.Table = c.Session.Database.Table
	return cfg
}

// RateLimiterConfig returns the limiter settings
func (c *Config) RateLimiterConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.Store = c.RateLimit.Store
	cfg.Requests = c.RateLimit.Requests
	cfg.Window = c.RateLimit.Window
	cfg.RedisAddr = c.RateLimit.Redis.Addr
	cfg.RedisPassword = c.RateLimit.Redis.Password
	cfg.RedisDB = c.RateLimit.Redis.DB
	cfg.KeyPrefix = c.RateLimit.Redis.Prefix
	return cfg
}

// InProject checks if dir holds a weft project: a config file or the
// handler source directory
func InProject(dir string) bool {
	for _, name := range []string{FileName + ".yml", FileName + ".yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	info, err := os.Stat(filepath.Join(dir, deploy.DefaultOptions().SourceDir))
	return err == nil && info.IsDir()
}

// GetProjectRoot walks up from the working directory to the nearest weft
// project
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if InProject(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a weft project (no %s.yml found)", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	var errs []error

	if cfg.Deploy.Source == "" {
		errs = append(errs, errors.New("deploy.source must not be empty"))
	}
	if cfg.Deploy.Output == "" {
		errs = append(errs, errors.New("deploy.output must not be empty"))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port))
	}

	switch cfg.Session.Store {
	case session.StoreMemory, session.StoreRedis:
	case session.StoreDatabase:
		if cfg.Session.Database.DSN == "" {
			errs = append(errs, errors.New("session.database.dsn is required for the database store"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store must be one of memory, redis, database, got: %s", cfg.Session.Store))
	}
	if cfg.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive, got: %s", cfg.Session.TTL))
	}
	switch strings.ToLower(cfg.Session.SameSite) {
	case "", "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("session.same_site must be lax, strict or none, got: %s", cfg.Session.SameSite))
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got: %s", cfg.Log.Format))
	}

	if cfg.Server.ProfilePath != "" && !strings.HasPrefix(cfg.Server.ProfilePath, "/") {
		errs = append(errs, fmt.Errorf("server.profile_path must start with '/', got: %s", cfg.Server.ProfilePath))
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with '/', got: %s", cfg.Metrics.Path))
	}

	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Store {
		case ratelimit.StoreMemory, ratelimit.StoreRedis:
		default:
			errs = append(errs, fmt.Errorf("ratelimit.store must be memory or redis, got: %s", cfg.RateLimit.Store))
		}
		if cfg.RateLimit.Requests <= 0 {
			errs = append(errs, fmt.Errorf("ratelimit.requests must be positive, got: %d", cfg.RateLimit.Requests))
		}
		if cfg.RateLimit.Window <= 0 {
			errs = append(errs, fmt.Errorf("ratelimit.window must be positive, got: %s", cfg.RateLimit.Window))
		}
	}

	return errors.Join(errs...)
}
