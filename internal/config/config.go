package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `json:"server" toml:"server"`
	Database  DatabaseConfig  `json:"database" toml:"database"`
	Redis     RedisConfig     `json:"redis" toml:"redis"`
	Cache     CacheConfig     `json:"cache" toml:"cache"`
	RateLimit RateLimitConfig `json:"rate_limit" toml:"rate_limit"`
	CORS      CORSConfig      `json:"cors" toml:"cors"`
	Log       LogConfig       `json:"log" toml:"log"`
}

type ServerConfig struct {
	Host            string        `json:"host" toml:"host"`
	Port            string        `json:"port" toml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" toml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" toml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" toml:"shutdown_timeout"`
	Environment     string        `json:"environment" toml:"environment"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver" toml:"driver"`
	Path            string        `json:"path" toml:"path"`
	Host            string        `json:"host" toml:"host"`
	Port            string        `json:"port" toml:"port"`
	User            string        `json:"user" toml:"user"`
	Password        string        `json:"password" toml:"password"`
	Name            string        `json:"name" toml:"name"`
	SSLMode         string        `json:"ssl_mode" toml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" toml:"conn_max_idle_time"`
	Seed            bool          `json:"seed" toml:"seed"`
}

type RedisConfig struct {
	Enabled      bool          `json:"enabled" toml:"enabled"`
	Host         string        `json:"host" toml:"host"`
	Port         string        `json:"port" toml:"port"`
	Password     string        `json:"password" toml:"password"`
	DB           int           `json:"db" toml:"db"`
	Prefix       string        `json:"prefix" toml:"prefix"`
	PoolSize     int           `json:"pool_size" toml:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" toml:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries" toml:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" toml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" toml:"write_timeout"`
}

// CacheConfig covers the task cache layered over Redis.
type CacheConfig struct {
	TaskTTL              time.Duration `json:"task_ttl" toml:"task_ttl"`
	ListTTL              time.Duration `json:"list_ttl" toml:"list_ttl"`
	StatsTTL             time.Duration `json:"stats_ttl" toml:"stats_ttl"`
	L1TTL                time.Duration `json:"l1_ttl" toml:"l1_ttl"`
	L1MaxEntries         int           `json:"l1_max_entries" toml:"l1_max_entries"`
	BreakerMaxFailures   int           `json:"breaker_max_failures" toml:"breaker_max_failures"`
	BreakerTimeout       time.Duration `json:"breaker_timeout" toml:"breaker_timeout"`
	BreakerHalfOpenCalls int           `json:"breaker_half_open_calls" toml:"breaker_half_open_calls"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled" toml:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute" toml:"requests_per_minute"`
	BurstSize       int           `json:"burst_size" toml:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval" toml:"cleanup_interval"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `json:"allowed_origins" toml:"allowed_origins"`
	AllowCredentials bool          `json:"allow_credentials" toml:"allow_credentials"`
	MaxAge           time.Duration `json:"max_age" toml:"max_age"`
}

type LogConfig struct {
	Level  string `json:"level" toml:"level"`
	Format string `json:"format" toml:"format"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns the development configuration: a local SQLite file, no
// Redis and seeded sample tasks.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "task_manager.db",
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			Name:            "task_manager",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
			Seed:            true,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         "6379",
			Prefix:       "taskmanager:",
			PoolSize:     10,
			MinIdleConns: 5,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Cache: CacheConfig{
			TaskTTL:              5 * time.Minute,
			ListTTL:              time.Minute,
			StatsTTL:             30 * time.Second,
			L1TTL:                30 * time.Second,
			L1MaxEntries:         1000,
			BreakerMaxFailures:   5,
			BreakerTimeout:       30 * time.Second,
			BreakerHalfOpenCalls: 3,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			RequestsPerMin:  100,
			BurstSize:       10,
			CleanupInterval: 10 * time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			MaxAge:         12 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig layers the optional TOML file named by CONFIG_FILE over the
// defaults, then applies environment overrides.
func LoadConfig() (*Config, error) {
	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("HOST", s.Host)
	s.Port = getEnv("PORT", s.Port)
	s.ReadTimeout = getEnvAsDuration("READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvAsDuration("IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.Environment = getEnv("ENVIRONMENT", s.Environment)

	d := &c.Database
	d.Driver = strings.ToLower(getEnv("DB_DRIVER", d.Driver))
	d.Path = getEnv("DB_PATH", d.Path)
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnv("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Name = getEnv("DB_NAME", d.Name)
	d.SSLMode = getEnv("DB_SSL_MODE", d.SSLMode)
	d.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.ConnMaxIdleTime = getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", d.ConnMaxIdleTime)
	d.Seed = getEnvAsBool("DB_SEED", d.Seed)

	r := &c.Redis
	r.Enabled = getEnvAsBool("REDIS_ENABLED", r.Enabled)
	r.Host = getEnv("REDIS_HOST", r.Host)
	r.Port = getEnv("REDIS_PORT", r.Port)
	r.Password = getEnv("REDIS_PASSWORD", r.Password)
	r.DB = getEnvAsInt("REDIS_DB", r.DB)
	r.Prefix = getEnv("REDIS_PREFIX", r.Prefix)
	r.PoolSize = getEnvAsInt("REDIS_POOL_SIZE", r.PoolSize)
	r.MinIdleConns = getEnvAsInt("REDIS_MIN_IDLE_CONNS", r.MinIdleConns)
	r.MaxRetries = getEnvAsInt("REDIS_MAX_RETRIES", r.MaxRetries)
	r.DialTimeout = getEnvAsDuration("REDIS_DIAL_TIMEOUT", r.DialTimeout)
	r.ReadTimeout = getEnvAsDuration("REDIS_READ_TIMEOUT", r.ReadTimeout)
	r.WriteTimeout = getEnvAsDuration("REDIS_WRITE_TIMEOUT", r.WriteTimeout)

	ca := &c.Cache
	ca.TaskTTL = getEnvAsDuration("CACHE_TASK_TTL", ca.TaskTTL)
	ca.ListTTL = getEnvAsDuration("CACHE_LIST_TTL", ca.ListTTL)
	ca.StatsTTL = getEnvAsDuration("CACHE_STATS_TTL", ca.StatsTTL)
	ca.L1TTL = getEnvAsDuration("CACHE_L1_TTL", ca.L1TTL)
	ca.L1MaxEntries = getEnvAsInt("CACHE_L1_MAX_ENTRIES", ca.L1MaxEntries)
	ca.BreakerMaxFailures = getEnvAsInt("CACHE_BREAKER_MAX_FAILURES", ca.BreakerMaxFailures)
	ca.BreakerTimeout = getEnvAsDuration("CACHE_BREAKER_TIMEOUT", ca.BreakerTimeout)
	ca.BreakerHalfOpenCalls = getEnvAsInt("CACHE_BREAKER_HALF_OPEN_CALLS", ca.BreakerHalfOpenCalls)

	rl := &c.RateLimit
	rl.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", rl.Enabled)
	rl.RequestsPerMin = getEnvAsInt("RATE_LIMIT_RPM", rl.RequestsPerMin)
	rl.BurstSize = getEnvAsInt("RATE_LIMIT_BURST", rl.BurstSize)
	rl.CleanupInterval = getEnvAsDuration("RATE_LIMIT_CLEANUP", rl.CleanupInterval)

	co := &c.CORS
	co.AllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", co.AllowedOrigins)
	co.AllowCredentials = getEnvAsBool("CORS_ALLOW_CREDENTIALS", co.AllowCredentials)
	co.MaxAge = getEnvAsDuration("CORS_MAX_AGE", co.MaxAge)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Password == "" && c.IsProduction() {
			return errors.New("database password is required in production")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin <= 0 {
		return errors.New("rate limit requests per minute must be positive")
	}
	return nil
}

// GetDatabaseDSN returns the file path for sqlite and a keyword/value DSN for
// postgres.
func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == DriverSQLite {
		return c.Database.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated list, dropping empty items.
func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
