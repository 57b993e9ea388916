package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Redis      RedisConfig      `yaml:"redis"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Notify     NotifyConfig     `yaml:"notify"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	BasePath        string        `yaml:"base_path"` // routes are also mounted here, e.g. "/api"
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	AdminOnly bool          `yaml:"admin_only"` // back-office routes require the admin role
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"` // empty means "*"
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"` // per client per window; 0 disables
	Window   time.Duration `yaml:"window"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"` // empty disables the settings cache
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type EncryptionConfig struct {
	Key string `yaml:"key"` // 32 bytes, hex or base64
}

type NotifyConfig struct {
	Enabled     bool          `yaml:"enabled"`
	AckProspect bool          `yaml:"ack_prospect"`
	QueueSize   int           `yaml:"queue_size"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Auth: AuthConfig{
			TokenTTL:  7 * 24 * time.Hour,
			AdminOnly: true,
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
		},
		Redis: RedisConfig{
			Prefix: "leadline:",
			TTL:    5 * time.Minute,
		},
		Notify: NotifyConfig{
			Enabled:     true,
			QueueSize:   100,
			SendTimeout: 15 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "leadline",
			Environment: "development",
			SampleRatio: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

// firstEnv returns the first non-empty variable among names.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("LEADLINE_DATABASE_URL", "DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := firstEnv("LEADLINE_JWT_SECRET", "JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := firstEnv("LEADLINE_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LEADLINE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LEADLINE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LEADLINE_ENCRYPTION_KEY"); v != "" {
		cfg.Encryption.Key = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("LEADLINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server read and write timeouts must be positive"))
	}
	if c.Server.BasePath != "" && (!strings.HasPrefix(c.Server.BasePath, "/") || c.Server.BasePath == "/") {
		errs = append(errs, fmt.Errorf("server.base_path must start with / and not be /, got %q", c.Server.BasePath))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required (set LEADLINE_DATABASE_URL or DATABASE_URL)"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required (set LEADLINE_JWT_SECRET or JWT_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, errors.New("rate_limit.requests must not be negative"))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		errs = append(errs, errors.New("redis.ttl must be positive"))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) MigrationsSource() string {
	return "file://migrations"
}

func (c *Config) DatabaseURLForMigrate() string {
	url := c.Database.URL
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}
