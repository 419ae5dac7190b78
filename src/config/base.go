package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const envPrefix = "trustink"

// Development-only secrets. Production configs must replace them.
const (
	devJWTSecret    = "trustink-dev-secret-change-in-prod"
	devHMACSecret   = "trustink-hmac-dev-secret-change-in-prod"
	minSecretLength = 32
)

type ctxKey string

const configContextKey ctxKey = "trustink.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Config is the full service configuration. Values come from Defaults, then
// an optional YAML file, then TRUSTINK_* environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Signing   SigningConfig   `yaml:"signing"`
	Policy    PolicyConfig    `yaml:"policy"`
	Trust     TrustConfig     `yaml:"trust"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Registry  RegistryConfig  `yaml:"registry"`
	APIKeys   APIKeyConfig    `yaml:"apiKeys"   envconfig:"APIKEYS"`
	Discord   DiscordConfig   `yaml:"discord"`
	RateLimit RateLimitConfig `yaml:"rateLimit" split_words:"true"`
	Log       LogConfig       `yaml:"log"`
	PublicURL string          `yaml:"publicURL" split_words:"true"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"     split_words:"true"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"    split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"     split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
	CORSOrigins     []string      `yaml:"corsOrigins"     envconfig:"CORS_ORIGINS"`
	SSLCert         string        `yaml:"sslCert"         split_words:"true"`
	SSLKey          string        `yaml:"sslKey"          split_words:"true"`
}

// DatabaseConfig selects the gorm dialect and connection pool
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns" split_words:"true"`
	MaxIdleConns int    `yaml:"maxIdleConns" split_words:"true"`
}

// RedisConfig holds the redis URL; empty disables caching and the event stream
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds bearer-token and password settings
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwtSecret"  envconfig:"JWT_SECRET"`
	TokenTTL   time.Duration `yaml:"tokenTTL"   envconfig:"TOKEN_TTL"`
	BcryptCost int           `yaml:"bcryptCost" split_words:"true"`
}

// SigningConfig holds the certificate MAC key
type SigningConfig struct {
	HMACSecret string `yaml:"hmacSecret" envconfig:"HMAC_SECRET"`
}

// DiscordConfig enables moderation alerts in a Discord channel
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channelID" envconfig:"CHANNEL_ID"`
}

// RateLimitConfig bounds unauthenticated auth traffic per client
type RateLimitConfig struct {
	AuthPerMinute   int `yaml:"authPerMinute"   split_words:"true"`
	VerifyPerMinute int `yaml:"verifyPerMinute" split_words:"true"`
}

// LogConfig selects the zap preset and level
type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			DSN:          "trustink.db",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			JWTSecret:  devJWTSecret,
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		Signing: SigningConfig{
			HMACSecret: devHMACSecret,
		},
		Policy:   defaultPolicy(),
		Trust:    defaultTrust(),
		Oracle:   defaultOracle(),
		Registry: defaultRegistry(),
		APIKeys:  APIKeyConfig{MaxActivePerUser: 10},
		RateLimit: RateLimitConfig{
			AuthPerMinute:   20,
			VerifyPerMinute: 120,
		},
		Log:       LogConfig{Env: "development", Level: "info"},
		PublicURL: "http://localhost:3000",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and the environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth jwt secret is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth token ttl must be positive"))
	}
	if strings.TrimSpace(c.Signing.HMACSecret) == "" {
		errs = append(errs, errors.New("signing hmac secret is required"))
	}
	if err := c.Policy.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Trust.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Oracle.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Registry.MaxPageSize < 1 || c.Registry.DefaultPageSize < 1 ||
		c.Registry.DefaultPageSize > c.Registry.MaxPageSize {
		errs = append(errs, errors.New("registry page sizes must satisfy 1 <= default <= max"))
	}
	if c.Log.Env == "production" {
		errs = append(errs, productionSecret("auth jwt secret", c.Auth.JWTSecret, devJWTSecret)...)
		errs = append(errs, productionSecret("signing hmac secret", c.Signing.HMACSecret, devHMACSecret)...)
	}
	if (c.Server.SSLCert == "") != (c.Server.SSLKey == "") {
		errs = append(errs, errors.New("ssl cert and key must be set together"))
	}
	return errors.Join(errs...)
}

// LogSummary logs the effective configuration with secrets redacted.
func (c *Config) LogSummary(logger *zap.Logger) {
	logger.Info("Application configuration",
		zap.String("addr", c.Server.Addr),
		zap.Bool("tls", c.Server.SSLCert != ""),
		zap.String("database_driver", c.Database.Driver),
		zap.Bool("redis", c.Redis.URL != ""),
		zap.Bool("discord", c.Discord.Token != "" && c.Discord.ChannelID != ""),
		zap.String("oracle_provider", c.Oracle.Provider),
		zap.Duration("oracle_timeout", c.Oracle.Timeout),
		zap.Float64("auto_approve_min", c.Policy.AutoApproveMin),
		zap.Float64("flag_below", c.Policy.FlagBelow),
		zap.String("min_trust_level", c.Policy.MinTrustLevel),
		zap.Bool("trust_auto_adjust", c.Trust.AutoAdjust),
		zap.String("jwt_secret", "[REDACTED]"),
		zap.String("hmac_secret", "[REDACTED]"),
	)
}

func productionSecret(name, value, dev string) []error {
	var errs []error
	if value == dev {
		errs = append(errs, fmt.Errorf("%s must be set in production", name))
	}
	if len(value) < minSecretLength {
		errs = append(errs, fmt.Errorf("%s must be at least %d bytes in production", name, minSecretLength))
	}
	return errs
}
