// Package config loads the alex CLI configuration from a .env file, an
// optional config file and OPENALEX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "OPENALEX"

// Keys, also the lower-case environment suffixes (OPENALEX_API_KEY ...).
const (
	KeyEmail             = "email"
	KeyAPIKey            = "api_key"
	KeyBaseURL           = "base_url"
	KeyContentURL        = "content_url"
	KeyUserAgent         = "user_agent"
	KeyRedisAddr         = "redis_addr"
	KeyRequestsPerSecond = "requests_per_second"
	KeyMaxRetries        = "max_retries"
	KeyRetryBackoff      = "retry_backoff"
	KeyTimeout           = "timeout"
	KeyLogLevel          = "log_level"
	KeyLogPretty         = "log_pretty"
	KeyMetricsAddr       = "metrics_addr"
)

// Options selects the files Load reads. Missing files are skipped.
type Options struct {
	EnvFile    string
	ConfigFile string
}

// Config is the resolved runtime configuration.
type Config struct {
	Email             string
	APIKey            string
	BaseURL           string
	ContentURL        string
	UserAgent         string
	RedisAddr         string
	RequestsPerSecond float64
	MaxRetries        int
	RetryBackoff      time.Duration
	Timeout           time.Duration
	LogLevel          logging.LogLevel
	LogPretty         bool
	MetricsAddr       string
}

// Load resolves the configuration. Precedence, highest first: environment,
// .env file, config file, defaults.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err == nil {
			v.SetConfigFile(opts.ConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	level, err := logging.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Email:             v.GetString(KeyEmail),
		APIKey:            v.GetString(KeyAPIKey),
		BaseURL:           v.GetString(KeyBaseURL),
		ContentURL:        v.GetString(KeyContentURL),
		UserAgent:         v.GetString(KeyUserAgent),
		RedisAddr:         v.GetString(KeyRedisAddr),
		RequestsPerSecond: v.GetFloat64(KeyRequestsPerSecond),
		MaxRetries:        v.GetInt(KeyMaxRetries),
		RetryBackoff:      v.GetDuration(KeyRetryBackoff),
		Timeout:           v.GetDuration(KeyTimeout),
		LogLevel:          level,
		LogPretty:         v.GetBool(KeyLogPretty),
		MetricsAddr:       v.GetString(KeyMetricsAddr),
	}

	if err := cfg.ClientConfig(nil).Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := client.DefaultConfig("")
	v.SetDefault(KeyEmail, "")
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyBaseURL, defaults.BaseURL)
	v.SetDefault(KeyContentURL, defaults.ContentURL)
	v.SetDefault(KeyUserAgent, defaults.UserAgent)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRequestsPerSecond, defaults.RequestsPerSecond)
	v.SetDefault(KeyMaxRetries, defaults.MaxRetries)
	v.SetDefault(KeyRetryBackoff, time.Duration(0))
	v.SetDefault(KeyTimeout, defaults.Timeout)
	v.SetDefault(KeyLogLevel, string(logging.LevelInfo))
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyMetricsAddr, "")
}

// ClientConfig maps the configuration onto a client.Config. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.Email)
	cfg.APIKey = c.APIKey
	cfg.BaseURL = c.BaseURL
	cfg.ContentURL = c.ContentURL
	cfg.UserAgent = c.UserAgent
	cfg.Redis = rdb
	cfg.RequestsPerSecond = c.RequestsPerSecond
	cfg.MaxRetries = c.MaxRetries
	cfg.InitialBackoff = c.RetryBackoff
	cfg.Timeout = c.Timeout
	return cfg
}

// LoggingConfig maps the configuration onto a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	return cfg
}

// NewRedis returns a client for RedisAddr, or nil when no address is set.
func (c *Config) NewRedis() *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.RedisAddr})
}
