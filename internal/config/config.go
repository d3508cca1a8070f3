// Package config loads the immutable process configuration.
//
// Values come, in increasing priority, from built-in defaults, an optional
// YAML file, a .env file and YTC_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ytget/yt-converter/internal/logging"
	"github.com/ytget/yt-converter/internal/store"
	"github.com/ytget/yt-converter/internal/tracing"
)

// EnvPrefix prefixes every environment override, e.g. YTC_SERVER_ADDR
const EnvPrefix = "YTC"

// Setting keys
const (
	KeyServerAddr          = "server.addr"
	KeyReadHeaderTimeout   = "server.read_header_timeout"
	KeyShutdownTimeout     = "server.shutdown_timeout"
	KeyCORSOrigin          = "server.cors_origin"
	KeyRateLimitRPS        = "server.rate_limit_rps"
	KeyRateLimitBurst      = "server.rate_limit_burst"
	KeyDownloadsRoot       = "downloads.root"
	KeyMaxParallel         = "downloads.max_parallel"
	KeyYtDlpPath           = "extractor.ytdlp_path"
	KeyFFmpegPath          = "extractor.ffmpeg_path"
	KeyMaxAttempts         = "extractor.max_attempts"
	KeyRetryDelay          = "extractor.retry_delay"
	KeyExtractorTimeout    = "extractor.timeout"
	KeyRetentionTTL        = "retention.ttl"
	KeyRetentionInterval   = "retention.interval"
	KeySweepOnRequest      = "retention.sweep_on_request"
	KeyRetainOnError       = "retention.retain_on_error"
	KeyStoreBackend        = "store.backend"
	KeyRedisURL            = "store.redis_url"
	KeyMetricsEnabled      = "metrics.enabled"
	KeyMetricsPath         = "metrics.path"
	KeyTracingEnabled      = "tracing.enabled"
	KeyTracingExporter     = "tracing.exporter"
	KeyTracingOTLPEndpoint = "tracing.otlp_endpoint"
	KeyTracingSampleRate   = "tracing.sample_rate"
	KeyTracingServiceName  = "tracing.service_name"
	KeyLogLevel            = "log.level"
	KeyLogFormat           = "log.format"
)

// Config is built once at startup and never mutated.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Retention RetentionConfig `mapstructure:"retention"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigin        string        `mapstructure:"cors_origin"`
	// RateLimitRPS limits conversion requests per second; zero disables it
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type DownloadsConfig struct {
	Root        string `mapstructure:"root"`
	MaxParallel int    `mapstructure:"max_parallel"`
}

type ExtractorConfig struct {
	YtDlpPath   string        `mapstructure:"ytdlp_path"`
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RetentionConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	Interval       time.Duration `mapstructure:"interval"`
	SweepOnRequest bool          `mapstructure:"sweep_on_request"`
	RetainOnError  bool          `mapstructure:"retain_on_error"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis_url"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			CORSOrigin:        "*",
			RateLimitRPS:      2,
			RateLimitBurst:    5,
		},
		Downloads: DownloadsConfig{
			Root:        "downloads",
			MaxParallel: 2,
		},
		Extractor: ExtractorConfig{
			MaxAttempts: 3,
			RetryDelay:  time.Second,
			Timeout:     10 * time.Minute,
		},
		Retention: RetentionConfig{
			TTL:            time.Hour,
			Interval:       time.Minute,
			SweepOnRequest: true,
		},
		Store: StoreConfig{
			Backend:  store.BackendMemory,
			RedisURL: "redis://localhost:6379/0",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:     tracing.ExporterStdout,
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "yt-converter",
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault(KeyServerAddr, d.Server.Addr)
	v.SetDefault(KeyReadHeaderTimeout, d.Server.ReadHeaderTimeout)
	v.SetDefault(KeyShutdownTimeout, d.Server.ShutdownTimeout)
	v.SetDefault(KeyCORSOrigin, d.Server.CORSOrigin)
	v.SetDefault(KeyRateLimitRPS, d.Server.RateLimitRPS)
	v.SetDefault(KeyRateLimitBurst, d.Server.RateLimitBurst)
	v.SetDefault(KeyDownloadsRoot, d.Downloads.Root)
	v.SetDefault(KeyMaxParallel, d.Downloads.MaxParallel)
	v.SetDefault(KeyYtDlpPath, d.Extractor.YtDlpPath)
	v.SetDefault(KeyFFmpegPath, d.Extractor.FFmpegPath)
	v.SetDefault(KeyMaxAttempts, d.Extractor.MaxAttempts)
	v.SetDefault(KeyRetryDelay, d.Extractor.RetryDelay)
	v.SetDefault(KeyExtractorTimeout, d.Extractor.Timeout)
	v.SetDefault(KeyRetentionTTL, d.Retention.TTL)
	v.SetDefault(KeyRetentionInterval, d.Retention.Interval)
	v.SetDefault(KeySweepOnRequest, d.Retention.SweepOnRequest)
	v.SetDefault(KeyRetainOnError, d.Retention.RetainOnError)
	v.SetDefault(KeyStoreBackend, d.Store.Backend)
	v.SetDefault(KeyRedisURL, d.Store.RedisURL)
	v.SetDefault(KeyMetricsEnabled, d.Metrics.Enabled)
	v.SetDefault(KeyMetricsPath, d.Metrics.Path)
	v.SetDefault(KeyTracingEnabled, d.Tracing.Enabled)
	v.SetDefault(KeyTracingExporter, d.Tracing.Exporter)
	v.SetDefault(KeyTracingOTLPEndpoint, d.Tracing.OTLPEndpoint)
	v.SetDefault(KeyTracingSampleRate, d.Tracing.SampleRate)
	v.SetDefault(KeyTracingServiceName, d.Tracing.ServiceName)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configFile (optional) and the environment into a Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, errors.New("server.rate_limit_rps must not be negative"))
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, errors.New("server.rate_limit_burst must be at least 1"))
	}
	if c.Downloads.Root == "" {
		errs = append(errs, errors.New("downloads.root is required"))
	}
	if c.Downloads.MaxParallel < 1 {
		errs = append(errs, errors.New("downloads.max_parallel must be at least 1"))
	}
	if c.Extractor.MaxAttempts < 1 {
		errs = append(errs, errors.New("extractor.max_attempts must be at least 1"))
	}
	if c.Extractor.RetryDelay < 0 {
		errs = append(errs, errors.New("extractor.retry_delay must not be negative"))
	}
	if c.Retention.TTL <= 0 {
		errs = append(errs, errors.New("retention.ttl must be positive"))
	}
	if c.Retention.Interval < 0 {
		errs = append(errs, errors.New("retention.interval must not be negative"))
	}
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not supported", c.Store.Backend))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, errors.New("tracing.sample_rate must be within [0, 1]"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
