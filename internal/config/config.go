// Package config loads the monitor's runtime settings from .env, an
// optional YAML file, and the environment, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultReadingPath          = "/api/dados"
	defaultReadingPeriod        = 5 * time.Second
	defaultRankingPeriod        = 30 * time.Second
	defaultRankingLimit         = 5
	defaultRequestTimeout       = 10 * time.Second
	defaultNotificationCapacity = 5
	defaultHistorySize          = 720
	defaultHTTPAddr             = ":8080"
	defaultLogLevel             = "info"
)

// Config holds runtime configuration.
type Config struct {
	BaseURL              string        `yaml:"base_url"`
	ReadingPath          string        `yaml:"reading_path"`
	ReadingPeriod        time.Duration `yaml:"reading_period"`
	RankingPeriod        time.Duration `yaml:"ranking_period"`
	RankingLimit         int           `yaml:"ranking_limit"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	NotificationCapacity int           `yaml:"notification_capacity"`
	HistorySize          int           `yaml:"history_size"`
	HTTPAddr             string        `yaml:"http_addr"`
	Log                  LogConfig     `yaml:"log"`
}

// LogConfig selects the log level and sink.
type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Pretty bool   `yaml:"pretty"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ReadingPath:          defaultReadingPath,
		ReadingPeriod:        defaultReadingPeriod,
		RankingPeriod:        defaultRankingPeriod,
		RankingLimit:         defaultRankingLimit,
		RequestTimeout:       defaultRequestTimeout,
		NotificationCapacity: defaultNotificationCapacity,
		HistorySize:          defaultHistorySize,
		HTTPAddr:             defaultHTTPAddr,
		Log:                  LogConfig{Level: defaultLogLevel},
	}
}

// Load reads configuration from .env (if present), the YAML file named by
// HYDRO_CONFIG (if set), and HYDRO_* environment variables.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("HYDRO_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := getenv("HYDRO_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := getenv("HYDRO_READING_PATH"); v != "" {
		c.ReadingPath = v
	}
	if v := getenv("HYDRO_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := getenv("HYDRO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("HYDRO_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("HYDRO_LOG_PRETTY"); v != "" {
		c.Log.Pretty = v == "1" || strings.EqualFold(v, "true")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HYDRO_READING_PERIOD", &c.ReadingPeriod},
		{"HYDRO_RANKING_PERIOD", &c.RankingPeriod},
		{"HYDRO_REQUEST_TIMEOUT", &c.RequestTimeout},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HYDRO_RANKING_LIMIT", &c.RankingLimit},
		{"HYDRO_NOTIFICATION_CAPACITY", &c.NotificationCapacity},
		{"HYDRO_HISTORY_SIZE", &c.HistorySize},
	}
	for _, n := range ints {
		v := getenv(n.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", n.key, err)
		}
		*n.dst = parsed
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("HYDRO_BASE_URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid HYDRO_BASE_URL %q", c.BaseURL)
	}
	if c.ReadingPeriod <= 0 || c.RankingPeriod <= 0 {
		return errors.New("poll periods must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("HYDRO_REQUEST_TIMEOUT must be positive")
	}
	if c.RankingLimit <= 0 {
		return errors.New("HYDRO_RANKING_LIMIT must be positive")
	}
	if c.NotificationCapacity <= 0 {
		return errors.New("HYDRO_NOTIFICATION_CAPACITY must be positive")
	}
	if c.HistorySize <= 0 {
		return errors.New("HYDRO_HISTORY_SIZE must be positive")
	}
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
