package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration. Tuning values come from an optional
// config/{ENV_NAME}.yaml; secrets and endpoints come from the environment
// (optionally via a .env file). Missing required secrets are a fatal startup
// error, never a runtime one.
type Config struct {
	ServerPort    string
	SecureCookies bool

	// Required env.
	DBConnectionString string
	SessionKey         string

	// AuthBackend is "remote" (external auth service; AuthURL/AuthKey
	// required) or "local" (users table in our own database).
	AuthBackend string
	AuthURL     string
	AuthKey     string
	AuthTimeout time.Duration

	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	PlotTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	CacheJanitorInterval  time.Duration
	CoalesceTimeout       time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	WarmCities   []string
	WarmInterval time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port          string `yaml:"port"`
		SecureCookies *bool  `yaml:"secure_cookies"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Plot struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"plot"`

	Cache struct {
		Backend         string `yaml:"backend"`
		TTL             string `yaml:"ttl"`
		JanitorInterval string `yaml:"janitor_interval"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Warming struct {
		Cities   []string `yaml:"cities"`
		Interval string   `yaml:"interval"`
	} `yaml:"warming"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

// Load reads configuration. The yaml file config/{ENV_NAME}.yaml (default
// dev) is optional; env always wins for secrets. Call from project root.
func Load() (*Config, error) {
	// .env is a development convenience; absence is normal in production.
	_ = godotenv.Load()

	var fc fileConfig
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")
	cfg.SecureCookies = true
	if fc.Server.SecureCookies != nil {
		cfg.SecureCookies = *fc.Server.SecureCookies
	}

	cfg.DBConnectionString = os.Getenv("DB_CONNECTION_STRING")
	if cfg.DBConnectionString == "" {
		return nil, fmt.Errorf("DB_CONNECTION_STRING is required")
	}
	cfg.SessionKey = os.Getenv("SESSION_KEY")
	if cfg.SessionKey == "" {
		return nil, fmt.Errorf("SESSION_KEY is required")
	}

	cfg.AuthBackend = strings.TrimSpace(strings.ToLower(os.Getenv("AUTH_BACKEND")))
	if cfg.AuthBackend == "" {
		cfg.AuthBackend = "remote"
	}
	switch cfg.AuthBackend {
	case "remote":
		cfg.AuthURL = strings.TrimRight(os.Getenv("AUTH_URL"), "/")
		cfg.AuthKey = os.Getenv("AUTH_KEY")
		if cfg.AuthURL == "" || cfg.AuthKey == "" {
			return nil, fmt.Errorf("AUTH_URL and AUTH_KEY are required with AUTH_BACKEND=remote")
		}
	case "local":
		// users table lives in our own database
	default:
		return nil, fmt.Errorf("AUTH_BACKEND must be remote or local, got %q", cfg.AuthBackend)
	}
	cfg.AuthTimeout = 10 * time.Second

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL,
		"https://archive-api.open-meteo.com/v1/archive")
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 60*time.Second)

	cfg.PlotTimeout = parseDuration(fc.Plot.Timeout, 90*time.Second)
	if cfg.PlotTimeout <= cfg.WeatherAPITimeout {
		cfg.PlotTimeout = cfg.WeatherAPITimeout + 10*time.Second
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory")))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 24*time.Hour)
	cfg.CacheJanitorInterval = parseDuration(fc.Cache.JanitorInterval, time.Hour)
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 2*time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 3*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 25
	}

	cfg.WarmCities = fc.Warming.Cities
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, 23*time.Hour)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 30*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 5*time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if len(cfg.SessionKey) < 16 {
		return fmt.Errorf("SESSION_KEY must be at least 16 characters")
	}
	return nil
}
