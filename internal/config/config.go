package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/nurse-directory/internal/validation"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string

	APIKey string

	DataPath     string
	DatasetCache bool
	SortBy       string // "score" or "average_rating"

	CityMinLength      int
	CityMaxLength      int
	CityRequiredScript string

	CityAPIEnabled                 bool
	CityAPIURL                     string
	CityAPIKey                     string
	CityAPITimeout                 time.Duration
	CityAPICacheTTL                time.Duration
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend          string // "in_memory", "memcached" or "redis"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisTimeout          time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration

	HealthWindow      time.Duration
	DegradedErrorPct  int
	OverloadDeniedPct int

	AllowedOrigins       []string
	ExposeInternalErrors bool

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	Dataset struct {
		Path  string `yaml:"path"`
		Cache bool   `yaml:"cache"`
	} `yaml:"dataset"`

	Lookup struct {
		SortBy string `yaml:"sort_by"`
	} `yaml:"lookup"`

	Validation struct {
		MinLength      int    `yaml:"min_length"`
		MaxLength      int    `yaml:"max_length"`
		RequiredScript string `yaml:"required_script"`
	} `yaml:"validation"`

	CityAPI struct {
		Enabled        bool   `yaml:"enabled"`
		URL            string `yaml:"url"`
		Timeout        string `yaml:"timeout"`
		CacheTTL       string `yaml:"cache_ttl"`
		CircuitBreaker struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"city_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout      string `yaml:"timeout"`
		DrainTimeout string `yaml:"drain_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window            string `yaml:"window"`
		DegradedErrorPct  int    `yaml:"degraded_error_pct"`
		OverloadDeniedPct int    `yaml:"overload_denied_pct"`
	} `yaml:"health"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Errors struct {
		ExposeInternal *bool `yaml:"expose_internal"`
	} `yaml:"errors"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	APIKey        string `yaml:"api_key"`
	CityAPIKey    string `yaml:"city_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads .env (if present), config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml, then applies environment overrides. The access key
// comes from API_KEY or secrets api_key and is required. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Server.LogLevel, "info")

	cfg.APIKey = firstNonEmpty(os.Getenv("API_KEY"), sec.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY required (set env or config/secrets.yaml api_key)")
	}

	cfg.DataPath = firstNonEmpty(os.Getenv("DATA_PATH"), fc.Dataset.Path, "nurse_data.json")
	cfg.DatasetCache = fc.Dataset.Cache
	cfg.SortBy = strings.ToLower(firstNonEmpty(fc.Lookup.SortBy, "score"))

	cfg.CityMinLength = fc.Validation.MinLength
	if cfg.CityMinLength <= 0 {
		cfg.CityMinLength = 1
	}
	cfg.CityMaxLength = fc.Validation.MaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}
	cfg.CityRequiredScript = strings.ToLower(strings.TrimSpace(fc.Validation.RequiredScript))

	cfg.CityAPIURL = firstNonEmpty(os.Getenv("CITY_API_URL"), fc.CityAPI.URL)
	cfg.CityAPIEnabled = fc.CityAPI.Enabled || os.Getenv("CITY_API_URL") != ""
	cfg.CityAPIKey = firstNonEmpty(os.Getenv("CITY_API_KEY"), sec.CityAPIKey)
	cfg.CityAPITimeout = parseDurationOrZero(fc.CityAPI.Timeout, 2*time.Second)
	cfg.CityAPICacheTTL = parseDuration(fc.CityAPI.CacheTTL, 24*time.Hour)
	cfg.CircuitBreakerFailureThreshold = fc.CityAPI.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CityAPI.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CityAPI.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory")))
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = strings.TrimSpace(firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379"))
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer, got %q", v)
		}
		cfg.RedisDB = db
	}
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.DrainTimeout = parseDuration(fc.Shutdown.DrainTimeout, 10*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.OverloadDeniedPct = fc.Health.OverloadDeniedPct
	if cfg.OverloadDeniedPct <= 0 {
		cfg.OverloadDeniedPct = 80
	}

	cfg.AllowedOrigins = fc.CORS.AllowedOrigins
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	cfg.ExposeInternalErrors = true
	if fc.Errors.ExposeInternal != nil {
		cfg.ExposeInternalErrors = *fc.Errors.ExposeInternal
	}
	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above CityAPITimeout when enrichment is on.
func validate(cfg *Config) error {
	switch cfg.SortBy {
	case "score", "average_rating":
	default:
		return fmt.Errorf("lookup.sort_by must be score or average_rating, got %q", cfg.SortBy)
	}
	if cfg.CityMinLength > cfg.CityMaxLength {
		return fmt.Errorf("validation.min_length (%d) exceeds max_length (%d)", cfg.CityMinLength, cfg.CityMaxLength)
	}
	if !validation.KnownScript(cfg.CityRequiredScript) {
		return fmt.Errorf("validation.required_script %q is not supported", cfg.CityRequiredScript)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if cfg.CityAPIEnabled {
		if cfg.CityAPIURL == "" {
			return fmt.Errorf("city_api.url required when city_api.enabled is true")
		}
		if cfg.CityAPITimeout <= 0 {
			return fmt.Errorf("city_api.timeout must be positive")
		}
		if cfg.RequestTimeout <= cfg.CityAPITimeout {
			cfg.RequestTimeout = cfg.CityAPITimeout + time.Second
		}
	}
	return nil
}
