package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends selectable for the cache and call-log stores.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendValkey   = "valkey"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Forecast ForecastConfig `yaml:"forecast"`
	Weather  WeatherConfig  `yaml:"weather"`
	Model    ModelConfig    `yaml:"model"`
	Quota    QuotaConfig    `yaml:"quota"`
	Cache    CacheConfig    `yaml:"cache"`
	Access   AccessConfig   `yaml:"access"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// ForecastConfig tunes the orchestrator.
type ForecastConfig struct {
	Timezone         string        `yaml:"timezone"`
	Horizon          time.Duration `yaml:"horizon"`
	DefaultLatitude  float64       `yaml:"defaultLatitude"`
	DefaultLongitude float64       `yaml:"defaultLongitude"`
}

// WeatherConfig points at the OpenWeather One Call API.
type WeatherConfig struct {
	APIKey  string        `yaml:"apiKey"`
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig locates the model artifact, either on disk or in object storage.
type ModelConfig struct {
	Path   string       `yaml:"path"`
	Object ObjectConfig `yaml:"object"`
}

// ObjectConfig holds S3-compatible storage settings (MinIO, R2).
type ObjectConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Key       string `yaml:"key"`
}

// QuotaConfig controls the daily external call budget and where it is persisted.
type QuotaConfig struct {
	DailyLimit int            `yaml:"dailyLimit"`
	HistoryCap int            `yaml:"historyCap"`
	Backend    string         `yaml:"backend"`
	Path       string         `yaml:"path"`
	SQLitePath string         `yaml:"sqlitePath"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// CacheConfig controls the weather and result caches.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	Dir             string        `yaml:"dir"`
	WeatherTTL      time.Duration `yaml:"weatherTtl"`
	ResultTTL       time.Duration `yaml:"resultTtl"`
	Retention       time.Duration `yaml:"retention"`
	JanitorInterval time.Duration `yaml:"janitorInterval"`
	Valkey          ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig contains connection information for cache storage.
type ValkeyConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// AccessConfig drives bearer token checks. An empty secret leaves the API open.
type AccessConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"tokenTtl"`
}

// MQTTConfig configures the optional forecast publisher.
type MQTTConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"clientId"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"`
	Retained bool          `yaml:"retained"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ArchiveConfig configures the optional ClickHouse forecast archive.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads configuration from .env, a YAML file and environment variables, in that order.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Location resolves the forecast timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Forecast.Timezone)
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString("HTTP_ADDRESS", &cfg.HTTP.Address)
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	setBool("HTTP_RATE_LIMIT_ENABLED", &cfg.HTTP.RateLimit.Enabled)
	setInt("HTTP_RATE_LIMIT_RPM", &cfg.HTTP.RateLimit.RequestsPerMinute)
	setInt("HTTP_RATE_LIMIT_BURST", &cfg.HTTP.RateLimit.Burst)

	setString("FORECAST_TIMEZONE", &cfg.Forecast.Timezone)
	setDuration("FORECAST_HORIZON", &cfg.Forecast.Horizon)
	setFloat("FORECAST_DEFAULT_LAT", &cfg.Forecast.DefaultLatitude)
	setFloat("FORECAST_DEFAULT_LON", &cfg.Forecast.DefaultLongitude)

	setString("OPENWEATHER_API_KEY", &cfg.Weather.APIKey)
	setString("OPENWEATHER_BASE_URL", &cfg.Weather.BaseURL)
	setDuration("OPENWEATHER_TIMEOUT", &cfg.Weather.Timeout)

	setString("MODEL_PATH", &cfg.Model.Path)
	setBool("MODEL_OBJECT_ENABLED", &cfg.Model.Object.Enabled)
	setString("MODEL_OBJECT_ENDPOINT", &cfg.Model.Object.Endpoint)
	setString("MODEL_OBJECT_ACCESS_KEY", &cfg.Model.Object.AccessKey)
	setString("MODEL_OBJECT_SECRET_KEY", &cfg.Model.Object.SecretKey)
	setString("MODEL_OBJECT_BUCKET", &cfg.Model.Object.Bucket)
	setString("MODEL_OBJECT_REGION", &cfg.Model.Object.Region)
	setString("MODEL_OBJECT_KEY", &cfg.Model.Object.Key)

	setInt("QUOTA_DAILY_LIMIT", &cfg.Quota.DailyLimit)
	setInt("QUOTA_HISTORY_CAP", &cfg.Quota.HistoryCap)
	setString("QUOTA_BACKEND", &cfg.Quota.Backend)
	setString("QUOTA_PATH", &cfg.Quota.Path)
	setString("QUOTA_SQLITE_PATH", &cfg.Quota.SQLitePath)
	setString("QUOTA_POSTGRES_DSN", &cfg.Quota.Postgres.DSN)
	if v := os.Getenv("QUOTA_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Quota.Postgres.MaxConns = int32(parsed)
		}
	}

	setString("CACHE_BACKEND", &cfg.Cache.Backend)
	setString("CACHE_DIR", &cfg.Cache.Dir)
	setDuration("CACHE_WEATHER_TTL", &cfg.Cache.WeatherTTL)
	setDuration("CACHE_RESULT_TTL", &cfg.Cache.ResultTTL)
	setDuration("CACHE_RETENTION", &cfg.Cache.Retention)
	setDuration("CACHE_JANITOR_INTERVAL", &cfg.Cache.JanitorInterval)
	setString("CACHE_VALKEY_ADDR", &cfg.Cache.Valkey.Addr)
	setString("CACHE_VALKEY_PREFIX", &cfg.Cache.Valkey.Prefix)

	setString("ACCESS_TOKEN_SECRET", &cfg.Access.Secret)
	setString("ACCESS_TOKEN_ISSUER", &cfg.Access.Issuer)
	setDuration("ACCESS_TOKEN_TTL", &cfg.Access.TokenTTL)

	setBool("MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("MQTT_BROKER", &cfg.MQTT.Broker)
	setString("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	setString("MQTT_USERNAME", &cfg.MQTT.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Password)
	setString("MQTT_TOPIC", &cfg.MQTT.Topic)
	setBool("MQTT_RETAINED", &cfg.MQTT.Retained)

	setBool("ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	setString("CLICKHOUSE_ADDR", &cfg.Archive.Addr)
	setString("CLICKHOUSE_DATABASE", &cfg.Archive.Database)
	setString("CLICKHOUSE_USERNAME", &cfg.Archive.Username)
	setString("CLICKHOUSE_PASSWORD", &cfg.Archive.Password)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
		},
		Forecast: ForecastConfig{
			Timezone:         "America/Edmonton",
			Horizon:          48 * time.Hour,
			DefaultLatitude:  51.0447,
			DefaultLongitude: -114.0719,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.openweathermap.org/data/3.0/onecall",
			Timeout: 15 * time.Second,
		},
		Model: ModelConfig{
			Path: "models/solar_model.json",
			Object: ObjectConfig{
				Key: "models/solar_model.json",
			},
		},
		Quota: QuotaConfig{
			DailyLimit: 950,
			HistoryCap: 1000,
			Backend:    BackendFile,
			Path:       "data/api_calls.json",
			SQLitePath: "data/quota.db",
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Cache: CacheConfig{
			Backend:         BackendFile,
			Dir:             "data/cache",
			WeatherTTL:      10 * time.Minute,
			ResultTTL:       10 * time.Minute,
			Retention:       24 * time.Hour,
			JanitorInterval: time.Hour,
			Valkey: ValkeyConfig{
				Prefix: "solar",
			},
		},
		Access: AccessConfig{
			Issuer:   "solar-forecast",
			TokenTTL: 30 * 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			ClientID: "solar-forecast",
			Topic:    "solar/forecast",
			Timeout:  5 * time.Second,
		},
		Archive: ArchiveConfig{
			Addr:     "localhost:9000",
			Database: "default",
			Username: "default",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("forecast.timezone: %w", err)
	}
	if c.Forecast.Horizon <= 0 {
		return errors.New("forecast.horizon must be positive")
	}
	if c.Forecast.DefaultLatitude < -90 || c.Forecast.DefaultLatitude > 90 {
		return errors.New("forecast.defaultLatitude must be within [-90, 90]")
	}
	if c.Forecast.DefaultLongitude < -180 || c.Forecast.DefaultLongitude > 180 {
		return errors.New("forecast.defaultLongitude must be within [-180, 180]")
	}
	if c.Weather.Timeout <= 0 {
		return errors.New("weather.timeout must be positive")
	}
	if c.Model.Object.Enabled {
		if strings.TrimSpace(c.Model.Object.Endpoint) == "" || strings.TrimSpace(c.Model.Object.Bucket) == "" {
			return errors.New("model.object.endpoint and model.object.bucket are required when object storage is enabled")
		}
	} else if strings.TrimSpace(c.Model.Path) == "" {
		return errors.New("model.path cannot be empty")
	}
	if c.Quota.DailyLimit <= 0 {
		return errors.New("quota.dailyLimit must be positive")
	}
	if c.Quota.HistoryCap <= 0 {
		return errors.New("quota.historyCap must be positive")
	}
	switch c.Quota.Backend {
	case BackendFile, BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Quota.SQLitePath) == "" {
			return errors.New("quota.sqlitePath cannot be empty for the sqlite backend")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Quota.Postgres.DSN) == "" {
			return errors.New("quota.postgres.dsn cannot be empty for the postgres backend")
		}
	default:
		return fmt.Errorf("quota.backend %q not supported", c.Quota.Backend)
	}
	switch c.Cache.Backend {
	case BackendFile, BackendMemory:
	case BackendValkey:
		if strings.TrimSpace(c.Cache.Valkey.Addr) == "" {
			return errors.New("cache.valkey.addr cannot be empty for the valkey backend")
		}
	default:
		return fmt.Errorf("cache.backend %q not supported", c.Cache.Backend)
	}
	if c.Cache.WeatherTTL <= 0 || c.Cache.ResultTTL <= 0 {
		return errors.New("cache ttls must be positive")
	}
	if c.Cache.Retention < c.Cache.WeatherTTL || c.Cache.Retention < c.Cache.ResultTTL {
		return errors.New("cache.retention cannot be shorter than the cache ttls")
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker cannot be empty when mqtt is enabled")
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Addr) == "" {
		return errors.New("archive.addr cannot be empty when the archive is enabled")
	}
	return nil
}
