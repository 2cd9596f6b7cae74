// Package config resolves runtime settings from a .env file, an optional
// config.yaml and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Geocode GeocodeConfig `mapstructure:"geocode"`
	Store   StoreConfig   `mapstructure:"store"`
	Sync    SyncConfig    `mapstructure:"sync"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port"`
	ClientURL string `mapstructure:"client_url"`
}

type FeedConfig struct {
	Mode      string        `mapstructure:"mode"`
	APIURL    string        `mapstructure:"api_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageSize  int           `mapstructure:"page_size"`
	MaxPages  int           `mapstructure:"max_pages"`
}

type GeocodeConfig struct {
	Provider         string        `mapstructure:"provider"`
	NominatimURL     string        `mapstructure:"nominatim_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	GoogleAPIKey     string        `mapstructure:"google_api_key"`
	Country          string        `mapstructure:"country"`
	MinInterval      time.Duration `mapstructure:"min_interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	NegativeCacheTTL time.Duration `mapstructure:"negative_cache_ttl"`
}

type StoreConfig struct {
	Driver              string `mapstructure:"driver"`
	DatabaseURL         string `mapstructure:"database_url"`
	FirebaseCredentials string `mapstructure:"firebase_credentials"`
}

type SyncConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	District         string `mapstructure:"district"`
	DaysBack         int    `mapstructure:"days_back"`
	Schedule         string `mapstructure:"schedule"`
	BacklogSchedule  string `mapstructure:"backlog_schedule"`
	BacklogBatchSize int    `mapstructure:"backlog_batch_size"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

const (
	FeedModeLive     = "live"
	FeedModeMock     = "mock"
	FeedModeFallback = "fallback"

	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"

	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// legacyEnv maps keys to the variable names used by existing deployments.
var legacyEnv = map[string][]string{
	"server.client_url":          {"CLIENT_URL"},
	"store.database_url":         {"DATABASE_URL"},
	"store.firebase_credentials": {"FIREBASE_CREDENTIALS"},
	"geocode.google_api_key":     {"MAPS_CREDENTIALS"},
	"openai.api_key":             {"OPENAI_API_KEY"},
}

// Load reads .env (if present), then configFile or ./config.yaml (if present),
// then the environment, and returns a validated Config.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.client_url", "http://localhost:5173")

	v.SetDefault("feed.mode", FeedModeFallback)
	v.SetDefault("feed.api_url", "https://api.politiet.no/politiloggen/v1")
	v.SetDefault("feed.user_agent", "pulsemap/1.0")
	v.SetDefault("feed.timeout", 10*time.Second)
	v.SetDefault("feed.page_size", 100)
	v.SetDefault("feed.max_pages", 10)

	v.SetDefault("geocode.provider", ProviderNominatim)
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "pulsemap/1.0")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.country", "Norway")
	v.SetDefault("geocode.min_interval", time.Second)
	v.SetDefault("geocode.timeout", 5*time.Second)
	v.SetDefault("geocode.cache_ttl", 24*time.Hour)
	v.SetDefault("geocode.negative_cache_ttl", 15*time.Minute)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.firebase_credentials", "")

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.district", "Oslo")
	v.SetDefault("sync.days_back", 7)
	v.SetDefault("sync.schedule", "*/10 * * * *")
	v.SetDefault("sync.backlog_schedule", "30 * * * *")
	v.SetDefault("sync.backlog_batch_size", 50)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		primary := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, primary}, names...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate reports the first setting that would keep the service from starting.
func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case FeedModeLive, FeedModeMock, FeedModeFallback:
	default:
		return fmt.Errorf("%w: unknown feed mode %q", ErrInvalid, c.Feed.Mode)
	}
	if c.Feed.Mode != FeedModeMock && c.Feed.APIURL == "" {
		return fmt.Errorf("%w: feed.api_url is required in %s mode", ErrInvalid, c.Feed.Mode)
	}

	switch c.Geocode.Provider {
	case ProviderNominatim:
		if c.Geocode.UserAgent == "" {
			return fmt.Errorf("%w: geocode.user_agent is required for nominatim", ErrInvalid)
		}
	case ProviderGoogle:
		if c.Geocode.GoogleAPIKey == "" {
			return fmt.Errorf("%w: geocode.google_api_key is required for google", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown geocode provider %q", ErrInvalid, c.Geocode.Provider)
	}
	if c.Geocode.MinInterval < 0 {
		return fmt.Errorf("%w: geocode.min_interval must not be negative", ErrInvalid)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("%w: store.database_url is required for postgres", ErrInvalid)
		}
	case DriverFirestore:
		if c.Store.FirebaseCredentials == "" {
			return fmt.Errorf("%w: store.firebase_credentials is required for firestore", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}

	if c.Sync.Enabled {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			return fmt.Errorf("%w: sync.schedule %q: %v", ErrInvalid, c.Sync.Schedule, err)
		}
		if c.Sync.BacklogSchedule != "" {
			if _, err := cron.ParseStandard(c.Sync.BacklogSchedule); err != nil {
				return fmt.Errorf("%w: sync.backlog_schedule %q: %v", ErrInvalid, c.Sync.BacklogSchedule, err)
			}
		}
	}
	if c.Sync.District == "" {
		return fmt.Errorf("%w: sync.district is required", ErrInvalid)
	}
	return nil
}
