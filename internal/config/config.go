package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/aqi-service/internal/airquality"
)

const configPathEnv = "AQI_CONFIG"

type AppConfig struct {
	AppEnv   string     `yaml:"appEnv"`
	Debug    bool       `yaml:"debug"`
	LogLevel slog.Level `yaml:"-"`

	Port string `yaml:"port"`

	IQAir       ProviderConfig `yaml:"iqair"`
	OpenWeather ProviderConfig `yaml:"openWeather"`

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout        time.Duration `yaml:"-"`
	ProviderMaxRetries int           `yaml:"providerMaxRetries"`

	CORSOrigins []string `yaml:"corsOrigins"`
	ModelPath   string   `yaml:"modelPath"`
	DefaultCity string   `yaml:"defaultCity"`

	Cities []airquality.City `yaml:"cities"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

// fileConfig mirrors AppConfig for the string-typed YAML values that need
// parsing before they land in AppConfig.
type fileConfig struct {
	AppConfig   `yaml:",inline"`
	LogLevel    string `yaml:"logLevel"`
	HTTPTimeout string `yaml:"httpTimeout"`
}

// IsDev reports whether the human-readable log handler should be used.
func (c *AppConfig) IsDev() bool {
	return c.AppEnv == "dev" || c.Debug
}

// Load reads .env, the optional YAML file named by AQI_CONFIG, and
// environment overrides, in that order of increasing precedence.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.mergeYAML(raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) mergeYAML(raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}
	o := fc.AppConfig

	if o.AppEnv != "" {
		c.AppEnv = o.AppEnv
	}
	if o.Debug {
		c.Debug = true
	}
	if o.Port != "" {
		c.Port = o.Port
	}
	mergeProvider(&c.IQAir, o.IQAir)
	mergeProvider(&c.OpenWeather, o.OpenWeather)
	if o.ProviderMaxRetries != 0 {
		c.ProviderMaxRetries = o.ProviderMaxRetries
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = o.CORSOrigins
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.DefaultCity != "" {
		c.DefaultCity = o.DefaultCity
	}
	if len(o.Cities) > 0 {
		c.Cities = o.Cities
	}

	if fc.LogLevel != "" {
		lvl, err := parseLevel(fc.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = lvl
	}
	if fc.HTTPTimeout != "" {
		d, err := time.ParseDuration(fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("invalid httpTimeout: %w", err)
		}
		c.HTTPTimeout = d
	}
	return nil
}

func mergeProvider(base *ProviderConfig, o ProviderConfig) {
	if o.BaseURL != "" {
		base.BaseURL = o.BaseURL
	}
	if o.APIKey != "" {
		base.APIKey = o.APIKey
	}
}

func (c *AppConfig) applyEnvOverrides() error {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.AppEnv = strings.ToLower(v)
	}
	if v := os.Getenv("DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %w", err)
		}
		c.Debug = b
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		lvl, err := parseLevel(v)
		if err != nil {
			return err
		}
		c.LogLevel = lvl
	}

	c.Port = getenvDefault("PORT", c.Port)
	c.IQAir.APIKey = getenvDefault("IQAIR_API_KEY", c.IQAir.APIKey)
	c.IQAir.BaseURL = getenvDefault("IQAIR_BASE_URL", c.IQAir.BaseURL)
	c.OpenWeather.APIKey = getenvDefault("OPENWEATHER_API_KEY", c.OpenWeather.APIKey)
	c.OpenWeather.BaseURL = getenvDefault("OPENWEATHER_BASE_URL", c.OpenWeather.BaseURL)
	c.ModelPath = getenvDefault("MODEL_PATH", c.ModelPath)
	c.DefaultCity = getenvDefault("DEFAULT_CITY", c.DefaultCity)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}

	if v := os.Getenv("PROVIDER_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PROVIDER_MAX_RETRIES: %w", err)
		}
		c.ProviderMaxRetries = n
	}
	return nil
}

func (c *AppConfig) validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid APP_ENV %q: want dev or prod", c.AppEnv)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative, got %d", c.ProviderMaxRetries)
	}
	for i, city := range c.Cities {
		if strings.TrimSpace(city.Name) == "" {
			return fmt.Errorf("city %d has no name", i)
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return lvl, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		AppEnv:      "dev",
		LogLevel:    slog.LevelInfo,
		Port:        "5000",
		IQAir:       ProviderConfig{BaseURL: "http://api.airvisual.com"},
		OpenWeather: ProviderConfig{BaseURL: "http://api.openweathermap.org"},
		HTTPTimeout: 10 * time.Second,
		CORSOrigins: []string{"http://localhost:5173"},
		ModelPath:   "ml_model/aqi_model.json",
		DefaultCity: "London",
		Cities:      DefaultCities(),
	}
}

// DefaultCities is the catalog served when no config file overrides it.
func DefaultCities() []airquality.City {
	return []airquality.City{
		{Name: "London", Country: "UK", Lat: 51.5074, Lon: -0.1278},
		{Name: "New York", Country: "USA", Lat: 40.7128, Lon: -74.0060},
		{Name: "Delhi", Country: "India", Lat: 28.7041, Lon: 77.1025},
		{Name: "Beijing", Country: "China", Lat: 39.9042, Lon: 116.4074},
		{Name: "Tokyo", Country: "Japan", Lat: 35.6762, Lon: 139.6503},
		{Name: "Los Angeles", Country: "USA", Lat: 34.0522, Lon: -118.2437},
		{Name: "Mumbai", Country: "India", Lat: 19.0760, Lon: 72.8777},
		{Name: "Paris", Country: "France", Lat: 48.8566, Lon: 2.3522},
	}
}
