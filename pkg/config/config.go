package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, read from the process environment or a .env file.
const (
	EnvAPIBaseURL    = "POLLENMAP_API_BASE_URL"
	EnvServerAddress = "POLLENMAP_SERVER_ADDRESS"
	EnvKafkaBrokers  = "POLLENMAP_KAFKA_BROKERS" // comma separated
)

// Config holds the application configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Request  RequestConfig  `yaml:"request"`
	Forecast ForecastConfig `yaml:"forecast"`
	Playback PlaybackConfig `yaml:"playback"`
	Server   ServerConfig   `yaml:"server"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig locates the forecast service.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Timeout      Duration `yaml:"timeout"`
	Workers      int      `yaml:"workers"`        // concurrent requests per host
	MaxBodyBytes int64    `yaml:"max_body_bytes"` // upper bound for one response body
}

// ForecastConfig holds forecast selection defaults.
type ForecastConfig struct {
	DefaultAllergen string `yaml:"default_allergen"`
}

// PlaybackConfig holds settings for the playback scheduler.
type PlaybackConfig struct {
	Period   Duration `yaml:"period"`
	Autoplay bool     `yaml:"autoplay"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// EventsConfig holds settings for external event sinks.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables publishing forecast events. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Buffer  int      `yaml:"buffer"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.pollen.club",
		},
		Request: RequestConfig{
			Timeout:      Duration(30 * time.Second),
			Workers:      2,
			MaxBodyBytes: 32 << 20,
		},
		Forecast: ForecastConfig{
			DefaultAllergen: "Береза",
		},
		Playback: PlaybackConfig{
			Period:   Duration(1 * time.Second),
			Autoplay: false,
		},
		Server: ServerConfig{
			Address: "localhost:1920",
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{
				Brokers: []string{},
				Topic:   "pollenmap.forecast",
				Buffer:  64,
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "logs/requests.log",
				Level: "INFO",
			},
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Environment overrides are applied afterwards and never written back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg, ".env"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from the process environment, falling back to
// the dotenv file. A missing dotenv file is not an error.
func applyEnv(cfg *Config, dotenvPath string) error {
	fileVals, err := godotenv.Read(dotenvPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", dotenvPath, err)
	}

	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVals[key]
	}

	if v := lookup(EnvAPIBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := lookup(EnvServerAddress); v != "" {
		cfg.Server.Address = v
	}
	if v := lookup(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Events.Kafka.Brokers = brokers
	}
	return nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api.base_url '%s': must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.Request.Timeout <= 0 {
		return fmt.Errorf("request.timeout must be positive")
	}
	if c.Request.MaxBodyBytes <= 0 {
		return fmt.Errorf("request.max_body_bytes must be positive")
	}
	if c.Playback.Period <= 0 {
		return fmt.Errorf("playback.period must be positive")
	}
	if c.Events.Kafka.Enabled() && c.Events.Kafka.Topic == "" {
		return fmt.Errorf("events.kafka.topic is required when brokers are set")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# PollenMap Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# Environment overrides: ` + EnvAPIBaseURL + `, ` + EnvServerAddress + `, ` + EnvKafkaBrokers + `

`)
	data = append(header, data...)

	reLevel := regexp.MustCompile(`(?m)^(\s+)level:`)
	data = reLevel.ReplaceAll(data, []byte("${1}# Options: DEBUG, INFO, WARN, ERROR\n${1}level:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
