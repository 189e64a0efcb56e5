// Package config loads Hamori server configuration.
//
// Sources are layered with koanf: built-in defaults, then an optional YAML
// file, then environment variables (highest priority).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Presence modes.
const (
	PresenceSimulated = "simulated"
	PresenceWebSocket = "websocket"
	PresenceMQTT      = "mqtt"
)

// DefaultConfigPaths lists the paths where config files are searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/hamori/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Places    PlacesConfig    `koanf:"places"`
	Readiness ReadinessConfig `koanf:"readiness"`
	Presence  PresenceConfig  `koanf:"presence"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
}

// DatabaseConfig controls the group store.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// OpenAIConfig configures transcription, tag extraction and query optimization.
// An empty APIKey disables all three; callers fall back as documented.
type OpenAIConfig struct {
	APIKey             string        `koanf:"api_key"`
	BaseURL            string        `koanf:"base_url"`
	TranscriptionModel string        `koanf:"transcription_model"`
	TagModel           string        `koanf:"tag_model"`
	QueryModel         string        `koanf:"query_model"`
	Language           string        `koanf:"language"`
	Timeout            time.Duration `koanf:"timeout"`
}

// PlacesConfig configures the Google Places client.
type PlacesConfig struct {
	APIKey       string        `koanf:"api_key"`
	BaseURL      string        `koanf:"base_url"`
	RadiusMeters int           `koanf:"radius_meters"`
	Language     string        `koanf:"language"`
	RatePerSec   float64       `koanf:"rate_per_sec"`
	Burst        int           `koanf:"burst"`
	Timeout      time.Duration `koanf:"timeout"`
}

// ReadinessConfig controls the group-readiness countdown.
type ReadinessConfig struct {
	CountdownFrom int           `koanf:"countdown_from"`
	CountdownTick time.Duration `koanf:"countdown_tick"`
}

// PresenceConfig selects and tunes the peer presence source.
type PresenceConfig struct {
	Mode          string        `koanf:"mode"`
	PeerInterval  time.Duration `koanf:"peer_interval"`
	NotifyLatency time.Duration `koanf:"notify_latency"`
	Seed          uint64        `koanf:"seed"`
	MQTTBroker    string        `koanf:"mqtt_broker"`
	MQTTTopicRoot string        `koanf:"mqtt_topic_root"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "",
		},
		Database: DatabaseConfig{
			Path: "./data/hamori.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		OpenAI: OpenAIConfig{
			BaseURL:            "https://api.openai.com/v1",
			TranscriptionModel: "whisper-1",
			TagModel:           "gpt-4-turbo",
			QueryModel:         "gpt-4",
			Language:           "ja",
			Timeout:            30 * time.Second,
		},
		Places: PlacesConfig{
			BaseURL:      "https://maps.googleapis.com/maps/api/place",
			RadiusMeters: 1500,
			Language:     "ja",
			RatePerSec:   5,
			Burst:        5,
			Timeout:      10 * time.Second,
		},
		Readiness: ReadinessConfig{
			CountdownFrom: 3,
			CountdownTick: time.Second,
		},
		Presence: PresenceConfig{
			Mode:          PresenceSimulated,
			PeerInterval:  2 * time.Second,
			NotifyLatency: 1500 * time.Millisecond,
			MQTTTopicRoot: "hamori",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Places.RadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("places.radius_meters must be positive: %d", c.Places.RadiusMeters))
	}
	if c.Places.RatePerSec <= 0 || c.Places.Burst <= 0 {
		errs = append(errs, errors.New("places.rate_per_sec and places.burst must be positive"))
	}
	if c.Readiness.CountdownFrom < 0 {
		errs = append(errs, fmt.Errorf("readiness.countdown_from must not be negative: %d", c.Readiness.CountdownFrom))
	}
	if c.Readiness.CountdownTick <= 0 {
		errs = append(errs, errors.New("readiness.countdown_tick must be positive"))
	}

	switch c.Presence.Mode {
	case PresenceSimulated:
		if c.Presence.PeerInterval <= 0 {
			errs = append(errs, errors.New("presence.peer_interval must be positive"))
		}
	case PresenceWebSocket:
	case PresenceMQTT:
		if c.Presence.MQTTBroker == "" {
			errs = append(errs, errors.New("presence.mqtt_broker is required in mqtt mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown presence.mode %q", c.Presence.Mode))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps well-known environment variables to config paths.
var envMappings = map[string]string{
	"port":                "server.port",
	"db_path":             "database.path",
	"log_level":           "logging.level",
	"openai_api_key":      "openai.api_key",
	"openai_base_url":     "openai.base_url",
	"google_maps_api_key": "places.api_key",
	"places_base_url":     "places.base_url",
	"places_radius":       "places.radius_meters",
	"presence_mode":       "presence.mode",
	"presence_seed":       "presence.seed",
	"mqtt_broker":         "presence.mqtt_broker",
	"countdown_tick":      "readiness.countdown_tick",
}

// envTransform maps an environment variable name to a koanf path. Variables
// prefixed HAMORI_ map structurally (HAMORI_OPENAI__TAG_MODEL -> openai.tag_model).
// Unknown variables map to "" and are ignored.
func envTransform(key string) string {
	key = strings.ToLower(key)
	if path, ok := envMappings[key]; ok {
		return path
	}
	if rest, ok := strings.CutPrefix(key, "hamori_"); ok {
		return strings.ReplaceAll(rest, "__", ".")
	}
	return ""
}
