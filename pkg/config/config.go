package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Fleetview FleetviewConfig `yaml:"fleetview"`
}

// FleetviewConfig is the project configuration.
type FleetviewConfig struct {
	API     APIConfig     `yaml:"api"`
	Stream  StreamConfig  `yaml:"stream"`
	Map     MapConfig     `yaml:"map"`
	State   StateConfig   `yaml:"state"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig points at the management REST API.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StreamConfig controls the websocket event channel.
type StreamConfig struct {
	URL           string             `yaml:"url"`
	Subscriptions []SubscriptionSpec `yaml:"subscriptions"`
	Highlight     []string           `yaml:"highlight"`
}

// SubscriptionSpec selects one log type of one smart contract.
type SubscriptionSpec struct {
	SCIndex int `yaml:"sc_index"`
	LogType int `yaml:"log_type"`
}

// MapConfig controls world data and canvas geometry.
type MapConfig struct {
	WorldURL   string `yaml:"world_url"`
	WorldPath  string `yaml:"world_path"`
	GeoIPPath  string `yaml:"geoip_path"`
	Projection string `yaml:"projection"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// StateConfig selects the client state backend.
type StateConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis state storage.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

const DefaultWorldURL = "https://raw.githubusercontent.com/johan/world.geo.json/master/countries.geo.json"

// LoadConfig reads a YAML file and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	f := &c.Fleetview
	if f.API.Timeout <= 0 {
		f.API.Timeout = 10 * time.Second
	}
	if f.API.PollInterval <= 0 {
		f.API.PollInterval = 30 * time.Second
	}
	if len(f.Stream.Subscriptions) == 0 {
		f.Stream.Subscriptions = []SubscriptionSpec{{SCIndex: 0, LogType: 0}}
	}
	if f.Map.WorldURL == "" && f.Map.WorldPath == "" {
		f.Map.WorldURL = DefaultWorldURL
	}
	if f.Map.Projection == "" {
		f.Map.Projection = "naturalearth"
	}
	if f.Map.Width <= 0 {
		f.Map.Width = 1920
	}
	if f.Map.Height <= 0 {
		f.Map.Height = 1080
	}
	if f.State.Backend == "" {
		f.State.Backend = "memory"
	}
	if f.State.Backend == "badger" && f.State.Path == "" {
		f.State.Path = "data/state"
	}
	if f.State.Redis.Addr == "" {
		f.State.Redis.Addr = "127.0.0.1:6379"
	}
	if f.State.Redis.KeyPrefix == "" {
		f.State.Redis.KeyPrefix = "fleetview:state"
	}
	if f.Metrics.Addr == "" {
		f.Metrics.Addr = ":9464"
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	f := c.Fleetview
	switch f.State.Backend {
	case "memory", "badger", "redis":
	default:
		return fmt.Errorf("state.backend %q: want memory, badger or redis", f.State.Backend)
	}
	switch f.Map.Projection {
	case "naturalearth", "natural-earth", "mollweide":
	default:
		return fmt.Errorf("map.projection %q: want naturalearth or mollweide", f.Map.Projection)
	}
	for i, s := range f.Stream.Subscriptions {
		if s.SCIndex < 0 || s.LogType < 0 {
			return fmt.Errorf("stream.subscriptions[%d]: negative index", i)
		}
	}
	return nil
}
