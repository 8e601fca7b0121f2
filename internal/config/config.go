package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath           = "/etc/bluedoor/config.yaml"
	DefaultStatePath      = "/var/lib/bluedoor/session.json"
	DefaultHTTPAddr       = "0.0.0.0:8080"
	DefaultPollInterval   = 900
	DefaultRequestTimeout = 30
	DefaultMQTTPrefix     = "homeassistant"
	DefaultMQTTBaseTopic  = "bluedoor"
)

// Config is the root configuration, loaded from YAML with account
// secrets overridable from the environment.
type Config struct {
	Fermax  FermaxConfig  `yaml:"fermax"`
	Session SessionConfig `yaml:"session"`
	Poll    PollConfig    `yaml:"poll"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
}

// FermaxConfig holds the Blue account and API endpoints. Empty URL
// and client fields fall back to the published Blue app defaults.
type FermaxConfig struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	BaseURL        string `yaml:"base_url"`
	TokenURL       string `yaml:"token_url"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RequestTimeout int    `yaml:"request_timeout"`
}

// SessionConfig controls credential persistence.
type SessionConfig struct {
	StatePath string       `yaml:"state_path"`
	Mirror    MirrorConfig `yaml:"mirror"`
}

// MirrorConfig configures the optional S3 mirror of the session state.
type MirrorConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

// PollConfig controls the discovery cadence, in seconds.
type PollConfig struct {
	Interval int `yaml:"interval"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig configures the optional Home Assistant bridge.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	BrokerURL       string `yaml:"broker_url"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	BaseTopic       string `yaml:"base_topic"`
	QoS             int    `yaml:"qos"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the YAML config, applies defaults and environment
// overrides, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Session.StatePath == "" {
		cfg.Session.StatePath = DefaultStatePath
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}
	if cfg.Fermax.RequestTimeout <= 0 {
		cfg.Fermax.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultMQTTPrefix
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = DefaultMQTTBaseTopic
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "bluedoor"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides lets deployments keep account secrets out of the
// config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLUEDOOR_USERNAME"); v != "" {
		cfg.Fermax.Username = v
	}
	if v := os.Getenv("BLUEDOOR_PASSWORD"); v != "" {
		cfg.Fermax.Password = v
	}
	if v := os.Getenv("BLUEDOOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.Fermax.Username == "" {
		return fmt.Errorf("fermax.username is required")
	}
	if cfg.Fermax.Password == "" {
		return fmt.Errorf("fermax.password is required")
	}
	if cfg.Session.StatePath == "" {
		return fmt.Errorf("session.state_path is required")
	}
	if cfg.Session.Mirror.Enabled {
		m := cfg.Session.Mirror
		if m.Endpoint == "" || m.Bucket == "" || m.AccessKeyFile == "" || m.SecretKeyFile == "" {
			return fmt.Errorf("session.mirror requires endpoint, bucket, access_key_file and secret_key_file")
		}
	}
	if cfg.MQTT.Enabled && cfg.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

// PollInterval returns the discovery cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Second
}

// RequestTimeout returns the per-call network timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fermax.RequestTimeout) * time.Second
}
