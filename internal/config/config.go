package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rfid_session_go/sdk"
)

const EnvPrefix = "TMR"

type Config struct {
	Reader  ReaderConfig  `mapstructure:"reader"`
	Read    ReadConfig    `mapstructure:"read"`
	Thermal ThermalConfig `mapstructure:"thermal"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	NATS    NATSConfig    `mapstructure:"nats"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Log     LogConfig     `mapstructure:"log"`
}

type ReaderConfig struct {
	URI            string        `mapstructure:"uri"`
	BaudRate       int           `mapstructure:"baud_rate"`
	ProbeBaudRates []int         `mapstructure:"probe_baud_rates"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Region         string        `mapstructure:"region"`
	ReadPower      int           `mapstructure:"read_power"`
	Metadata       []string      `mapstructure:"metadata"`
	Stats          []string      `mapstructure:"stats"`
	Passwords      []uint32      `mapstructure:"passwords"`
	PlanFile       string        `mapstructure:"plan_file"`
	AliasFile      string        `mapstructure:"alias_file"`
}

type ReadConfig struct {
	Mode     string        `mapstructure:"mode"`
	Duration time.Duration `mapstructure:"duration"`
	OnTime   time.Duration `mapstructure:"on_time"`
	OffTime  time.Duration `mapstructure:"off_time"`
	SeenTTL  time.Duration `mapstructure:"seen_ttl"`
}

type ThermalConfig struct {
	Window    int           `mapstructure:"window"`
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
	Disabled  bool          `mapstructure:"disabled"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	QoS      byte   `mapstructure:"qos"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("reader.uri", "sim://demo")
	v.SetDefault("reader.baud_rate", sdk.DefaultBaudRate)
	v.SetDefault("reader.probe_baud_rates", sdk.DefaultProbeBaudRates())
	v.SetDefault("reader.command_timeout", sdk.DefaultCommandTimeout)
	v.SetDefault("reader.dial_timeout", "3s")
	v.SetDefault("reader.retry_delay", "2s")
	v.SetDefault("reader.region", "")
	v.SetDefault("reader.read_power", 0)
	v.SetDefault("reader.metadata", []string{"ALL"})
	v.SetDefault("reader.stats", []string{})
	v.SetDefault("reader.passwords", []uint32{})
	v.SetDefault("reader.plan_file", "")
	v.SetDefault("reader.alias_file", "")

	v.SetDefault("read.mode", ModeAsync)
	v.SetDefault("read.duration", "500ms")
	v.SetDefault("read.on_time", sdk.DefaultAsyncOnTime)
	v.SetDefault("read.off_time", "0s")
	v.SetDefault("read.seen_ttl", "10m")

	def := sdk.DefaultThermalConfig()
	v.SetDefault("thermal.window", def.Window)
	v.SetDefault("thermal.threshold", def.Threshold)
	v.SetDefault("thermal.cooldown", def.Cooldown)
	v.SetDefault("thermal.disabled", false)

	// Every key needs a default so AutomaticEnv can override it.
	v.SetDefault("http.addr", "")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "rfid.tags")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "rfid/tags")
	v.SetDefault("mqtt.client_id", "tmrread")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads an optional YAML file and applies TMR_ environment overrides
// such as TMR_READER_URI or TMR_HTTP_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Reader.URI = strings.TrimSpace(c.Reader.URI)
	if c.Reader.URI == "" {
		return errors.New("reader.uri is required")
	}
	if c.Reader.CommandTimeout < 100*time.Millisecond {
		c.Reader.CommandTimeout = 100 * time.Millisecond
	}
	if c.Reader.RetryDelay < 500*time.Millisecond {
		c.Reader.RetryDelay = 2 * time.Second
	}
	if c.Reader.Region != "" {
		if _, err := sdk.ParseRegion(c.Reader.Region); err != nil {
			return fmt.Errorf("reader.region: %w", err)
		}
	}
	if _, err := sdk.ParseMetadata(c.Reader.Metadata); err != nil {
		return fmt.Errorf("reader.metadata: %w", err)
	}
	if _, err := sdk.ParseStatsFlags(c.Reader.Stats); err != nil {
		return fmt.Errorf("reader.stats: %w", err)
	}

	c.Read.Mode = strings.ToLower(strings.TrimSpace(c.Read.Mode))
	switch c.Read.Mode {
	case ModeAsync, ModeSync:
	default:
		return fmt.Errorf("read.mode %q: want async or sync", c.Read.Mode)
	}
	if c.Read.Duration <= 0 {
		c.Read.Duration = 500 * time.Millisecond
	}
	if c.Read.OnTime <= 0 {
		c.Read.OnTime = sdk.DefaultAsyncOnTime
	}
	if c.Read.OffTime < 0 {
		c.Read.OffTime = 0
	}
	if c.Read.SeenTTL < time.Second {
		c.Read.SeenTTL = time.Second
	}
	if c.MQTT.QoS > 2 {
		c.MQTT.QoS = 1
	}
	return nil
}

// SessionOptions maps the reader and thermal sections onto session options.
func (c *Config) SessionOptions() []sdk.Option {
	opts := []sdk.Option{
		sdk.WithBaudRate(c.Reader.BaudRate),
		sdk.WithProbeBaudRates(c.Reader.ProbeBaudRates),
		sdk.WithCommandTimeout(c.Reader.CommandTimeout),
		sdk.WithAsyncTiming(c.Read.OnTime, c.Read.OffTime),
		sdk.WithThermal(sdk.ThermalConfig{
			Window:    c.Thermal.Window,
			Threshold: c.Thermal.Threshold,
			Cooldown:  c.Thermal.Cooldown,
			Disabled:  c.Thermal.Disabled,
		}),
	}
	if len(c.Reader.Passwords) > 0 {
		opts = append(opts, sdk.WithCredentialResolver(sdk.PasswordTable(c.Reader.Passwords...)))
	}
	return opts
}

// Region is the configured region, or RegionUnspecified to negotiate.
func (c *Config) Region() sdk.Region {
	r, err := sdk.ParseRegion(c.Reader.Region)
	if err != nil {
		return sdk.RegionUnspecified
	}
	return r
}

func (c *Config) Metadata() sdk.MetadataFlag {
	m, _ := sdk.ParseMetadata(c.Reader.Metadata)
	return m
}

func (c *Config) Stats() sdk.StatsFlag {
	s, _ := sdk.ParseStatsFlags(c.Reader.Stats)
	return s
}
