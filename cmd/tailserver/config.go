package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/tailserver/internal/logging"
	"github.com/loykin/tailserver/internal/server"
)

// PrometheusConfig holds metrics endpoint options.
type PrometheusConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
}

// Config holds all configuration options for the tailserver command.
// Keys match the flag names, so a config file, TAILSERVER_* environment
// variables and flags all address the same fields.
type Config struct {
	// Optional config file path (flag/env only)
	ConfigFile string `mapstructure:"config"`

	LogFile      string        `mapstructure:"logfile"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	Encoding     string        `mapstructure:"encoding"`
	MaxLineBytes int           `mapstructure:"max-line-bytes"`
	Notify       bool          `mapstructure:"notify"`
	QueueSize    int           `mapstructure:"queue-size"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`

	Log        logging.Config   `mapstructure:"log"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// DefaultConfig returns a Config with default values. LogFile and Port have no default.
func DefaultConfig() *Config {
	var sc server.Config
	sc.Default()

	cfg := &Config{
		Host:         sc.Host,
		PollInterval: sc.Follow.PollInterval,
		Encoding:     sc.Follow.Encoding,
		MaxLineBytes: sc.Follow.MaxLineBytes,
		Notify:       sc.Follow.Notify,
		QueueSize:    sc.QueueSize,
		WriteTimeout: sc.WriteTimeout,
		Prometheus:   PrometheusConfig{Enable: false, Addr: ":2112"},
	}
	cfg.Log.Default()
	return cfg
}

// SetupFlags adds all command line flags to the provided cobra command
func (c *Config) SetupFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to config file (yaml/json/toml)")

	f.StringVarP(&c.LogFile, "logfile", "f", c.LogFile, "File to follow (may also be given as the first argument)")
	f.StringVar(&c.Host, "host", c.Host, "Address to bind")
	f.IntVarP(&c.Port, "port", "p", c.Port, "TCP port to listen on (required)")
	f.DurationVarP(&c.PollInterval, "poll-interval", "i", c.PollInterval, "Interval between checks of the file")
	f.StringVar(&c.Encoding, "encoding", c.Encoding, "Text encoding of the file (ascii, utf-8, latin1, ...)")
	f.IntVar(&c.MaxLineBytes, "max-line-bytes", c.MaxLineBytes, "Split lines longer than this many bytes (0 = unlimited)")
	f.BoolVar(&c.Notify, "notify", c.Notify, "Also wake on filesystem notifications")
	f.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "Lines buffered per client before it is dropped")
	f.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "Drop a client whose socket accepts no data for this long (0 = never)")

	f.StringVar(&c.Log.Level, "log.level", c.Log.Level, "Log level (debug, info, warn, error)")
	f.StringVar(&c.Log.Format, "log.format", c.Log.Format, "Log format (text or json)")
	f.StringVar(&c.Log.File, "log.file", c.Log.File, "Write logs to this file instead of stderr")

	f.BoolVar(&c.Prometheus.Enable, "prometheus.enable", c.Prometheus.Enable, "Enable Prometheus metrics HTTP endpoint")
	f.StringVar(&c.Prometheus.Addr, "prometheus.addr", c.Prometheus.Addr, "Prometheus metrics listen address (e.g., :2112)")
}

// LoadFromViper binds flags to viper, reads file/env, and populates the Config fields via mapstructure.
// Precedence: flags, then environment, then config file, then defaults.
func (c *Config) LoadFromViper(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix("TAILSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// TAILSERVER_CONFIG is picked up through the "config" key
	if c.ConfigFile == "" {
		c.ConfigFile = v.GetString("config")
	}
	if c.ConfigFile != "" {
		v.SetConfigFile(c.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v.Unmarshal(c)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.LogFile == "" {
		return fmt.Errorf("logfile is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port is required and must be between 1 and 65535")
	}
	if c.Prometheus.Enable && c.Prometheus.Addr == "" {
		return fmt.Errorf("prometheus.addr must be set when prometheus.enable is true")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	sc := c.ServerConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}

// ServerConfig builds the server configuration from the command options.
func (c *Config) ServerConfig() server.Config {
	var sc server.Config
	sc.Default()
	sc.Host = c.Host
	sc.Port = c.Port
	sc.QueueSize = c.QueueSize
	sc.WriteTimeout = c.WriteTimeout
	sc.Follow.Path = c.LogFile
	sc.Follow.PollInterval = c.PollInterval
	sc.Follow.Encoding = c.Encoding
	sc.Follow.MaxLineBytes = c.MaxLineBytes
	sc.Follow.Notify = c.Notify
	return sc
}
