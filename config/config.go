// config/config.go
// Package config resolves sensor settings from flags, BOTRADAR_* environment
// variables, an optional .env file and an optional YAML/TOML/JSON config file,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"botradar/fanout"
	"botradar/sensor"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const (
	AppName        = "botradar"
	AppDescription = "watch an interface for high packet rates and unusual UDP fan-out"
	EnvPrefix      = "BOTRADAR"
)

// Defaults.
const (
	DefaultInterface        = "eth0"
	DefaultInterval         = 5.0
	DefaultPPSThreshold     = 5000.0
	DefaultUDPIPThreshold   = 50
	DefaultUDPPortThreshold = 200
	DefaultXDPObject        = "xdp_counter.o"
	DefaultEnvFile          = ".env"
)

// maxIntervalSeconds is the first interval that no longer fits a time.Duration.
const maxIntervalSeconds = float64(math.MaxInt64) / float64(time.Second)

// Counter and fan-out source names.
const (
	CounterSourceGopsutil = "gopsutil"
	CounterSourceXDP      = "xdp"
	FanoutSourceGopsutil  = "gopsutil"
	FanoutSourceSS        = "ss"
	FanoutSourceNone      = "none"
)

// ErrHelp is returned by Load when -h/--help was requested.
var ErrHelp = pflag.ErrHelp

// Config is the resolved configuration.
type Config struct {
	Interface        string        `mapstructure:"interface"`
	Interval         float64       `mapstructure:"interval"`
	PPSThreshold     float64       `mapstructure:"pps-threshold"`
	UDPIPThreshold   int           `mapstructure:"udp-ip-threshold"`
	UDPPortThreshold int           `mapstructure:"udp-port-threshold"`
	LogFile          string        `mapstructure:"log-file"`
	Once             bool          `mapstructure:"once"`
	CounterSource    string        `mapstructure:"counter-source"`
	XDPObject        string        `mapstructure:"xdp-object"`
	FanoutSource     string        `mapstructure:"fanout-source"`
	FanoutTimeout    time.Duration `mapstructure:"fanout-timeout"`
	MetricsAddr      string        `mapstructure:"metrics-addr"`
	TUI              bool          `mapstructure:"tui"`
	Pick             bool          `mapstructure:"pick"`
	LogLevel         string        `mapstructure:"log-level"`
}

func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	f.StringP("interface", "i", DefaultInterface, "network interface to monitor (as listed in /proc/net/dev)")
	f.Float64P("interval", "t", DefaultInterval, "sampling interval in seconds")
	f.Float64("pps-threshold", DefaultPPSThreshold, "alert when combined rx+tx packets per second reach this value (0 disables)")
	f.Int("udp-ip-threshold", DefaultUDPIPThreshold, "alert when unique remote UDP IPs reach this value (0 disables)")
	f.Int("udp-port-threshold", DefaultUDPPortThreshold, "alert when unique remote UDP ports reach this value (0 disables)")
	f.StringP("log-file", "l", "", "append JSON-lines events to this file")
	f.Bool("once", false, "take a single sample and exit")
	f.String("counter-source", CounterSourceGopsutil, "packet counter source: gopsutil or xdp")
	f.String("xdp-object", DefaultXDPObject, "compiled XDP counter object, relative to the executable unless absolute")
	f.String("fanout-source", FanoutSourceGopsutil, "UDP fan-out source: gopsutil, ss or none")
	f.Duration("fanout-timeout", fanout.DefaultTimeout, "give up on a single fan-out enumeration after this long")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")
	f.Bool("tui", false, "show a terminal dashboard instead of printing JSON lines")
	f.Bool("pick", false, "choose the interface interactively")
	f.String("log-level", "info", "diagnostic log level (debug, info, warn, error)")
	f.String("config", "", "optional config file (yaml, toml or json)")
	f.String("env-file", DefaultEnvFile, "optional dotenv file with "+EnvPrefix+"_* variables")

	f.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - %s\n\nUsage:\n  %s [flags]\n\nFlags:\n", AppName, AppDescription, AppName)
		f.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery flag can also be set as %s_<FLAG> with dashes replaced by underscores.\n", EnvPrefix)
	}
	return f
}

// Load parses args and resolves the configuration.
func Load(args []string) (*Config, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	envFile, _ := flags.GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile exports the variables of path without overriding ones already
// set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.Interface) == "" && !c.Pick {
		errs = multierr.Append(errs, errors.New("interface is required"))
	}
	if c.Interval <= 0 || math.IsNaN(c.Interval) || math.IsInf(c.Interval, 0) {
		errs = multierr.Append(errs, fmt.Errorf("interval must be > 0 seconds, got %v", c.Interval))
	} else if c.Interval >= maxIntervalSeconds || c.IntervalDuration() <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("interval must be between 1ns and %.0f seconds, got %v", maxIntervalSeconds, c.Interval))
	}
	if math.IsNaN(c.PPSThreshold) {
		errs = multierr.Append(errs, errors.New("pps threshold must be a number"))
	}
	errs = multierr.Append(errs, c.Thresholds().Validate())

	switch c.CounterSource {
	case CounterSourceGopsutil:
	case CounterSourceXDP:
		if c.XDPObject == "" {
			errs = multierr.Append(errs, errors.New("xdp-object is required with counter-source=xdp"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown counter source %q", c.CounterSource))
	}

	switch c.FanoutSource {
	case FanoutSourceGopsutil, FanoutSourceSS, FanoutSourceNone:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown fan-out source %q", c.FanoutSource))
	}
	if c.FanoutTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("fanout-timeout must be > 0, got %s", c.FanoutTimeout))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log-level: %w", err))
	}
	return errs
}

// Thresholds returns the alert rules.
func (c *Config) Thresholds() sensor.Thresholds {
	return sensor.Thresholds{
		PPS:         c.PPSThreshold,
		UniqueIPs:   c.UDPIPThreshold,
		UniquePorts: c.UDPPortThreshold,
	}
}

// IntervalDuration converts the interval in seconds to a time.Duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

// Sensor returns the engine configuration.
func (c *Config) Sensor() sensor.Config {
	return sensor.Config{
		Interface:  c.Interface,
		Interval:   c.IntervalDuration(),
		Thresholds: c.Thresholds(),
	}
}
