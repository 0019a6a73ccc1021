package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/lion187chen/socketcan-go/v2/internal/logging"
)

// Config is canctl's effective configuration. Values come from the
// defaults, then the --config file, then CANCTL_* variables, then flags set
// on the command line.
type Config struct {
	Interface   string        `yaml:"interface"`
	FD          bool          `yaml:"fd"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
	LogLevel    string        `yaml:"logLevel"`
	LogFormat   string        `yaml:"logFormat"`
	LogTime     bool          `yaml:"logTime"`
	MetricsAddr string        `yaml:"metricsAddr"`
}

func defaultConfig() Config {
	return Config{
		Interface:   "can0",
		ReadTimeout: time.Second,
		LogLevel:    "info",
		LogFormat:   "text",
		LogTime:     true,
	}
}

// String renders c in the file format, as printed by "canctl config".
func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2))
	if err != nil {
		return fmt.Sprintf("# cannot render configuration: %v\n", err)
	}
	return string(m)
}

// UnmarshalYAML starts from the defaults so keys missing from the file keep
// their default, before env and flags are layered on top.
func (c *Config) UnmarshalYAML(b []byte) error {
	// plain has no UnmarshalYAML, so decoding into it does not recurse.
	type plain Config

	def := plain(defaultConfig())
	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}
	*c = Config(def)
	return nil
}

// defaultConfigPath is read when --config is not given and the file exists.
const defaultConfigPath = "/etc/canctl.yaml"

// configFile picks the file readConfig should load.
func configFile(flagPath string, stat func(string) (os.FileInfo, error)) string {
	if flagPath != "" {
		return flagPath
	}
	if _, err := stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// readConfig loads path over the defaults. An empty path yields the
// defaults.
func readConfig(path string) (Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("error reading the configuration file: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}
	return c, nil
}

// applyEnv maps CANCTL_* variables onto c unless changed reports that the
// matching flag was given. Empty values are ignored.
func (c *Config) applyEnv(changed func(flag string) bool, lookup func(string) (string, bool)) error {
	var firstErr error
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	get := func(flag, key string) (string, bool) {
		if changed(flag) {
			return "", false
		}
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("iface", "CANCTL_INTERFACE"); ok {
		c.Interface = v
	}
	if v, ok := get("fd", "CANCTL_FD"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FD = b
		} else {
			note(fmt.Errorf("invalid CANCTL_FD: %w", err))
		}
	}
	if v, ok := get("read-timeout", "CANCTL_READ_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReadTimeout = d
		} else {
			note(fmt.Errorf("invalid CANCTL_READ_TIMEOUT: %w", err))
		}
	}
	if v, ok := get("log-level", "CANCTL_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("log-format", "CANCTL_LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := get("log-time", "CANCTL_LOG_TIME"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LogTime = b
		} else {
			note(fmt.Errorf("invalid CANCTL_LOG_TIME: %w", err))
		}
	}
	if v, ok := get("metrics-addr", "CANCTL_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return firstErr
}

// validate checks values and ranges only; it opens nothing.
func (c Config) validate() error {
	if c.Interface == "" {
		return errors.New("interface must not be empty")
	}
	if len(c.Interface) > 15 {
		return fmt.Errorf("interface name %q is longer than 15 bytes", c.Interface)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read-timeout must be >= 0 (got %v)", c.ReadTimeout)
	}
	return nil
}
