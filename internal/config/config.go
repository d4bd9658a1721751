// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads the circuitdiag configuration from defaults, config
// files, the environment and command-line flags, in that order of precedence.
package config // import "github.com/toeirei/circuitdiag/internal/config"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/circuitdiag/internal/dispatch"
	"github.com/toeirei/circuitdiag/internal/session"
)

// EnvPrefix is prepended to environment overrides, e.g. CIRCUITDIAG_SSH_PROBE_ATTEMPTS.
const EnvPrefix = "circuitdiag"

// Config is the full application configuration.
type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`
	Language string `mapstructure:"language" yaml:"language"`
	Log      struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`
	SSH      SSH      `mapstructure:"ssh" yaml:"ssh"`
	Dispatch Dispatch `mapstructure:"dispatch" yaml:"dispatch"`
	Metrics  struct {
		Listen string `mapstructure:"listen" yaml:"listen"`
	} `mapstructure:"metrics" yaml:"metrics"`
}

// SSH holds the remote session tunables.
type SSH struct {
	ProbeAttempts     int           `mapstructure:"probe_attempts" yaml:"probe_attempts"`
	ProbeDelay        time.Duration `mapstructure:"probe_delay" yaml:"probe_delay"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`
	ReadChunkSize     int           `mapstructure:"read_chunk_size" yaml:"read_chunk_size"`
	HostKeyPolicy     string        `mapstructure:"host_key_policy" yaml:"host_key_policy"`
}

// Dispatch holds the output bounds and fan-out limit of a dispatch.
type Dispatch struct {
	OutputCeiling int `mapstructure:"output_ceiling" yaml:"output_ceiling"`
	OutputHead    int `mapstructure:"output_head" yaml:"output_head"`
	OutputTail    int `mapstructure:"output_tail" yaml:"output_tail"`
	Concurrency   int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Defaults returns the default key/value map fed to LoadConfig.
func Defaults() map[string]any {
	s := session.DefaultConfig()
	d := dispatch.DefaultConfig()
	return map[string]any{
		"database.type":           "sqlite",
		"database.dsn":            "./circuitdiag.db",
		"language":                "en",
		"log.level":               "info",
		"log.format":              "console",
		"ssh.probe_attempts":      s.ProbeAttempts,
		"ssh.probe_delay":         s.ProbeDelay,
		"ssh.probe_timeout":       s.ProbeTimeout,
		"ssh.auth_timeout":        s.AuthTimeout,
		"ssh.command_timeout":     s.CommandTimeout,
		"ssh.keepalive_interval":  s.KeepaliveInterval,
		"ssh.read_chunk_size":     s.ReadChunkSize,
		"ssh.host_key_policy":     string(s.HostKeyPolicy),
		"dispatch.output_ceiling": d.Ceiling,
		"dispatch.output_head":    d.Head,
		"dispatch.output_tail":    d.Tail,
		"dispatch.concurrency":    d.Concurrency,
		"metrics.listen":          "",
	}
}

// SessionConfig converts the ssh section into a session.Config.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		ProbeAttempts:     c.SSH.ProbeAttempts,
		ProbeDelay:        c.SSH.ProbeDelay,
		ProbeTimeout:      c.SSH.ProbeTimeout,
		AuthTimeout:       c.SSH.AuthTimeout,
		CommandTimeout:    c.SSH.CommandTimeout,
		KeepaliveInterval: c.SSH.KeepaliveInterval,
		ReadChunkSize:     c.SSH.ReadChunkSize,
		HostKeyPolicy:     session.HostKeyPolicy(c.SSH.HostKeyPolicy),
	}
}

// DispatchConfig converts the dispatch section into a dispatch.Config.
func (c Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Ceiling:     c.Dispatch.OutputCeiling,
		Head:        c.Dispatch.OutputHead,
		Tail:        c.Dispatch.OutputTail,
		Concurrency: c.Dispatch.Concurrency,
	}
}

// Validate rejects values the components cannot work with.
func (c Config) Validate() error {
	var errs []error
	switch session.HostKeyPolicy(c.SSH.HostKeyPolicy) {
	case session.HostKeyInsecure, session.HostKeyAcceptNew, session.HostKeyStrict:
	default:
		errs = append(errs, fmt.Errorf("ssh.host_key_policy: unknown policy %q", c.SSH.HostKeyPolicy))
	}
	if c.SSH.ProbeAttempts < 1 {
		errs = append(errs, fmt.Errorf("ssh.probe_attempts must be at least 1, got %d", c.SSH.ProbeAttempts))
	}
	if c.Dispatch.OutputHead < 0 || c.Dispatch.OutputTail < 0 ||
		c.Dispatch.OutputHead+c.Dispatch.OutputTail > c.Dispatch.OutputCeiling {
		errs = append(errs, fmt.Errorf("dispatch: output_head + output_tail (%d) must not exceed output_ceiling (%d)",
			c.Dispatch.OutputHead+c.Dispatch.OutputTail, c.Dispatch.OutputCeiling))
	}
	return errors.Join(errs...)
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Circuitdiag")
		default:
			configDir = "/etc/circuitdiag"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "circuitdiag")
	}

	return filepath.Join(configDir, "circuitdiag.yaml"), nil
}

// LoadConfig builds T from defaults, the first circuitdiag.yaml found (or
// the explicit file), CIRCUITDIAG_* environment variables and the flags of
// cmd. A missing config file is not an error.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("circuitdiag")
	v.SetConfigType("yaml")

	// An explicit file wins over the search paths.
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := bindFlags(v, cmd); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// flagKeys maps persistent root flags onto their config keys.
var flagKeys = map[string]string{
	"db-type":        "database.type",
	"db-dsn":         "database.dsn",
	"lang":           "language",
	"log-level":      "log.level",
	"metrics-listen": "metrics.listen",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// WriteConfigFile marshals c and writes it to the user (or system) config
// path with owner-only permissions.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// The DSN may carry a password.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
