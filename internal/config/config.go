// Package config builds the process configuration from, in increasing
// precedence: built-in defaults, an optional YAML file, environment
// variables, and CLI flags — the same layered-source pattern
// nabbar-golib's config package documents, implemented here with
// spf13/viper directly since this daemon's configuration surface is a
// handful of scalar fields rather than a pluggable component registry.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the daemon's full process configuration.
type Config struct {
	// ListenPort is the one required positional CLI argument.
	ListenPort int `mapstructure:"listen-port" validate:"gte=1024,lte=65535"`

	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=text json"`

	// AuditAddr overrides LOG_RPC_IP when non-empty.
	AuditAddr string `mapstructure:"audit-addr"`

	// AdminAddr is the C10 admin surface's bind address; empty disables it.
	AdminAddr string `mapstructure:"admin-addr"`

	// ConnIdleTimeoutSeconds bounds a connection's request reads (the
	// header and any operation-specific tail fields); 0 disables it,
	// matching the default of no timeout.
	ConnIdleTimeoutSeconds int `mapstructure:"conn-idle-timeout" validate:"gte=0"`
}

// Defaults returns the built-in baseline, the lowest-precedence layer.
func Defaults() Config {
	return Config{
		LogLevel:               "info",
		LogFormat:              "text",
		AdminAddr:              "",
		ConnIdleTimeoutSeconds: 0,
	}
}

// BindFlags registers the CLI flags layered on top of the one positional
// port argument.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", d.LogFormat, "log format: text, json")
	fs.String("audit-addr", d.AuditAddr, "override LOG_RPC_IP (host:port or host)")
	fs.String("admin-addr", d.AdminAddr, "bind address for the /status and /metrics admin surface; empty disables it")
	fs.Int("conn-idle-timeout", d.ConnIdleTimeoutSeconds, "seconds before an idle connection's request read times out; 0 disables")
}

// Load builds the final Config from the optional file path, environment,
// and already-parsed flags, then validates it. port is the positional
// CLI argument.
func Load(port int, configFile string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("audit-addr", d.AuditAddr)
	v.SetDefault("admin-addr", d.AdminAddr)
	v.SetDefault("conn-idle-timeout", d.ConnIdleTimeoutSeconds)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("PEERD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	cfg := Config{
		ListenPort:             port,
		LogLevel:               v.GetString("log-level"),
		LogFormat:              v.GetString("log-format"),
		AuditAddr:              v.GetString("audit-addr"),
		AdminAddr:              v.GetString("admin-addr"),
		ConnIdleTimeoutSeconds: v.GetInt("conn-idle-timeout"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}
