package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the static startup parameters: everything decided once,
// at process start, from flags, DUFFEL_* environment variables, and
// defaults. Settings that may change while the server runs live in the
// Store instead.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Store  StoreConfig  `mapstructure:"store"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`

	// ConfigFile is the runtime Store's backing file.
	ConfigFile string `mapstructure:"config_file"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
}

// StoreConfig contains the static storage overrides consulted by the
// backend selector.
type StoreConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
	Backend  string `mapstructure:"backend"`
	Prefix   string `mapstructure:"prefix"`
}

// AuthConfig contains the static admin credential. Both fields must be
// set together; leaving both empty disables the access gate.
type AuthConfig struct {
	Username string `mapstructure:"username" validate:"required_with=Password"`
	Password string `mapstructure:"password" validate:"required_with=Username"`
}

// LogConfig contains the initial logging settings; both keys can be
// changed at runtime through the log section of the Store.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	File  string `mapstructure:"file"`
}

// Load resolves the startup configuration: flag values win over
// DUFFEL_* environment variables, which win over defaults. The result
// is validated before being returned.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DUFFEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5984)
	v.SetDefault("log.level", "info")
	v.SetDefault("config_file", "config.json")

	for viperKey, flagName := range map[string]string{
		"server.host":     "host",
		"server.port":     "port",
		"store.dir":       "dir",
		"store.in_memory": "in-memory",
		"store.backend":   "backend",
		"store.prefix":    "prefix",
		"auth.username":   "user",
		"auth.password":   "pass",
		"log.level":       "log-level",
		"log.file":        "log-file",
		"config_file":     "config",
	} {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(viperKey, flag); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flagName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}
