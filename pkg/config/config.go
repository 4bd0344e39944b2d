// Package config loads photo-reorder settings from flags, environment, an
// optional config file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PHOTO_REORDER_OUTPUT.
const EnvPrefix = "PHOTO_REORDER"

// Keys shared by flags, environment variables and config files.
const (
	KeyFolder    = "folder"
	KeyOutput    = "output"
	KeyWorkers   = "workers"
	KeyTimezone  = "timezone"
	KeyOverwrite = "overwrite"
	KeyDryRun    = "dry-run"
	KeyVerbose   = "verbose"
)

type Config struct {
	Folder    string
	Output    string
	Workers   int
	Timezone  string
	Overwrite bool
	DryRun    bool
	Verbose   bool
}

// Sources lists where Load looks for values.
type Sources struct {
	// Flags are bound by name; a flag set on the command line wins over everything else.
	Flags *pflag.FlagSet
	// ConfigFile is an optional yaml, json or toml file.
	ConfigFile string
	// DotEnvFile is loaded into the process environment if it exists. Variables
	// already present are kept. Empty means ".env".
	DotEnvFile string
}

// Load resolves the configuration. Precedence, highest first: flags set on the
// command line, environment, config file, .env, defaults.
func Load(src Sources) (*Config, error) {
	dotEnv := src.DotEnvFile
	if dotEnv == "" {
		dotEnv = ".env"
	}
	if err := godotenv.Load(dotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotEnv, err)
	}

	v := viper.New()
	v.SetDefault(KeyWorkers, runtime.NumCPU())
	v.SetDefault(KeyTimezone, "Local")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if src.ConfigFile != "" {
		v.SetConfigFile(src.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", src.ConfigFile, err)
		}
	}

	if src.Flags != nil {
		if err := v.BindPFlags(src.Flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := &Config{
		Folder:    v.GetString(KeyFolder),
		Output:    v.GetString(KeyOutput),
		Workers:   v.GetInt(KeyWorkers),
		Timezone:  v.GetString(KeyTimezone),
		Overwrite: v.GetBool(KeyOverwrite),
		DryRun:    v.GetBool(KeyDryRun),
		Verbose:   v.GetBool(KeyVerbose),
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%s must not be negative, got %d", KeyWorkers, cfg.Workers)
	}
	return cfg, nil
}

// Location resolves Timezone. Empty and "Local" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
		return loc, nil
	}
}
