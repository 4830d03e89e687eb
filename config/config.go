// Package config loads CokeDB's YAML configuration: discover a
// config.yaml by walking up from the working directory, fall back to
// XDG/home locations, bind environment variables, and apply documented
// precedence (env > config file > default). Load returns a *Config value
// rather than a package-level singleton, so multiple sessions in one
// process (or a test) never fight over global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is CokeDB's resolved, typed configuration.
type Config struct {
	// Storage selects the Ordered KV backend: "memory" (default) or
	// "sqlite", backed by kv.NewMemoryStore / kv.OpenFile respectively.
	Storage string
	// DataFile is the SQLite-backed store's path when Storage == "sqlite".
	DataFile string
	// SchemaFile, if set, is a TOML schema-bootstrap file passed to
	// catalog.LoadSchemaFile when the catalog is empty.
	SchemaFile string
	// LogFile, if set, routes structured logs through a rotating
	// lumberjack.Logger instead of stderr (see the logging package).
	LogFile    string
	LogMaxSize int // megabytes, lumberjack's MaxSize

	v *viper.Viper
}

const envPrefix = "COKEDB"

// Load discovers and parses configuration with precedence env > config
// file > default. It searches, in order:
// a `.cokedb/config.yaml` found by walking up from the working directory,
// `$XDG_CONFIG_HOME/cokedb/config.yaml`, and `~/.cokedb/config.yaml`.
// A missing config file is not an error; defaults and env vars still apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path, ok := discoverConfigFile(); ok {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage", "memory")
	v.SetDefault("data-file", "")
	v.SetDefault("schema-file", "")
	v.SetDefault("log-file", "")
	v.SetDefault("log-max-size", 100)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	return &Config{
		Storage:    v.GetString("storage"),
		DataFile:   v.GetString("data-file"),
		SchemaFile: v.GetString("schema-file"),
		LogFile:    v.GetString("log-file"),
		LogMaxSize: v.GetInt("log-max-size"),
		v:          v,
	}, nil
}

// discoverConfigFile implements the three-tier search order described on
// Load, returning the first path that exists.
func discoverConfigFile() (string, bool) {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; {
			candidate := filepath.Join(dir, ".cokedb", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidate := filepath.Join(xdg, "cokedb", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".cokedb", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}

	return "", false
}

// ConfigFileUsed reports the path Load actually read, or "" if none was
// found (defaults and env vars only).
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

// WatchInterval is the minimum time Watch waits between successive
// reload callbacks, debouncing the burst of fsnotify events a single save
// can produce.
const WatchInterval = 250 * time.Millisecond
