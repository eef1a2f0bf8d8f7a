package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. MJS_MODULES_DIR.
const EnvPrefix = "MJS"

// Config holds the registry configuration
type Config struct {
	// Stores
	ModulesDir string `mapstructure:"modules_dir"`
	CacheDir   string `mapstructure:"cache_dir"`

	// Server
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Manifest building and dependency inference
	Concurrency      int      `mapstructure:"concurrency"`
	ReservedPrefixes []string `mapstructure:"reserved_prefixes"`

	LogLevel string `mapstructure:"log_level"`
}

// Default returns the configuration used when nothing overrides a key.
// The store directories have no default.
func Default() Config {
	return Config{
		Addr:             ":8080",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     60 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		Concurrency:      8,
		ReservedPrefixes: []string{"node:"},
		LogLevel:         "info",
	}
}

// flag name -> config key
var flagKeys = map[string]string{
	"modules-dir":       "modules_dir",
	"cache-dir":         "cache_dir",
	"addr":              "addr",
	"read-timeout":      "read_timeout",
	"write-timeout":     "write_timeout",
	"shutdown-timeout":  "shutdown_timeout",
	"concurrency":       "concurrency",
	"reserved-prefixes": "reserved_prefixes",
	"log-level":         "log_level",
	"config":            "config_file",
}

// RegisterFlags adds one flag per configuration key to fs
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("modules-dir", "", "directory holding {scope}/{name}/{version}.mjs sources")
	fs.String("cache-dir", "", "directory holding built version archives")
	fs.String("addr", d.Addr, "listen address")
	fs.Duration("read-timeout", d.ReadTimeout, "HTTP read timeout")
	fs.Duration("write-timeout", d.WriteTimeout, "HTTP write timeout")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
	fs.Int("concurrency", d.Concurrency, "parallel version reads per manifest")
	fs.StringSlice("reserved-prefixes", d.ReservedPrefixes, "import specifier prefixes never treated as dependencies")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("config", "", "optional config file (yaml, toml or json)")
}

// Load resolves the configuration from, in increasing precedence: defaults,
// an optional config file, a .env file, MJS_* environment variables and
// explicitly set flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("modules_dir", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("addr", d.Addr)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("reserved_prefixes", d.ReservedPrefixes)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("config_file", "")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
				}
			}
		}
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ReservedPrefixes = normalizePrefixes(cfg.ReservedPrefixes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first problem that would stop the server from starting
func (c *Config) Validate() error {
	if err := requireDir("modules_dir", c.ModulesDir); err != nil {
		return err
	}
	if err := requireDir("cache_dir", c.CacheDir); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// ErrMissingDir is returned when a required store directory is unset or absent
var ErrMissingDir = errors.New("required directory missing")

func requireDir(key, path string) error {
	if path == "" {
		return fmt.Errorf("%s is required (flag --%s or %s_%s): %w",
			key, strings.ReplaceAll(key, "_", "-"), EnvPrefix, strings.ToUpper(key), ErrMissingDir)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", key, path, errors.Join(ErrMissingDir, err))
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %s is not a directory: %w", key, path, ErrMissingDir)
	}
	return nil
}

func normalizePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
