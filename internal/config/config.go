// Package config loads studydeck settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/studydeck/internal/srs"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// use a double underscore: STUDYDECK_SERVER__ADDR sets server.addr.
const EnvPrefix = "STUDYDECK_"

// ErrInvalid is returned when the merged configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	DB       string       `koanf:"db" validate:"required"`
	ReposDir string       `koanf:"repos_dir" validate:"required"`
	Log      LogConfig    `koanf:"log"`
	Server   ServerConfig `koanf:"server"`
	SRS      srs.Params   `koanf:"srs"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// DataDir is where the database and cloned repositories live by default.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "studydeck")
}

// DefaultPath is the config file read when none is given explicitly.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "studydeck", "config.yaml")
}

func defaults() map[string]any {
	p := srs.DefaultParams()
	return map[string]any{
		"db":                      filepath.Join(DataDir(), "studydeck.db"),
		"repos_dir":               filepath.Join(DataDir(), "repos"),
		"log.level":               "info",
		"log.format":              "text",
		"server.addr":             "127.0.0.1:8080",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "60s",
		"server.shutdown_timeout": "10s",
		"srs.initial_ease":        p.InitialEase,
		"srs.min_ease":            p.MinEase,
		"srs.failure_penalty":     p.FailurePenalty,
		"srs.success_bonus":       p.SuccessBonus,
		"srs.mastered_interval":   p.MasteredInterval,
		"srs.max_interval":        p.MaxInterval,
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags that
// are not listed here are not configuration.
var flagKeys = map[string]string{
	"db":         "db",
	"repos-dir":  "repos_dir",
	"log-level":  "log.level",
	"log-format": "log.format",
	"addr":       "server.addr",
}

// RegisterFlags adds the global configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to config file (default "+DefaultPath()+")")
	fs.String("db", "", "path to the SQLite database")
	fs.String("repos-dir", "", "directory for cloned deck repositories")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: text or json")
}

// Options controls where Load looks for settings.
type Options struct {
	// ConfigPath is the YAML file to read. When empty, DefaultPath is used
	// if it exists.
	ConfigPath string
	// Flags are applied last. May be nil.
	Flags *pflag.FlagSet
	// DotEnv lists .env files loaded into the environment before reading it.
	// Missing files are ignored.
	DotEnv []string
}

// Load merges all configuration layers and validates the result.
func Load(opts Options) (*Config, error) {
	for _, f := range opts.DotEnv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("setting default %s: %w", key, err)
		}
	}

	path := opts.ConfigPath
	if path == "" && opts.Flags != nil {
		if v, err := opts.Flags.GetString("config"); err == nil {
			path = v
		}
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil || explicit {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.SRS.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// NewLogger builds the structured logger described by c.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
