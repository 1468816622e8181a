// Package config loads the marginalia configuration file.
//
// The file is TOML. Environment variables are expanded before decoding, so
// secrets can stay out of the file:
//
//	[cache]
//	redis_addr = "${REDIS_ADDR}"
//
// Values missing from the file keep their defaults. A .env file in the
// working directory is loaded into the environment first when present.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/matzehuels/marginalia/pkg/annotate"
	"github.com/matzehuels/marginalia/pkg/dom"
	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/measure"
	"github.com/matzehuels/marginalia/pkg/schedule"
)

// EnvFile is the dotenv file loaded by [LoadEnv].
const EnvFile = ".env"

// Config is the full configuration.
type Config struct {
	Layout   annotate.Options `toml:"layout"`
	Font     measure.Font     `toml:"font"`
	Document dom.Selectors    `toml:"document"`
	Images   ImagesConfig     `toml:"images"`
	Cache    CacheConfig      `toml:"cache"`
	Server   ServerConfig     `toml:"server"`
}

// ImagesConfig controls image size resolution.
type ImagesConfig struct {
	// Remote allows fetching http(s) images to learn their size.
	Remote      bool `toml:"remote"`
	Concurrency int  `toml:"concurrency"`
}

// CacheConfig selects the artifact cache.
type CacheConfig struct {
	Disabled bool          `toml:"disabled"`
	Dir      string        `toml:"dir"`
	TTL      time.Duration `toml:"ttl"`
	// RedisAddr switches artifact caching to redis when set.
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// ServerConfig configures the live layout server.
type ServerConfig struct {
	Addr          string        `toml:"addr"`
	Dir           string        `toml:"dir"`
	FrameInterval time.Duration `toml:"frame_interval"`
	// Width is the viewport assumed until a client reports its own.
	Width float64 `toml:"width"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.FrameInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Width, validation.Min(0.0)),
	)
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
		validation.Field(&c.RedisDB, validation.Min(0)),
	)
}

// Validate validates the image configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
	)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.Font.Size <= 0 || c.Font.LineHeight <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "font: size and line_height must be positive")
	}
	if err := c.Document.Validate(); err != nil {
		return err
	}
	if err := c.Images.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "images")
	}
	if err := c.Cache.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "cache")
	}
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "server")
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Layout:   annotate.DefaultOptions(),
		Font:     measure.Font{}.WithDefaults(),
		Document: dom.DefaultSelectors(),
		Images: ImagesConfig{
			Concurrency: 8,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			Dir:           ".",
			FrameInterval: schedule.DefaultFrameInterval,
		},
	}
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "marginalia", "config.toml"), nil
}

// Load reads the configuration at path. An empty path reads the default
// location, where a missing file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config")
	}
	return Parse(string(data))
}

// Parse decodes TOML text over the defaults.
func Parse(text string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(os.ExpandEnv(text), cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q", keys[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads [EnvFile] from dir into the environment when it exists.
// Variables already set win.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, EnvFile)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "load %s", path)
	}
	return nil
}
