package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/respack/internal/packstore"
)

// FileName is the configuration file looked up in the project directory
const FileName = "respack"

// Store kinds
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config represents the respack configuration
type Config struct {
	// Sources are the root documents in merge order
	Sources []string    `mapstructure:"sources"`
	Pack    PackConfig  `mapstructure:"pack"`
	Workers int         `mapstructure:"workers"`
	Log     LogConfig   `mapstructure:"log"`
	Store   StoreConfig `mapstructure:"store"`
	Watch   WatchConfig `mapstructure:"watch"`

	// Dir is the directory relative paths resolve against
	Dir string `mapstructure:"-"`
	// File is the configuration file read, if any
	File string `mapstructure:"-"`
}

// PackConfig represents pack output configuration
type PackConfig struct {
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`
	Level    int    `mapstructure:"level"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects where packs are kept
type StoreConfig struct {
	Kind  string      `mapstructure:"kind"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents the redis pack store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// WatchConfig represents the watch command configuration
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

// Load loads the configuration from respack.yml in dir, or from file when
// it is set. A missing respack.yml in dir is not an error.
func Load(dir, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	// RESPACK_PACK_PATH overrides pack.path
	v.SetEnvPrefix("RESPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.File = v.ConfigFileUsed()
	config.Dir = dir
	if config.File != "" {
		config.Dir = filepath.Dir(config.File)
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	redis := packstore.DefaultRedisConfig()
	v.SetDefault("sources", []string{})
	v.SetDefault("pack.path", "build/resources.pack")
	v.SetDefault("pack.compress", true)
	v.SetDefault("pack.level", 3)
	v.SetDefault("workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.kind", StoreFile)
	v.SetDefault("store.redis.addr", redis.Addr)
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", redis.Key)
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("watch.ignore", []string{"*.swp", "*~"})
}

// SourcePaths returns the sources resolved against Dir
func (c *Config) SourcePaths() []string {
	out := make([]string, len(c.Sources))
	for i, src := range c.Sources {
		out[i] = c.resolve(src)
	}
	return out
}

// PackPath returns the pack path resolved against Dir
func (c *Config) PackPath() string { return c.resolve(c.Pack.Path) }

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// RedisStore converts the redis section for packstore
func (c *Config) RedisStore() packstore.RedisConfig {
	return packstore.RedisConfig{
		Addr:     c.Store.Redis.Addr,
		Password: c.Store.Redis.Password,
		DB:       c.Store.Redis.DB,
		Key:      c.Store.Redis.Key,
	}
}

// FindProjectRoot walks up from dir to the first directory holding a
// respack.yml or respack.yaml
func FindProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, ext := range []string{".yml", ".yaml"} {
			if _, err := os.Stat(filepath.Join(dir, FileName+ext)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yml found", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Store.Kind {
	case StoreFile:
		if cfg.Pack.Path == "" {
			return fmt.Errorf("pack.path must be set for the file store")
		}
	case StoreRedis:
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set for the redis store")
		}
	default:
		return fmt.Errorf("store.kind must be %q or %q, got: %s", StoreFile, StoreRedis, cfg.Store.Kind)
	}
	if cfg.Pack.Level < 1 || cfg.Pack.Level > 4 {
		return fmt.Errorf("pack.level must be between 1 and 4, got: %d", cfg.Pack.Level)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got: %d", cfg.Workers)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got: %s", cfg.Watch.Debounce)
	}
	return nil
}
