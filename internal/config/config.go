package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mickamy/deltatrail/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. DELTATRAIL_STORE_DRIVER.
const EnvPrefix = "DELTATRAIL"

// Config represents the complete CLI configuration
type Config struct {
	Log   logger.Config `mapstructure:"log"`
	Store StoreConfig   `mapstructure:"store"`
	Lock  LockConfig    `mapstructure:"lock"`
	Trail TrailConfig   `mapstructure:"trail"`
}

// StoreConfig selects the blob store the log lives in
type StoreConfig struct {
	Driver string      `mapstructure:"driver"` // memory, fs, redis, sqlite
	Root   string      `mapstructure:"root"`   // fs root directory
	Path   string      `mapstructure:"path"`   // sqlite database file
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents the Redis connection
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Prefix       string        `mapstructure:"prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LockConfig selects how writes are serialized
type LockConfig struct {
	Driver string        `mapstructure:"driver"` // none, local, redis
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

// TrailConfig describes the tracked log
type TrailConfig struct {
	Name       string `mapstructure:"name"`
	Dir        string `mapstructure:"dir"`
	PrimaryKey string `mapstructure:"primary_key"`
	Location   string `mapstructure:"location"` // IANA zone used for day boundaries
}

// LoadConfig reads path (optional) and DELTATRAIL_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides are picked up
// by Unmarshal even when the file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("store.driver", "fs")
	v.SetDefault("store.root", "./data")
	v.SetDefault("store.path", "./data/deltatrail.db")
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.username", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "")
	v.SetDefault("store.redis.dial_timeout", 5*time.Second)
	v.SetDefault("store.redis.read_timeout", 3*time.Second)
	v.SetDefault("store.redis.write_timeout", 3*time.Second)

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.prefix", "")

	v.SetDefault("trail.name", "")
	v.SetDefault("trail.dir", "")
	v.SetDefault("trail.primary_key", "")
	v.SetDefault("trail.location", "Local")
}

// Validate validates the configuration
func (cfg *Config) Validate() error {
	if err := cfg.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch cfg.Store.Driver {
	case "memory":
	case "fs":
		if cfg.Store.Root == "" {
			return fmt.Errorf("store: root is required for fs driver")
		}
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store: path is required for sqlite driver")
		}
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store: redis.addr is required for redis driver")
		}
	default:
		return fmt.Errorf("store: unsupported driver: %s", cfg.Store.Driver)
	}
	switch cfg.Lock.Driver {
	case "none", "local":
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("lock: store.redis.addr is required for redis lock")
		}
	default:
		return fmt.Errorf("lock: unsupported driver: %s", cfg.Lock.Driver)
	}
	if strings.TrimSpace(cfg.Trail.Name) == "" {
		return fmt.Errorf("trail: name is required")
	}
	if _, err := time.LoadLocation(cfg.Trail.Location); err != nil {
		return fmt.Errorf("trail: invalid location %q: %w", cfg.Trail.Location, err)
	}
	return nil
}
