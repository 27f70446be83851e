package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type PortRange struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver"` // memory | redis
	Redis  RedisConfig `mapstructure:"redis"`
}

type Config struct {
	Mode            string        `mapstructure:"mode"`
	DeveloperPort   int           `mapstructure:"developer_port"`
	PlayerPort      int           `mapstructure:"player_port"`
	AdvertisedHost  string        `mapstructure:"advertised_host"`
	BundleRoot      string        `mapstructure:"bundle_root"`
	PortRange       PortRange     `mapstructure:"port_range"`
	Store           StoreConfig   `mapstructure:"store"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("developer_port", 8081)
	v.SetDefault("player_port", 8082)
	v.SetDefault("advertised_host", "127.0.0.1")
	v.SetDefault("bundle_root", "./bundles")
	v.SetDefault("port_range.min", 20000)
	v.SetDefault("port_range.max", 30000)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("shutdown_timeout", "5s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PortRange.Min <= 0 || cfg.PortRange.Max <= cfg.PortRange.Min {
		return nil, fmt.Errorf("invalid port_range: [%d, %d)", cfg.PortRange.Min, cfg.PortRange.Max)
	}
	return &cfg, nil
}
