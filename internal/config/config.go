// Package config loads runtime configuration via viper, the teacher's
// config stack: defaults set in code, overridden by an optional YAML file,
// overridden again by LABTASKER_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Sweeper SweeperConfig
	Auth    AuthConfig
	Metrics MetricsConfig
	LogLevel string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// MongoConfig points at the document store backing every queue, task, and
// worker — the SPEC_FULL.md expansion replacing the teacher's Redis-backed
// persistence.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig is now scoped to cross-instance event fan-out only: the
// websocket hub's pub/sub transport, not task storage.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SweeperConfig controls the background timeout sweep.
type SweeperConfig struct {
	Interval time.Duration
}

// AuthConfig configures the session-token convenience layered over queue
// password credentials (SPEC_FULL.md §2 item 10).
type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/labtasker")

	setDefaults()

	viper.SetEnvPrefix("LABTASKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 0)

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "labtasker")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 50)
	viper.SetDefault("redis.minidleconns", 5)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("sweeper.interval", 30*time.Second)

	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.sessionttl", 1*time.Hour)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("loglevel", "info")
}
