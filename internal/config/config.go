// Package config loads server settings from the environment.
//
// Variables use the LARP_ prefix with a double underscore between nesting
// levels, e.g. LARP_SERVER__ADDR or LARP_STORE__DRIVER. A .env file in the
// working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LARP_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Env    string       `koanf:"env" validate:"required,oneof=development production test"`
	Server ServerConfig `koanf:"server" validate:"required"`
	Store  StoreConfig  `koanf:"store" validate:"required"`
	Auth   AuthConfig   `koanf:"auth" validate:"required"`
	Log    LogConfig    `koanf:"log"`
}

type ServerConfig struct {
	Addr               string        `koanf:"addr" validate:"required"`
	GRPCAddr           string        `koanf:"grpc_addr"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout        time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	StaticDir          string        `koanf:"static_dir"`
	RateBurst          int           `koanf:"rate_burst" validate:"gt=0"`
	RatePerSec         float64       `koanf:"rate_per_sec" validate:"gt=0"`
	MaxBodyBytes       int64         `koanf:"max_body_bytes" validate:"gt=0"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

type StoreConfig struct {
	Driver      string `koanf:"driver" validate:"required,oneof=memory postgres redis"`
	PostgresDSN string `koanf:"postgres_dsn" validate:"required_if=Driver postgres"`
	RedisURL    string `koanf:"redis_url" validate:"required_if=Driver redis"`
	// AutoMigrate applies pending Postgres migrations at startup.
	AutoMigrate bool `koanf:"auto_migrate"`
}

type AuthConfig struct {
	SessionSecret string        `koanf:"session_secret" validate:"required,min=16"`
	SessionTTL    time.Duration `koanf:"session_ttl" validate:"gt=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the settings used when no variable overrides them.
func Default() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			GRPCAddr:        ":9090",
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "web-client/dist",
			RateBurst:       40,
			RatePerSec:      20,
			MaxBodyBytes:    1 << 20,
		},
		Store: StoreConfig{
			Driver:      DriverMemory,
			AutoMigrate: true,
		},
		Auth: AuthConfig{
			SessionTTL: 365 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads an optional .env file, overlays LARP_* variables on Default and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadEnv()
}

// LoadEnv is Load without the .env file.
func LoadEnv() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and reports the first failing field by its
// environment variable name.
func Validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid config %s: failed %q", envName(fe.Namespace()), fe.Tag())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// envName turns "Config.store.postgres_dsn" into "LARP_STORE__POSTGRES_DSN".
func envName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return envPrefix + strings.ToUpper(strings.Join(parts, "__"))
}
