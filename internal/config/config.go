package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Presence PresenceConfig `mapstructure:"presence"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type PresenceConfig struct {
	// Backend is "db" or "redis".
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type RealtimeConfig struct {
	EnforceMembership bool            `mapstructure:"enforce_membership"`
	MaxMessageLen     int             `mapstructure:"max_message_len"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
	// Backpressure is "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`
}

type RateLimitConfig struct {
	Burst    int           `mapstructure:"burst"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of defaults. A .env file
// is loaded into the process environment first; HUDDLE_* variables win over
// the file (HUDDLE_AUTH_JWT_SECRET sets auth.jwt_secret).
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("storage", cfg.Storage.Driver).Str("presence", cfg.Presence.Backend).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "huddle")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "huddle.db")

	v.SetDefault("presence.backend", "db")
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("realtime.enforce_membership", true)
	v.SetDefault("realtime.max_message_len", 4000)
	v.SetDefault("realtime.rate_limit.burst", 10)
	v.SetDefault("realtime.rate_limit.interval", "1s")
	v.SetDefault("realtime.backpressure", "kick")
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("invalid send_buffer %d", c.SendBuffer)
	}
	switch c.Presence.Backend {
	case "db", "redis":
	default:
		return fmt.Errorf("unknown presence backend %q", c.Presence.Backend)
	}
	switch c.Realtime.Backpressure {
	case "kick", "drop":
	default:
		return fmt.Errorf("unknown realtime.backpressure %q", c.Realtime.Backpressure)
	}
	if c.Storage.Driver != "sqlite" {
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" && c.Mode != "debug" {
		return fmt.Errorf("auth.jwt_secret is required in %s mode", c.Mode)
	}
	return nil
}
