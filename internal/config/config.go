package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "GAMINGHUB"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Hub         HubConfig         `mapstructure:"hub"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Redis       RedisConfig       `mapstructure:"redis"`
	CORS        CORSConfig        `mapstructure:"cors"`
}

type HubConfig struct {
	RoomShards        int            `mapstructure:"room_shards"`
	SendBuffer        int            `mapstructure:"send_buffer"`
	EchoToSender      bool           `mapstructure:"echo_to_sender"`
	RequireMembership bool           `mapstructure:"require_membership"`
	TypingTTL         time.Duration  `mapstructure:"typing_ttl"`
	MaxContentLen     int            `mapstructure:"max_content_len"`
	Backpressure      string         `mapstructure:"backpressure"`
	PublicRooms       []string       `mapstructure:"public_rooms"`
	ChatRate          ChatRateConfig `mapstructure:"chat_rate"`
}

type ChatRateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	RequireToken bool   `mapstructure:"require_token"`
	// ServiceKey guards the push endpoints used by other services.
	ServiceKey string `mapstructure:"service_key"`
}

type PersistenceConfig struct {
	PGURL          string        `mapstructure:"pg_url"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	Timeout        time.Duration `mapstructure:"timeout"`
	EnforceRoomACL bool          `mapstructure:"enforce_room_acl"`
}

type RedisConfig struct {
	Addr             string `mapstructure:"addr"`
	DB               int    `mapstructure:"db"`
	NotifyChannel    string `mapstructure:"notify_channel"`
	RoomEventChannel string `mapstructure:"room_event_channel"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")

	v.SetDefault("hub.room_shards", 32)
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.echo_to_sender", false)
	v.SetDefault("hub.require_membership", true)
	v.SetDefault("hub.typing_ttl", "5s")
	v.SetDefault("hub.max_content_len", 2000)
	v.SetDefault("hub.backpressure", "drop")
	v.SetDefault("hub.public_rooms", []string{"global"})
	v.SetDefault("hub.chat_rate.limit", 20)
	v.SetDefault("hub.chat_rate.interval", "10s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.require_token", false)
	v.SetDefault("auth.service_key", "")

	v.SetDefault("persistence.pg_url", "")
	v.SetDefault("persistence.workers", 4)
	v.SetDefault("persistence.queue_size", 1024)
	v.SetDefault("persistence.timeout", "2s")
	v.SetDefault("persistence.enforce_room_acl", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.notify_channel", "gaminghub:notifications")
	v.SetDefault("redis.room_event_channel", "gaminghub:room_events")

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. Any key can
// be overridden from the environment, e.g. GAMINGHUB_HUB_SEND_BUFFER.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	if c.Auth.RequireToken && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.require_token needs auth.jwt_secret")
	}
	switch c.Hub.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("hub.backpressure must be drop or kick, got %q", c.Hub.Backpressure)
	}
	return nil
}
