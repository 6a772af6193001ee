package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultSecret signs client token cookies when no secret is configured.
const DefaultSecret = "change-me"

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ClientTimeout     time.Duration `mapstructure:"client_timeout"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
	LeaveTimeout      time.Duration `mapstructure:"leave_timeout"`
	MailboxSize       int           `mapstructure:"mailbox_size"`

	LobbyBuffer int  `mapstructure:"lobby_buffer"`
	Announce    bool `mapstructure:"announce"`

	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev).
// A missing file is not an error; defaults and RELAY_* env vars apply.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("relay")
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
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == "release" && cfg.Secret == DefaultSecret {
		log.Warn().Str("module", "config").Msg("release mode with the default cookie secret, set secret or RELAY_SECRET")
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Dur("heartbeat_interval", cfg.HeartbeatInterval).
		Dur("client_timeout", cfg.ClientTimeout).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", DefaultSecret)

	v.SetDefault("read_limit", 32768)
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)

	v.SetDefault("heartbeat_interval", "5s")
	v.SetDefault("client_timeout", "10s")
	v.SetDefault("join_timeout", "5s")
	v.SetDefault("leave_timeout", "1s")
	v.SetDefault("mailbox_size", 64)

	v.SetDefault("lobby_buffer", 256)
	v.SetDefault("announce", true)

	v.SetDefault("join_rate_limit", 10)
	v.SetDefault("join_rate_interval", "1m")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return errors.Newf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.ClientTimeout <= c.HeartbeatInterval {
		return errors.Newf("client_timeout (%s) must exceed heartbeat_interval (%s)", c.ClientTimeout, c.HeartbeatInterval)
	}
	if c.JoinTimeout <= 0 || c.LeaveTimeout <= 0 || c.WriteWait <= 0 {
		return errors.New("join_timeout, leave_timeout and write_wait must be positive")
	}
	if c.SendBuffer <= 0 || c.MailboxSize <= 0 || c.LobbyBuffer <= 0 {
		return errors.New("send_buffer, mailbox_size and lobby_buffer must be positive")
	}
	if c.JoinRateLimit <= 0 || c.JoinRateInterval <= 0 {
		return errors.New("join rate limit must be positive")
	}
	return nil
}
