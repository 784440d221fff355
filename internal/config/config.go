package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode         string `mapstructure:"mode"`
	Port         int    `mapstructure:"port"`
	StaticPath   string `mapstructure:"static_path"`
	TemplatePath string `mapstructure:"template_path"`
	Secret       string `mapstructure:"secret"`

	ReadLimit      int64         `mapstructure:"read_limit"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RoomGrace      time.Duration `mapstructure:"room_grace"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`

	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
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
	v.SetDefault("port", 25565)
	v.SetDefault("static_path", "./web/static")
	v.SetDefault("template_path", "./web/templates")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_interval", "10s")
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("room_grace", "5m")
	v.SetDefault("reap_interval", "1m")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
