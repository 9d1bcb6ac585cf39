package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr          string        `env:"HTTP_ADDR" envDefault:":3000"`
	LogLevel          slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	BootstrapRequired bool          `env:"BOOTSTRAP_REQUIRED" envDefault:"true"`
	WSSendBuffer      int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	WSWriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	Cloud             Cloud         `envPrefix:"CLOUD_"`
}

// Cloud holds the credentials and endpoints of the cloud backend.
type Cloud struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"https://api.weixin.qq.com"`
	AppID       string        `env:"APPID,required"`
	Secret      string        `env:"SECRET,required"`
	GrantType   string        `env:"GRANT_TYPE" envDefault:"client_credential"`
	Env         string        `env:"ENV,required"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	MpCodePath  string        `env:"MPCODE_PATH" envDefault:"/pages/io/io"`
	MpCodeWidth int           `env:"MPCODE_WIDTH" envDefault:"640"`
}

// DevCloud configures the local stand-in for the cloud backend.
type DevCloud struct {
	HTTPAddr string        `env:"HTTP_ADDR" envDefault:":8090"`
	LogLevel slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	DBPath   string        `env:"DB_PATH" envDefault:"data/devcloud.db"`
	RedisURL string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	AppID    string        `env:"APPID" envDefault:"dev-app"`
	Secret   string        `env:"SECRET" envDefault:"dev-secret"`
	Env      string        `env:"ENV" envDefault:"dev"`
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"2h"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

func LoadDevCloud() (*DevCloud, error) {
	cfg, err := env.ParseAsWithOptions[DevCloud](env.Options{Prefix: "DEVCLOUD_"})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
