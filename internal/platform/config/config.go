package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName     string
	HTTPPort        string
	PostgresDSN     string
	TokenSecret     string
	TokenTTL        time.Duration
	SweepInterval   time.Duration
	RelayInterval   time.Duration
	OutboxBatchSize int
}

func Load() (Config, error) {
	viper.AutomaticEnv()
	viper.SetDefault("SERVICE_NAME", "pollhub")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("TOKEN_TTL", "24h")
	viper.SetDefault("SWEEP_INTERVAL", "60s")
	viper.SetDefault("RELAY_INTERVAL", "2s")
	viper.SetDefault("OUTBOX_BATCH_SIZE", 100)

	return Config{
		ServiceName:     viper.GetString("SERVICE_NAME"),
		HTTPPort:        strings.TrimSpace(viper.GetString("HTTP_PORT")),
		PostgresDSN:     viper.GetString("POSTGRES_DSN"),
		TokenSecret:     viper.GetString("TOKEN_SECRET"),
		TokenTTL:        viper.GetDuration("TOKEN_TTL"),
		SweepInterval:   viper.GetDuration("SWEEP_INTERVAL"),
		RelayInterval:   viper.GetDuration("RELAY_INTERVAL"),
		OutboxBatchSize: viper.GetInt("OUTBOX_BATCH_SIZE"),
	}, nil
}
