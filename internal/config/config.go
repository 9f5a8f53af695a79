package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	WebhookSecret       string `env:"WEBHOOK_SECRET,required"`
	WebhookMinSecretLen int    `env:"WEBHOOK_MIN_SECRET_LEN" envDefault:"16"`
	HandlerTimeoutS     int    `env:"HANDLER_TIMEOUT_S" envDefault:"30"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET,required"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	RetentionDays  int `env:"RETENTION_DAYS" envDefault:"30"`
	JanitorEveryS  int `env:"JANITOR_EVERY_S" envDefault:"3600"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
