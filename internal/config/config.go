package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

// Service is the configuration shared by the order and payment services.
type Service struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	AMQPURL     string `env:"AMQP_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	OutboxIntervalMS int `env:"OUTBOX_INTERVAL_MS" envDefault:"1000"`
	OutboxBatchSize  int `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	ConsumerMaxAttempts    int `env:"CONSUMER_MAX_ATTEMPTS" envDefault:"3"`
	ConsumerRetryBackoffMS int `env:"CONSUMER_RETRY_BACKOFF_MS" envDefault:"1000"`

	LeaderElectionIntervalS int `env:"LEADER_ELECTION_INTERVAL_S" envDefault:"10"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func LoadService() (*Service, error) {
	cfg, err := env.ParseAs[Service]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}
	return &cfg, nil
}

// Gateway is the configuration for the API gateway binary.
type Gateway struct {
	Port     int    `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	OrderServiceURL   string `env:"ORDER_SERVICE_URL" envDefault:"http://order:8080"`
	PaymentServiceURL string `env:"PAYMENT_SERVICE_URL" envDefault:"http://payment:8080"`
}

func LoadGateway() (*Gateway, error) {
	cfg, err := env.ParseAs[Gateway]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadGateway: %w", err)
	}
	return &cfg, nil
}
