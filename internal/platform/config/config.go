package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the engine process needs from the environment.
type Config struct {
	// DatabaseURL is a lib/pq connection string, e.g.
	// "host=localhost port=5432 user=postgres dbname=lorefall sslmode=disable".
	DatabaseURL string `env:"DATABASE_URL"`

	// TickInterval is how often the scheduler scans for due distributions.
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"60s"`

	// RedisURL enables the per-domain distribution lease when set. Required
	// when running more than one engine instance against the same database.
	RedisURL string `env:"REDIS_URL"`

	// LeaseTTL bounds how long a crashed instance can hold a domain lease.
	LeaseTTL time.Duration `env:"LEASE_TTL" envDefault:"5m"`

	// KafkaBrokers enables the Kafka notification sink when non-empty.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"lorefall.distribution.credits"`

	// OpsAddr is the listen address of the read-only ops HTTP server.
	OpsAddr string `env:"OPS_ADDR" envDefault:":8090"`

	Verbose bool `env:"VERBOSE" envDefault:"false"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
