package config

import (
	"github.com/caarlos0/env/v11"

	"log"
	"time"
)

type Config struct {
	Database  Database
	Redis     Redis
	Cron      Cron
	Retention Retention
}

type Database struct {
	Path        string        `env:"CALLQ_DB_PATH" envDefault:"callq.db"`
	BusyTimeout time.Duration `env:"CALLQ_DB_BUSY_TIMEOUT" envDefault:"5s"`
}

// Redis configures the spooling engine. An empty Addr disables it:
// spool() then runs attempts synchronously.
type Redis struct {
	Addr          string `env:"CALLQ_REDIS_ADDR"`
	Password      string `env:"CALLQ_REDIS_PASSWORD"`
	DB            int    `env:"CALLQ_REDIS_DB"`
	StreamKey     string `env:"CALLQ_REDIS_STREAM" envDefault:"callq:spool"`
	Group         string `env:"CALLQ_REDIS_GROUP" envDefault:"callq"`
	ScheduledZSet string `env:"CALLQ_REDIS_DELAYED" envDefault:"callq:delayed"`
}

type Cron struct {
	Enabled  bool   `env:"CALLQ_CRON_ENABLED" envDefault:"true"`
	Timezone string `env:"CALLQ_CRON_TZ"`
}

type Retention struct {
	Keep int `env:"CALLQ_RETENTION_KEEP" envDefault:"10000"`
}

func Load() *Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}

	return &c
}
