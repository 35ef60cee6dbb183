package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL       string        `env:"DATABASE_URL"` // empty disables archiving
	QuestionTimeout   time.Duration `env:"QUESTION_TIMEOUT" envDefault:"20s"`
	InviteTTL         time.Duration `env:"INVITE_TTL" envDefault:"15s"`
	RoomIdleTimeout   time.Duration `env:"ROOM_IDLE_TIMEOUT" envDefault:"5m"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"5s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
