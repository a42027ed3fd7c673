package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" default:"development"`
	Port     string `env:"PORT" default:"8000"`
	RedisURL string `env:"REDIS_URL" default:"redis://localhost:6379"`

	// Bus topic names. The payloads on the finish topics are opaque; only
	// the topic identifies the track.
	TopicTrack1Finish string `env:"TOPIC_TRACK1_FINISH" default:"sensor/schiene_1"`
	TopicTrack2Finish string `env:"TOPIC_TRACK2_FINISH" default:"sensor/schiene_2"`
	TopicRaceStart    string `env:"TOPIC_RACE_START" default:"carrera/race/start"`

	DashboardTemplate string `env:"DASHBOARD_TEMPLATE" default:"web/templates/dashboard.html"`

	MaxViewers int `env:"MAX_VIEWERS" default:"50"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"REDIS_URL":           cfg.RedisURL,
		"TOPIC_TRACK1_FINISH": cfg.TopicTrack1Finish,
		"TOPIC_TRACK2_FINISH": cfg.TopicTrack2Finish,
		"TOPIC_RACE_START":    cfg.TopicRaceStart,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	// Track dispatch is an exact string match on the topic name, so the
	// finish topics must differ.
	if cfg.TopicTrack1Finish == cfg.TopicTrack2Finish {
		return fmt.Errorf("TOPIC_TRACK1_FINISH and TOPIC_TRACK2_FINISH must differ")
	}

	if cfg.MaxViewers < 1 {
		return fmt.Errorf("MAX_VIEWERS must be at least 1, got %d", cfg.MaxViewers)
	}

	return nil
}
