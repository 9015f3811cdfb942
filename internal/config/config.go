package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// MoveValidation selects how submitted moves are checked before relay.
type MoveValidation string

const (
	// ValidationOff relays moves untouched; legality is the client's job.
	ValidationOff MoveValidation = "off"
	// ValidationStrict rejects moves that are illegal for the reconstructed
	// board position.
	ValidationStrict MoveValidation = "strict"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HealthAddr string `yaml:"health_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	ChallengeTTL    time.Duration `yaml:"challenge_ttl"`
	StalenessWindow time.Duration `yaml:"staleness_window"`
	PresenceTick    time.Duration `yaml:"presence_tick"`

	MoveValidation     MoveValidation `yaml:"move_validation"`
	MaxConcurrentGames int            `yaml:"max_concurrent_games"`
}

// Load reads the optional YAML file named by ARENA_CONFIG, then applies
// environment overrides on top. Defaults cover everything else.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		HealthAddr:         ":8081",
		ChallengeTTL:       5 * time.Minute,
		StalenessWindow:    45 * time.Second,
		PresenceTick:       10 * time.Second,
		MoveValidation:     ValidationOff,
		MaxConcurrentGames: 200,
	}

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("HEALTH_ADDR")); v != "" {
		cfg.HealthAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			cfg.ChallengeTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("STALENESS_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.StalenessWindow = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("PRESENCE_TICK")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PresenceTick = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_VALIDATION")); v != "" {
		cfg.MoveValidation = MoveValidation(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}

	switch cfg.MoveValidation {
	case ValidationOff, ValidationStrict:
	default:
		return nil, errors.New("MOVE_VALIDATION must be off or strict")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errors.New("LISTEN_ADDR is required")
	}

	return cfg, nil
}
