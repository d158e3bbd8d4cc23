package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Services struct {
		DispatchServicePort int
		TrackerServicePort  int
		AdminServicePort    int
	}
	JWT struct {
		SecretKey string
	}
	// Engine holds the dispatch and tracking tunables.
	Engine struct {
		FeedRadiusKM          float64       // default proximity feed radius
		GracePeriod           time.Duration // disconnect grace window
		DelegationTimeout     time.Duration // confirm window before escalation
		EscalationSweepPeriod time.Duration // sweeper cadence
		DefaultSurge          float64
	}
}

// LoadFromFile loads config from a YAML file, applies .env/environment
// overrides for secrets, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets a local .env (if present) and the process
// environment override credentials without editing the YAML file.
func applyEnvOverrides(cfg *Config) {
	_ = godotenv.Load() // missing .env is not an error

	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		cfg.RabbitMQ.Password = v
	}
	if v := os.Getenv("RABBITMQ_USER"); v != "" {
		cfg.RabbitMQ.User = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("FEED_RADIUS_KM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Engine.FeedRadiusKM = f
		}
	}
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Services
	if cfg.Services.DispatchServicePort == 0 {
		cfg.Services.DispatchServicePort = 3000
	}
	if cfg.Services.TrackerServicePort == 0 {
		cfg.Services.TrackerServicePort = 3001
	}
	if cfg.Services.AdminServicePort == 0 {
		cfg.Services.AdminServicePort = 3004
	}

	// Engine tunables; the exact values are product decisions, not
	// correctness requirements.
	if cfg.Engine.FeedRadiusKM == 0 {
		cfg.Engine.FeedRadiusKM = 30.0
	}
	if cfg.Engine.GracePeriod == 0 {
		cfg.Engine.GracePeriod = 5 * time.Second
	}
	if cfg.Engine.DelegationTimeout == 0 {
		cfg.Engine.DelegationTimeout = 5 * time.Minute
	}
	if cfg.Engine.EscalationSweepPeriod == 0 {
		cfg.Engine.EscalationSweepPeriod = 30 * time.Second
	}
	if cfg.Engine.DefaultSurge < 1.0 {
		cfg.Engine.DefaultSurge = 1.0
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.DispatchServicePort <= 0 || c.Services.DispatchServicePort > 65535 {
		problems = append(problems, "services.dispatch_service must be in 1..65535")
	}
	if c.Services.TrackerServicePort <= 0 || c.Services.TrackerServicePort > 65535 {
		problems = append(problems, "services.tracker_service must be in 1..65535")
	}
	if c.Services.AdminServicePort <= 0 || c.Services.AdminServicePort > 65535 {
		problems = append(problems, "services.admin_service must be in 1..65535")
	}

	// Engine
	if c.Engine.FeedRadiusKM <= 0 {
		problems = append(problems, "engine.feed_radius_km must be > 0")
	}
	if c.Engine.GracePeriod < time.Second {
		problems = append(problems, "engine.grace_period_seconds must be >= 1")
	}
	if c.Engine.DelegationTimeout < time.Minute {
		problems = append(problems, "engine.delegation_timeout_minutes must be >= 1")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
