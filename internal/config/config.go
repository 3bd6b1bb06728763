// Package config assembles domain.Config from defaults, an optional YAML
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Environment variables read by Load.
const (
	EnvTier   = "FRAUDSCAN_TIER"
	EnvConfig = "FRAUDSCAN_CONFIG"
	EnvDebug  = "FRAUDSCAN_DEBUG"
)

// Load reads .env (if present), picks the tier defaults, applies the YAML
// file named by FRAUDSCAN_CONFIG, then environment overrides, and validates.
func Load() (*domain.Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults(os.Getenv(EnvTier))

	if path := os.Getenv(EnvConfig); path != "" {
		if err := ApplyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the base configuration for a tier name.
func Defaults(tier string) *domain.Config {
	if domain.Tier(strings.ToLower(strings.TrimSpace(tier))) == domain.TierPro {
		return domain.ProConfig()
	}
	return domain.DefaultConfig()
}

// ApplyFile overlays the YAML document at path onto cfg. Keys absent from
// the file keep their current values.
func ApplyFile(cfg *domain.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to cfg.
func ApplyEnv(cfg *domain.Config) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	setInt("PORT", &cfg.Server.Port)
	setString("FRAUDSCAN_HOST", &cfg.Server.Host)

	setString("JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("FRAUDSCAN_ADMIN_EMAIL", &cfg.Auth.AdminEmail)
	setString("FRAUDSCAN_ADMIN_PASSWORD", &cfg.Auth.AdminPassword)

	setString("FRAUDSCAN_DB_PATH", &cfg.Repository.SQLitePath)
	setString("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	setInt("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	setString("POSTGRES_USER", &cfg.Repository.PostgresUser)
	setString("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	setString("POSTGRES_DB", &cfg.Repository.PostgresDB)
	setString("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	setString("REDIS_ADDR", &cfg.Cache.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	setString("NATS_URL", &cfg.EventBus.NATSUrl)
	setString("NATS_TOKEN", &cfg.EventBus.NATSToken)
	setString("NATS_QUEUE_GROUP", &cfg.EventBus.NATSQueueGroup)

	setString("FRAUDSCAN_UPLOAD_DIR", &cfg.Upload.Dir)
	var maxMB int
	setInt("FRAUDSCAN_MAX_UPLOAD_MB", &maxMB)
	if maxMB > 0 {
		cfg.Upload.MaxBytes = int64(maxMB) * 1024 * 1024
	}
	setInt("FRAUDSCAN_UPLOADS_PER_HOUR", &cfg.Upload.MaxPerHour)

	setString("FRAUDSCAN_LOG_FORMAT", &cfg.Logging.Format)
	setString("FRAUDSCAN_LOG_LEVEL", &cfg.Logging.Level)
	if v, _ := lookup(EnvDebug); v == "true" {
		cfg.Logging.Level = "debug"
	}

	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
