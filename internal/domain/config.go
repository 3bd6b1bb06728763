package domain

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the complete FraudScan configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines which backing services are used
	Tier Tier `yaml:"tier"`

	Scoring ScoringConfig `yaml:"scoring"`
	Upload  UploadConfig  `yaml:"upload"`
	Auth    AuthConfig    `yaml:"auth"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// ScoringConfig holds the fraud scoring thresholds and merchant lists.
// Merchant entries are lowercase substrings matched against the merchant name.
type ScoringConfig struct {
	SuspiciousMerchants []string `yaml:"suspiciousMerchants"`
	TrustedMerchants    []string `yaml:"trustedMerchants"`

	FraudThreshold    int `yaml:"fraudThreshold"`
	HighRiskThreshold int `yaml:"highRiskThreshold"`
	MaxScore          int `yaml:"maxScore"`

	// MaxWorkers bounds batch scoring concurrency.
	MaxWorkers int `yaml:"maxWorkers"`

	// Rules overrides the built-in rule set when non-empty.
	Rules []*RuleConfig `yaml:"rules,omitempty"`
}

// UploadConfig holds upload boundary settings.
type UploadConfig struct {
	Dir        string        `yaml:"dir"`
	MaxBytes   int64         `yaml:"maxBytes"`
	MaxPerHour int           `yaml:"maxPerHour"` // 0 disables the quota
	Window     time.Duration `yaml:"window"`
}

// AuthConfig holds token and account settings.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwtSecret"`
	TokenTTL      time.Duration `yaml:"tokenTtl"`
	BcryptCost    int           `yaml:"bcryptCost"`
	AdminEmail    string        `yaml:"adminEmail"`
	AdminPassword string        `yaml:"adminPassword"`
	AdminName     string        `yaml:"adminName"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultSuspiciousMerchants is the built-in merchant blocklist.
func DefaultSuspiciousMerchants() []string {
	return []string{"unknown merchant", "test merchant", "suspicious store", "fake", "scam"}
}

// DefaultTrustedMerchants is the built-in merchant allowlist.
func DefaultTrustedMerchants() []string {
	return []string{"amazon", "flipkart", "zomato", "swiggy", "uber", "ola", "paytm", "big bazaar", "reliance", "tata"}
}

// DefaultScoringConfig returns the standard thresholds and merchant lists.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		SuspiciousMerchants: DefaultSuspiciousMerchants(),
		TrustedMerchants:    DefaultTrustedMerchants(),
		FraudThreshold:      50,
		HighRiskThreshold:   75,
		MaxScore:            100,
		MaxWorkers:          8,
	}
}

// RiskLevelFor maps a score to its tier.
func (c ScoringConfig) RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= c.HighRiskThreshold:
		return RiskHigh
	case score >= c.FraudThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Validate checks that the thresholds order the tiers consistently: every
// High score is Fraud and every Fraud score is at least Medium.
func (c ScoringConfig) Validate() error {
	if c.FraudThreshold <= 0 || c.HighRiskThreshold < c.FraudThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 < fraud (%d) <= high risk (%d)",
			ErrInvalidInput, c.FraudThreshold, c.HighRiskThreshold)
	}
	if c.MaxScore < c.HighRiskThreshold {
		return fmt.Errorf("%w: max score %d below high risk threshold %d", ErrInvalidInput, c.MaxScore, c.HighRiskThreshold)
	}
	return nil
}

// IsFraud reports whether a score reaches the fraud threshold.
func (c ScoringConfig) IsFraud(score int) bool {
	return score >= c.FraudThreshold
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier:    TierCommunity,
		Scoring: DefaultScoringConfig(),
		Upload: UploadConfig{
			Dir:      "uploads",
			MaxBytes: 10 * 1024 * 1024,
			Window:   time.Hour,
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
			AdminName:  "Admin User",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudscan.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ReportTTL:    30 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudscan",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraudscan",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ReportTTL:      30 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidInput, c.Server.Port)
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("%w: upload max bytes must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("%w: JWT secret is required", ErrInvalidInput)
	}
	return nil
}
