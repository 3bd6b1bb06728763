// Package domain defines the core interfaces and types for FraudScan.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Scan methods require ownerID for strict per-user isolation.
type Repository interface {
	// User operations
	SaveUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Scan reports
	SaveScan(ctx context.Context, ownerID string, report *ScanReport) error
	GetScan(ctx context.Context, ownerID string, scanID string) (*ScanReport, error)
	ListScans(ctx context.Context, ownerID string, limit int) ([]*ScanReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
