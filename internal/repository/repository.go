// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// DefaultListLimit caps ListScans when the caller passes no limit.
const DefaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveUser stores a new account. Emails are unique case-insensitively.
func (r *SQLRepository) SaveUser(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return fmt.Errorf("%w: user id and email are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		user.ID, user.Name, normalizeEmail(user.Email), user.PasswordHash, user.CreatedAt,
	)
	if r.isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrUserExists, user.Email)
	}
	return err
}

// GetUserByEmail looks up an account by email.
func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE email = ?
	`

	var u domain.User
	err := r.db.QueryRowContext(ctx, r.rebind(query), normalizeEmail(email)).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveScan stores a report and its scored transactions atomically.
func (r *SQLRepository) SaveScan(ctx context.Context, ownerID string, report *domain.ScanReport) error {
	if ownerID == "" {
		return fmt.Errorf("%w: ownerID is required", ErrInvalidInput)
	}
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: scan id is required", ErrInvalidInput)
	}

	metadata, err := json.Marshal(report.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	scanQuery := `
		INSERT INTO scans (
			id, owner_id, source, file_type, total, fraud, legitimate, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(scanQuery),
		report.ID, ownerID, report.Source, string(report.FileType),
		report.Summary.Total, report.Summary.Fraud, report.Summary.Legitimate,
		report.CreatedAt, string(metadata),
	); err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	txQuery := `
		INSERT INTO scan_transactions (
			scan_id, owner_id, seq, tx_date, merchant, amount, tx_type,
			status, fraud_score, risk_level, reasons
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, r.rebind(txQuery))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, st := range report.Transactions {
		reasons, err := json.Marshal(st.Reasons)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			report.ID, ownerID, i,
			st.Date, st.Merchant, st.Amount, st.Type,
			st.Status, st.FraudScore, string(st.RiskLevel), string(reasons),
		); err != nil {
			return fmt.Errorf("failed to insert scan transaction %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetScan retrieves a full report with owner isolation.
func (r *SQLRepository) GetScan(ctx context.Context, ownerID string, scanID string) (*domain.ScanReport, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: ownerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, owner_id, source, file_type, total, fraud, legitimate, created_at, metadata
		FROM scans
		WHERE owner_id = ? AND id = ?
	`

	report, err := scanReport(r.db.QueryRowContext(ctx, r.rebind(query), ownerID, scanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	txQuery := `
		SELECT tx_date, merchant, amount, tx_type, status, fraud_score, risk_level, reasons
		FROM scan_transactions
		WHERE owner_id = ? AND scan_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(txQuery), ownerID, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report.Transactions = make([]domain.ScoredTransaction, 0, report.Summary.Total)
	for rows.Next() {
		var st domain.ScoredTransaction
		var risk, reasons string

		if err := rows.Scan(
			&st.Date, &st.Merchant, &st.Amount, &st.Type,
			&st.Status, &st.FraudScore, &risk, &reasons,
		); err != nil {
			return nil, err
		}

		st.RiskLevel = domain.RiskLevel(risk)
		if err := json.Unmarshal([]byte(reasons), &st.Reasons); err != nil {
			return nil, fmt.Errorf("failed to parse reasons for scan %s: %w", scanID, err)
		}
		report.Transactions = append(report.Transactions, st)
	}

	return report, rows.Err()
}

// ListScans returns the owner's most recent scans without their transactions.
func (r *SQLRepository) ListScans(ctx context.Context, ownerID string, limit int) ([]*domain.ScanReport, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: ownerID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, owner_id, source, file_type, total, fraud, legitimate, created_at, metadata
		FROM scans
		WHERE owner_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*domain.ScanReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.ScanReport, error) {
	var report domain.ScanReport
	var fileType, metadata string
	var createdAt time.Time

	if err := row.Scan(
		&report.ID, &report.OwnerID, &report.Source, &fileType,
		&report.Summary.Total, &report.Summary.Fraud, &report.Summary.Legitimate,
		&createdAt, &metadata,
	); err != nil {
		return nil, err
	}

	report.FileType = domain.FileType(fileType)
	report.CreatedAt = createdAt.UTC()
	if err := json.Unmarshal([]byte(metadata), &report.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata for scan %s: %w", report.ID, err)
	}
	return &report, nil
}

func (r *SQLRepository) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if r.driver == "postgres" {
		return isPostgresUniqueViolation(err)
	}
	return isSQLiteUniqueViolation(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
