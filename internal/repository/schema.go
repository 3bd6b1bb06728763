package repository

// Schema definitions for the FraudScan database.
// Compatible with both SQLite and PostgreSQL.

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaScans = `
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    source TEXT NOT NULL,
    file_type TEXT NOT NULL,
    total INTEGER NOT NULL,
    fraud INTEGER NOT NULL,
    legitimate INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_owner ON scans(owner_id, created_at);
`

// schemaScanTransactions holds the scored rows of each scan in source order.
// reasons is a JSON array of reason texts.
const schemaScanTransactions = `
CREATE TABLE IF NOT EXISTS scan_transactions (
    scan_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    tx_date TEXT NOT NULL,
    merchant TEXT NOT NULL,
    amount REAL NOT NULL,
    tx_type TEXT NOT NULL,
    status TEXT NOT NULL,
    fraud_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    reasons TEXT NOT NULL,
    PRIMARY KEY (scan_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_scan_transactions_status ON scan_transactions(owner_id, status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaUsers,
		schemaScans,
		schemaScanTransactions,
	}
}
