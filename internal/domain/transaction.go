package domain

import "time"

// RawRow is one source row keyed by the header text found in the file.
// Spreadsheet cells are coerced to their formatted text before they land here.
type RawRow map[string]string

// Transaction is the canonical record produced by ingestion.
type Transaction struct {
	Date     string  `json:"date"`
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
}

// ScoredTransaction is a Transaction after fraud scoring.
// Status is overwritten with StatusFraud or StatusLegit.
type ScoredTransaction struct {
	Transaction
	FraudScore int       `json:"fraudScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	Reasons    []string  `json:"reasons"`
}

// Transaction lifecycle tags.
const (
	StatusPending = "Pending"
	StatusFraud   = "Fraud"
	StatusLegit   = "Legit"
)

// DefaultTransactionType is used when no type column is present.
const DefaultTransactionType = "Unknown"

// ISODateLayout is the canonical date format of Transaction.Date.
const ISODateLayout = "2006-01-02"

// ParsedDate returns the calendar date of the transaction when Date holds
// a canonical ISO date. Raw fallback strings report false.
func (t *Transaction) ParsedDate() (time.Time, bool) {
	if t.Date == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(ISODateLayout, t.Date)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// RiskLevel is the coarse risk tier derived from a fraud score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// FileType discriminates the supported upload formats.
type FileType string

const (
	// FileTypeSpreadsheet is an Office Open XML workbook (.xlsx).
	FileTypeSpreadsheet FileType = "xlsx"

	// FileTypeDelimited is comma separated text (.csv).
	FileTypeDelimited FileType = "csv"
)
