// Package report aggregates scored transactions into scan reports.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// EngineVersion is stamped into every report's metadata.
const EngineVersion = "fraudscan-1.0"

// Summarize partitions scored transactions on Status. Rows that were never
// scored count toward Total only.
func Summarize(txs []domain.ScoredTransaction) domain.Summary {
	s := domain.Summary{Total: len(txs)}
	for i := range txs {
		switch txs[i].Status {
		case domain.StatusFraud:
			s.Fraud++
		case domain.StatusLegit:
			s.Legitimate++
		}
	}
	return s
}

// Processor assembles scan reports.
type Processor struct {
	// EngineVersion overrides the default version stamp.
	EngineVersion string
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{EngineVersion: EngineVersion}
}

// BuildInput contains everything gathered while scanning one source.
type BuildInput struct {
	// ScanID is pre-assigned for asynchronous scans; empty generates one.
	ScanID   string
	OwnerID  string
	Source   string
	FileType domain.FileType
	TraceID  string

	Transactions   []domain.ScoredTransaction
	RowsRead       int
	RulesEvaluated int

	StartTime   time.Time
	IngestDone  time.Time
	ScoringDone time.Time
}

// Build produces the final report for a scan.
func (p *Processor) Build(input *BuildInput) *domain.ScanReport {
	id := input.ScanID
	if id == "" {
		id = uuid.New().String()
	}

	txs := input.Transactions
	if txs == nil {
		txs = []domain.ScoredTransaction{}
	}

	now := time.Now().UTC()
	if input.StartTime.IsZero() {
		input.StartTime = now
	}

	return &domain.ScanReport{
		ID:           id,
		OwnerID:      input.OwnerID,
		Source:       input.Source,
		FileType:     input.FileType,
		Summary:      Summarize(txs),
		Transactions: txs,
		CreatedAt:    now,
		Metadata: domain.ScanMetadata{
			TraceID:        input.TraceID,
			RowsRead:       input.RowsRead,
			RowsDropped:    max(0, input.RowsRead-len(txs)),
			RulesEvaluated: input.RulesEvaluated,
			IngestMs:       elapsedMs(input.StartTime, input.IngestDone),
			ScoringMs:      elapsedMs(input.IngestDone, input.ScoringDone),
			TotalMs:        time.Since(input.StartTime).Milliseconds(),
			EngineVersion:  p.EngineVersion,
		},
	}
}

func elapsedMs(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Milliseconds()
}

// FraudTransactions returns the transactions flagged as fraud, in order.
func FraudTransactions(r *domain.ScanReport) []domain.ScoredTransaction {
	var flagged []domain.ScoredTransaction
	for _, tx := range r.Transactions {
		if tx.Status == domain.StatusFraud {
			flagged = append(flagged, tx)
		}
	}
	return flagged
}

// CountByRisk returns the number of transactions at the given risk level.
func CountByRisk(r *domain.ScanReport, level domain.RiskLevel) int {
	n := 0
	for _, tx := range r.Transactions {
		if tx.RiskLevel == level {
			n++
		}
	}
	return n
}
