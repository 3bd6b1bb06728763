package domain

import "time"

// Summary counts scored transactions by verdict.
type Summary struct {
	Total      int `json:"total"`
	Fraud      int `json:"fraud"`
	Legitimate int `json:"legitimate"`
}

// ScanReport is the complete result of scanning one upload or row batch.
type ScanReport struct {
	ID           string              `json:"id"`
	OwnerID      string              `json:"ownerId"`
	Source       string              `json:"source"`
	FileType     FileType            `json:"fileType,omitempty"`
	Summary      Summary             `json:"summary"`
	Transactions []ScoredTransaction `json:"transactions,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	Metadata     ScanMetadata        `json:"metadata"`
}

// ScanMetadata contains processing information.
type ScanMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	RowsRead       int    `json:"rowsRead"`
	RowsDropped    int    `json:"rowsDropped"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	IngestMs       int64  `json:"ingestMs"`
	ScoringMs      int64  `json:"scoringMs"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}
