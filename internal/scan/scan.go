// Package scan runs the ingest, score and report pipeline for one source
// and fans the result out to storage, cache and the event bus.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/ingest"
	"github.com/opensource-finance/fraudscan/internal/metrics"
	"github.com/opensource-finance/fraudscan/internal/report"
	"github.com/opensource-finance/fraudscan/internal/rules"
)

// Scan kinds used as metric labels.
const (
	KindUpload = "upload"
	KindRows   = "rows"
	KindAsync  = "async"
)

var tracer = otel.Tracer("fraudscan-scan")

// Options wires the optional collaborators. A nil collaborator is skipped,
// which is how the offline CLI runs the pipeline.
type Options struct {
	Repository domain.Repository
	Cache      domain.Cache
	EventBus   domain.EventBus
	ReportTTL  time.Duration
}

// Service runs scans.
type Service struct {
	engine    *rules.Engine
	processor *report.Processor
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	reportTTL time.Duration
}

// NewService creates a scan service around a compiled engine.
func NewService(engine *rules.Engine, opts Options) *Service {
	ttl := opts.ReportTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		engine:    engine,
		processor: report.NewProcessor(),
		repo:      opts.Repository,
		cache:     opts.Cache,
		bus:       opts.EventBus,
		reportTTL: ttl,
	}
}

// Engine returns the rule engine the service scores with.
func (s *Service) Engine() *rules.Engine {
	return s.engine
}

// ScanRequest describes an uploaded file on local disk.
type ScanRequest struct {
	// ScanID is optional; one is generated when empty.
	ScanID   string
	OwnerID  string
	Path     string
	FileName string
	FileType domain.FileType
	TraceID  string

	// Delimiter overrides the comma of delimited files; zero keeps it.
	Delimiter rune
}

// RowsRequest describes rows that arrived pre-split, e.g. as JSON.
type RowsRequest struct {
	ScanID  string
	OwnerID string
	Source  string
	TraceID string
	Rows    []domain.RawRow
}

type pipeline struct {
	kind     string
	scanID   string
	ownerID  string
	source   string
	fileType domain.FileType
	traceID  string
	ingest   func() (*ingest.Result, error)
}

// ScanFile ingests, scores and records the file at req.Path.
// Errors wrap domain.ErrMalformedInput or domain.ErrNoValidRecords for bad input.
func (s *Service) ScanFile(ctx context.Context, req ScanRequest) (*domain.ScanReport, error) {
	source := req.FileName
	if source == "" {
		source = req.Path
	}
	return s.run(ctx, pipeline{
		kind:     KindUpload,
		scanID:   req.ScanID,
		ownerID:  req.OwnerID,
		source:   source,
		fileType: req.FileType,
		traceID:  req.TraceID,
		ingest: func() (*ingest.Result, error) {
			return ingest.IngestFile(req.Path, req.FileType, ingest.WithDelimiter(req.Delimiter))
		},
	})
}

// ScanRows scores pre-split rows synchronously.
func (s *Service) ScanRows(ctx context.Context, req RowsRequest) (*domain.ScanReport, error) {
	return s.scanRows(ctx, KindRows, req)
}

func (s *Service) scanRows(ctx context.Context, kind string, req RowsRequest) (*domain.ScanReport, error) {
	return s.run(ctx, pipeline{
		kind:    kind,
		scanID:  req.ScanID,
		ownerID: req.OwnerID,
		source:  req.Source,
		traceID: req.TraceID,
		ingest: func() (*ingest.Result, error) {
			return ingest.IngestRows(req.Rows)
		},
	})
}

// SubmitRows queues rows for asynchronous scanning and returns the scan ID
// the finished report will be stored under.
func (s *Service) SubmitRows(ctx context.Context, req RowsRequest) (string, error) {
	if s.bus == nil {
		return "", errors.New("event bus is not configured")
	}
	if len(req.Rows) == 0 {
		return "", fmt.Errorf("%w: no rows submitted", domain.ErrInvalidInput)
	}
	if req.ScanID == "" {
		req.ScanID = uuid.New().String()
	}

	payload, err := json.Marshal(domain.RowsSubmission{
		ScanID:  req.ScanID,
		OwnerID: req.OwnerID,
		Source:  req.Source,
		TraceID: req.TraceID,
		Rows:    req.Rows,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	if err := s.bus.Publish(ctx, domain.GlobalNamespace, domain.TopicRowsSubmitted, payload); err != nil {
		return "", fmt.Errorf("failed to publish submission: %w", err)
	}
	return req.ScanID, nil
}

// HandleSubmission runs a queued submission under its pre-assigned scan ID.
func (s *Service) HandleSubmission(ctx context.Context, sub *domain.RowsSubmission) (*domain.ScanReport, error) {
	return s.scanRows(ctx, KindAsync, RowsRequest{
		ScanID:  sub.ScanID,
		OwnerID: sub.OwnerID,
		Source:  sub.Source,
		TraceID: sub.TraceID,
		Rows:    sub.Rows,
	})
}

func (s *Service) run(ctx context.Context, p pipeline) (*domain.ScanReport, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "scan."+p.kind,
		trace.WithAttributes(
			attribute.String("scan.source", p.source),
			attribute.String("scan.owner_id", p.ownerID),
		),
	)
	defer span.End()

	_, ingestSpan := tracer.Start(ctx, "scan.ingest")
	res, err := p.ingest()
	ingestSpan.End()
	ingestDone := time.Now()
	if err != nil {
		metrics.RecordScan(p.kind, outcomeFor(err), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Info("scan rejected",
			"source", p.source,
			"owner_id", p.ownerID,
			"error", err,
		)
		return nil, err
	}

	scoreCtx, scoreSpan := tracer.Start(ctx, "scan.score",
		trace.WithAttributes(attribute.Int("scan.transactions", len(res.Transactions))),
	)
	scored, err := s.engine.ScoreAll(scoreCtx, res.Transactions)
	scoreSpan.End()
	if err != nil {
		metrics.RecordScan(p.kind, metrics.OutcomeError, time.Since(start))
		span.RecordError(err)
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	traceID := p.traceID
	if traceID == "" && span.SpanContext().TraceID().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}

	rpt := s.processor.Build(&report.BuildInput{
		ScanID:         p.scanID,
		OwnerID:        p.ownerID,
		Source:         p.source,
		FileType:       p.fileType,
		TraceID:        traceID,
		Transactions:   scored,
		RowsRead:       res.RowsRead,
		RulesEvaluated: s.engine.RulesCount(),
		StartTime:      start,
		IngestDone:     ingestDone,
		ScoringDone:    time.Now(),
	})
	span.SetAttributes(attribute.String("scan.id", rpt.ID))

	if s.repo != nil && p.ownerID != "" {
		if err := s.repo.SaveScan(ctx, p.ownerID, rpt); err != nil {
			metrics.RecordScan(p.kind, metrics.OutcomeError, time.Since(start))
			span.RecordError(err)
			return nil, fmt.Errorf("failed to save scan: %w", err)
		}
	}

	if s.cache != nil && p.ownerID != "" {
		if err := s.cache.SetReport(ctx, p.ownerID, rpt, s.reportTTL); err != nil {
			slog.Warn("failed to cache report", "scan_id", rpt.ID, "error", err)
		}
	}

	s.publishResults(ctx, rpt)

	metrics.RecordScan(p.kind, metrics.OutcomeOK, time.Since(start))
	metrics.RecordSummary(rpt.Summary, rpt.Metadata.RowsDropped)

	slog.Info("scan completed",
		"scan_id", rpt.ID,
		"owner_id", p.ownerID,
		"source", p.source,
		"rows_read", rpt.Metadata.RowsRead,
		"rows_dropped", rpt.Metadata.RowsDropped,
		"total", rpt.Summary.Total,
		"fraud", rpt.Summary.Fraud,
		"duration_ms", rpt.Metadata.TotalMs,
	)

	return rpt, nil
}

// publishResults emits scan.completed and one alert per fraud transaction.
// Publishing is best effort; the scan has already been stored.
func (s *Service) publishResults(ctx context.Context, rpt *domain.ScanReport) {
	if s.bus == nil {
		return
	}

	completed, _ := json.Marshal(domain.ScanCompletedEvent{
		ScanID:  rpt.ID,
		OwnerID: rpt.OwnerID,
		Source:  rpt.Source,
		Summary: rpt.Summary,
	})
	if err := s.bus.Publish(ctx, domain.GlobalNamespace, domain.TopicScanCompleted, completed); err != nil {
		slog.Error("failed to publish scan completion", "scan_id", rpt.ID, "error", err)
	}

	for _, tx := range report.FraudTransactions(rpt) {
		alert, _ := json.Marshal(domain.FraudAlertEvent{
			ScanID:      rpt.ID,
			OwnerID:     rpt.OwnerID,
			Transaction: tx,
		})
		if err := s.bus.Publish(ctx, domain.GlobalNamespace, domain.TopicFraudAlert, alert); err != nil {
			slog.Error("failed to publish alert", "scan_id", rpt.ID, "error", err)
		}
	}
}

// GetReport returns a stored report, reading through the cache.
func (s *Service) GetReport(ctx context.Context, ownerID, scanID string) (*domain.ScanReport, error) {
	if s.cache != nil {
		cached, err := s.cache.GetReport(ctx, ownerID, scanID)
		if err != nil {
			slog.Warn("report cache read failed", "scan_id", scanID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	if s.repo == nil {
		return nil, domain.ErrNotFound
	}

	rpt, err := s.repo.GetScan(ctx, ownerID, scanID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetReport(ctx, ownerID, rpt, s.reportTTL); err != nil {
			slog.Warn("failed to cache report", "scan_id", scanID, "error", err)
		}
	}
	return rpt, nil
}

// ListReports returns the owner's recent scans without transactions.
func (s *Service) ListReports(ctx context.Context, ownerID string, limit int) ([]*domain.ScanReport, error) {
	if s.repo == nil {
		return []*domain.ScanReport{}, nil
	}
	return s.repo.ListScans(ctx, ownerID, limit)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoValidRecords):
		return metrics.OutcomeNoRecords
	case errors.Is(err, domain.ErrMalformedInput), errors.Is(err, domain.ErrUnsupportedFileType):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}
