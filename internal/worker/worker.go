// Package worker consumes queued row submissions from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/scan"
)

// Scanner runs a queued submission. *scan.Service satisfies it.
type Scanner interface {
	HandleSubmission(ctx context.Context, sub *domain.RowsSubmission) (*domain.ScanReport, error)
}

var _ Scanner = (*scan.Service)(nil)

// Worker processes row submissions asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	scanner Scanner

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Namespace to listen on; empty means domain.GlobalNamespace.
	Namespace string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, scanner Scanner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		scanner: scanner,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the submission topic.
func (w *Worker) Start(cfg Config) error {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = domain.GlobalNamespace
	}

	sub, err := w.bus.Subscribe(w.ctx, namespace, domain.TopicRowsSubmitted, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started",
		"namespace", namespace,
		"topic", domain.TopicRowsSubmitted,
	)
	return nil
}

// handleMessage decodes a submission and scans it under its pre-assigned ID.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var sub domain.RowsSubmission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		slog.Error("failed to parse submission",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if sub.TraceID == "" {
		sub.TraceID = msg.ID
	}

	slog.Debug("processing submission",
		"scan_id", sub.ScanID,
		"owner_id", sub.OwnerID,
		"rows", len(sub.Rows),
	)

	rpt, err := w.scanner.HandleSubmission(ctx, &sub)
	if err != nil {
		// Bad input will never succeed on redelivery; log and drop it.
		if errors.Is(err, domain.ErrNoValidRecords) || errors.Is(err, domain.ErrMalformedInput) {
			slog.Warn("submission rejected",
				"scan_id", sub.ScanID,
				"owner_id", sub.OwnerID,
				"error", err,
			)
			return nil
		}
		slog.Error("submission failed",
			"scan_id", sub.ScanID,
			"error", err,
		)
		return err
	}

	slog.Info("submission processed",
		"scan_id", rpt.ID,
		"owner_id", sub.OwnerID,
		"fraud", rpt.Summary.Fraud,
		"total", rpt.Summary.Total,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
