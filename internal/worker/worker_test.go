package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/rules"
	"github.com/opensource-finance/fraudscan/internal/scan"
)

type stubScanner struct {
	calls atomic.Int32
	err   error
}

func (s *stubScanner) HandleSubmission(ctx context.Context, sub *domain.RowsSubmission) (*domain.ScanReport, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ScanReport{ID: sub.ScanID, OwnerID: sub.OwnerID}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	engine, err := rules.NewEngine(domain.DefaultScoringConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	svc := scan.NewService(engine, scan.Options{EventBus: eventBus})

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, svc)

		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicRowsSubmitted {
			t.Errorf("expected topic %s, got %s", domain.TopicRowsSubmitted, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessSubmission", func(t *testing.T) {
		w := NewWorker(eventBus, svc)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		completed := make(chan domain.ScanCompletedEvent, 1)
		var alerts atomic.Int32

		sub1, _ := eventBus.Subscribe(context.Background(), domain.GlobalNamespace, domain.TopicScanCompleted, func(ctx context.Context, msg *domain.Message) error {
			var ev domain.ScanCompletedEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			completed <- ev
			return nil
		})
		defer sub1.Unsubscribe()
		sub2, _ := eventBus.Subscribe(context.Background(), domain.GlobalNamespace, domain.TopicFraudAlert, func(ctx context.Context, msg *domain.Message) error {
			alerts.Add(1)
			return nil
		})
		defer sub2.Unsubscribe()

		scanID, err := svc.SubmitRows(context.Background(), scan.RowsRequest{
			OwnerID: "user-001",
			Source:  "api",
			Rows: []domain.RawRow{
				{"merchant": "Unknown Merchant", "amount": "75,000", "type": "Online", "date": "2024-01-16"},
				{"merchant": "Amazon India", "amount": "2500", "type": "Online"},
			},
		})
		if err != nil {
			t.Fatalf("SubmitRows failed: %v", err)
		}

		select {
		case ev := <-completed:
			if ev.ScanID != scanID {
				t.Errorf("expected scan ID %s, got %s", scanID, ev.ScanID)
			}
			if ev.OwnerID != "user-001" {
				t.Errorf("expected owner user-001, got %s", ev.OwnerID)
			}
			if ev.Summary.Total != 2 || ev.Summary.Fraud != 1 {
				t.Errorf("unexpected summary %+v", ev.Summary)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for scan completion")
		}

		waitFor(t, func() bool { return alerts.Load() == 1 })
	})

	t.Run("RejectedSubmissionIsDropped", func(t *testing.T) {
		stub := &stubScanner{err: domain.ErrNoValidRecords}
		w := NewWorker(eventBus, stub)

		msg := &domain.Message{ID: "msg-1", Payload: []byte(`{"scanId":"s1","ownerId":"u1","rows":[{"merchant":""}]}`)}
		if err := w.handleMessage(context.Background(), msg); err != nil {
			t.Errorf("expected rejected input to be dropped, got %v", err)
		}
		if stub.calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", stub.calls.Load())
		}
	})

	t.Run("FailureIsReturned", func(t *testing.T) {
		boom := errors.New("database unavailable")
		w := NewWorker(eventBus, &stubScanner{err: boom})

		msg := &domain.Message{ID: "msg-2", Payload: []byte(`{"scanId":"s2","ownerId":"u1","rows":[]}`)}
		if err := w.handleMessage(context.Background(), msg); !errors.Is(err, boom) {
			t.Errorf("expected %v, got %v", boom, err)
		}
	})

	t.Run("BadPayload", func(t *testing.T) {
		stub := &stubScanner{}
		w := NewWorker(eventBus, stub)

		if err := w.handleMessage(context.Background(), &domain.Message{ID: "msg-3", Payload: []byte("{")}); err == nil {
			t.Error("expected error for malformed payload")
		}
		if stub.calls.Load() != 0 {
			t.Error("scanner should not be called for malformed payload")
		}
	})
}
