package scan

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscan/internal/bus"
	"github.com/opensource-finance/fraudscan/internal/cache"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/repository"
	"github.com/opensource-finance/fraudscan/internal/rules"
)

const statementCSV = "\uFEFFDate,Merchant Name,Transaction Amount,Mode\n" +
	"2024-01-16,Unknown Merchant,\"75,000\",Online\n" +
	"2024-01-17,Amazon India,2500,Online\n" +
	",,abc,Card\n"

type harness struct {
	svc   *Service
	repo  domain.Repository
	cache *cache.LRUCache
	bus   *bus.ChannelBus
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	engine, err := rules.NewEngine(domain.DefaultScoringConfig())
	require.NoError(t, err)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "scan.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	svc := NewService(engine, Options{
		Repository: repo,
		Cache:      lru,
		EventBus:   eventBus,
		ReportTTL:  time.Minute,
	})
	return &harness{svc: svc, repo: repo, cache: lru, bus: eventBus}
}

func writeStatement(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestScanFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rpt, err := h.svc.ScanFile(ctx, ScanRequest{
		OwnerID:  "user-1",
		Path:     writeStatement(t, statementCSV),
		FileName: "statement.csv",
		FileType: domain.FileTypeDelimited,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rpt.ID)
	assert.Equal(t, "statement.csv", rpt.Source)
	assert.Equal(t, domain.Summary{Total: 2, Fraud: 1, Legitimate: 1}, rpt.Summary)
	assert.Equal(t, 3, rpt.Metadata.RowsRead)
	assert.Equal(t, 1, rpt.Metadata.RowsDropped)
	assert.Equal(t, 7, rpt.Metadata.RulesEvaluated)

	require.Len(t, rpt.Transactions, 2)
	fraud := rpt.Transactions[0]
	assert.Equal(t, domain.StatusFraud, fraud.Status)
	assert.Equal(t, domain.RiskHigh, fraud.RiskLevel)
	assert.Equal(t, 100, fraud.FraudScore)

	legit := rpt.Transactions[1]
	assert.Equal(t, domain.StatusLegit, legit.Status)
	assert.Equal(t, 0, legit.FraudScore)
	assert.Empty(t, legit.Reasons)

	stored, err := h.repo.GetScan(ctx, "user-1", rpt.ID)
	require.NoError(t, err)
	assert.Equal(t, rpt.Summary, stored.Summary)

	cached, err := h.cache.GetReport(ctx, "user-1", rpt.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, rpt.ID, cached.ID)
}

func TestScanFileErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("NoValidRecords", func(t *testing.T) {
		_, err := h.svc.ScanFile(ctx, ScanRequest{
			OwnerID:  "user-1",
			Path:     writeStatement(t, "merchant,amount\n,100\nShop,abc\n"),
			FileType: domain.FileTypeDelimited,
		})
		assert.ErrorIs(t, err, domain.ErrNoValidRecords)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := h.svc.ScanFile(ctx, ScanRequest{
			OwnerID:  "user-1",
			Path:     writeStatement(t, "not a workbook"),
			FileType: domain.FileTypeSpreadsheet,
		})
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := h.svc.ScanFile(ctx, ScanRequest{
			OwnerID:  "user-1",
			Path:     filepath.Join(t.TempDir(), "missing.csv"),
			FileType: domain.FileTypeDelimited,
		})
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	list, err := h.svc.ListReports(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list, "failed scans must not be stored")
}

func TestScanRowsPublishesEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var completed []domain.ScanCompletedEvent
	var alerts []domain.FraudAlertEvent
	var wg sync.WaitGroup
	wg.Add(2)

	_, err := h.bus.Subscribe(ctx, domain.GlobalNamespace, domain.TopicScanCompleted, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.ScanCompletedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		mu.Lock()
		completed = append(completed, ev)
		mu.Unlock()
		wg.Done()
		return nil
	})
	require.NoError(t, err)

	_, err = h.bus.Subscribe(ctx, domain.GlobalNamespace, domain.TopicFraudAlert, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.FraudAlertEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		mu.Lock()
		alerts = append(alerts, ev)
		mu.Unlock()
		wg.Done()
		return nil
	})
	require.NoError(t, err)

	rpt, err := h.svc.ScanRows(ctx, RowsRequest{
		OwnerID: "user-2",
		Source:  "api",
		Rows: []domain.RawRow{
			{"Merchant": "Unknown Merchant", "Amount": "75,000", "Type": "Online", "Date": "2024-01-16"},
			{"merchant": "Amazon India", "amount": "2500", "type": "Online"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rpt.Summary.Fraud)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for scan events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, 1)
	assert.Equal(t, rpt.ID, completed[0].ScanID)
	assert.Equal(t, "user-2", completed[0].OwnerID)
	assert.Equal(t, rpt.Summary, completed[0].Summary)

	require.Len(t, alerts, 1)
	assert.Equal(t, "Unknown Merchant", alerts[0].Transaction.Merchant)
}

func TestSubmitRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	received := make(chan domain.RowsSubmission, 1)
	_, err := h.bus.Subscribe(ctx, domain.GlobalNamespace, domain.TopicRowsSubmitted, func(ctx context.Context, msg *domain.Message) error {
		var sub domain.RowsSubmission
		if err := json.Unmarshal(msg.Payload, &sub); err != nil {
			return err
		}
		received <- sub
		return nil
	})
	require.NoError(t, err)

	id, err := h.svc.SubmitRows(ctx, RowsRequest{
		OwnerID: "user-3",
		Source:  "api",
		Rows:    []domain.RawRow{{"merchant": "Shop", "amount": "10"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var sub domain.RowsSubmission
	select {
	case sub = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for submission")
	}
	assert.Equal(t, id, sub.ScanID)
	assert.Equal(t, "user-3", sub.OwnerID)

	rpt, err := h.svc.HandleSubmission(ctx, &sub)
	require.NoError(t, err)
	assert.Equal(t, id, rpt.ID)

	stored, err := h.svc.GetReport(ctx, "user-3", id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Summary.Total)

	_, err = h.svc.SubmitRows(ctx, RowsRequest{OwnerID: "user-3"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rpt, err := h.svc.ScanRows(ctx, RowsRequest{
		OwnerID: "user-4",
		Source:  "api",
		Rows:    []domain.RawRow{{"merchant": "Swiggy", "amount": "450"}},
	})
	require.NoError(t, err)

	t.Run("ReadThrough", func(t *testing.T) {
		require.NoError(t, h.cache.Delete(ctx, "user-4", "scan:"+rpt.ID))

		got, err := h.svc.GetReport(ctx, "user-4", rpt.ID)
		require.NoError(t, err)
		assert.Equal(t, rpt.ID, got.ID)

		cached, err := h.cache.GetReport(ctx, "user-4", rpt.ID)
		require.NoError(t, err)
		assert.NotNil(t, cached, "repository hit should repopulate the cache")
	})

	t.Run("OwnerIsolation", func(t *testing.T) {
		_, err := h.svc.GetReport(ctx, "someone-else", rpt.ID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("List", func(t *testing.T) {
		list, err := h.svc.ListReports(ctx, "user-4", 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, rpt.ID, list[0].ID)
	})
}

func TestServiceWithoutCollaborators(t *testing.T) {
	engine, err := rules.NewEngine(domain.DefaultScoringConfig())
	require.NoError(t, err)
	svc := NewService(engine, Options{})
	ctx := context.Background()

	rpt, err := svc.ScanFile(ctx, ScanRequest{
		Path:     writeStatement(t, statementCSV),
		FileType: domain.FileTypeDelimited,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rpt.Summary.Total)

	_, err = svc.GetReport(ctx, "", rpt.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.SubmitRows(ctx, RowsRequest{Rows: []domain.RawRow{{"merchant": "x", "amount": "1"}}})
	assert.Error(t, err)
}
