package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/fraudscan/internal/auth"
	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/ingest"
	"github.com/opensource-finance/fraudscan/internal/report"
	"github.com/opensource-finance/fraudscan/internal/scan"
)

// uploadQuotaKey is the cache counter key for per-user upload quotas.
const uploadQuotaKey = "uploads"

// multipartOverhead is allowed on top of the file size limit for form framing.
const multipartOverhead = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	scans   *scan.Service
	auth    *auth.Service
	upload  domain.UploadConfig
	version string
}

// NewHandler creates a new API handler.
func NewHandler(opts Options) *Handler {
	return &Handler{
		repo:    opts.Repository,
		cache:   opts.Cache,
		bus:     opts.EventBus,
		scans:   opts.Scans,
		auth:    opts.Auth,
		upload:  opts.Upload,
		version: opts.Version,
	}
}

// CredentialsRequest is the body of POST /api/register and POST /api/login.
type CredentialsRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RowsRequest is the body of POST /api/evaluate and POST /api/scans/async.
// Cell values may be JSON strings, numbers, booleans or null.
type RowsRequest struct {
	Source       string           `json:"source,omitempty"`
	Transactions []map[string]any `json:"transactions"`
}

// ScanResponse is returned by the synchronous scan endpoints.
type ScanResponse struct {
	Success      bool                       `json:"success"`
	ScanID       string                     `json:"scanId,omitempty"`
	Transactions []domain.ScoredTransaction `json:"transactions"`
	Summary      domain.Summary             `json:"summary"`
	Metadata     *domain.ScanMetadata       `json:"metadata,omitempty"`
}

// Register handles POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	session, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserExists):
			writeError(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, userMessage(err))
		default:
			slog.Error("registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Login handles POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		slog.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Upload handles POST /api/upload: one multipart "file" field holding a
// .csv or .xlsx statement.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusBadRequest, h.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > h.upload.MaxBytes {
		writeError(w, http.StatusBadRequest, h.tooLargeMessage())
		return
	}

	fileType, err := ingest.FileTypeFromName(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file type. Only .xlsx and .csv files are allowed.")
		return
	}

	if !h.allowUpload(w, r, userID) {
		return
	}

	path, err := h.saveUpload(file, filepath.Ext(header.Filename))
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process file")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove upload", "path", path, "error", err)
		}
	}()

	rpt, err := h.scans.ScanFile(ctx, scan.ScanRequest{
		OwnerID:  userID,
		Path:     path,
		FileName: header.Filename,
		FileType: fileType,
		TraceID:  GetTraceID(ctx),
	})
	if err != nil {
		writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse(rpt))
}

// allowUpload enforces the per-user upload quota. Cache failures fail open.
func (h *Handler) allowUpload(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.cache == nil || h.upload.MaxPerHour <= 0 {
		return true
	}

	window := h.upload.Window
	if window <= 0 {
		window = time.Hour
	}

	count, err := h.cache.IncrementCounter(r.Context(), userID, uploadQuotaKey, window)
	if err != nil {
		slog.Warn("upload quota check failed", "user_id", userID, "error", err)
		return true
	}
	if count > int64(h.upload.MaxPerHour) {
		w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
		writeError(w, http.StatusTooManyRequests, domain.ErrQuotaExceeded.Error())
		return false
	}
	return true
}

// saveUpload copies the upload to a uniquely named file in the upload dir.
func (h *Handler) saveUpload(src io.Reader, ext string) (string, error) {
	dir := h.upload.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	dst, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(ext))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File too large. Maximum size is %dMB.", h.upload.MaxBytes/(1024*1024))
}

// Evaluate handles POST /api/evaluate: a synchronous scan of JSON rows.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, source, ok := decodeRows(w, r)
	if !ok {
		return
	}

	rpt, err := h.scans.ScanRows(ctx, scan.RowsRequest{
		OwnerID: GetUserID(ctx),
		Source:  source,
		TraceID: GetTraceID(ctx),
		Rows:    rows,
	})
	if err != nil {
		writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse(rpt))
}

// SubmitScan handles POST /api/scans/async.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "async scanning not available")
		return
	}

	rows, source, ok := decodeRows(w, r)
	if !ok {
		return
	}

	scanID, err := h.scans.SubmitRows(ctx, scan.RowsRequest{
		OwnerID: GetUserID(ctx),
		Source:  source,
		TraceID: GetTraceID(ctx),
		Rows:    rows,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, userMessage(err))
			return
		}
		slog.Error("failed to submit scan", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue scan")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"scanId": scanID,
		"status": "queued",
	})
}

// ListScans handles GET /api/scans.
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	scans, err := h.scans.ListReports(ctx, GetUserID(ctx), limit)
	if err != nil {
		slog.Error("failed to list scans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scans": scans,
		"count": len(scans),
	})
}

// GetScan handles GET /api/scans/{id}.
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scanID := chi.URLParam(r, "id")

	rpt, err := h.scans.GetReport(ctx, GetUserID(ctx), scanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		slog.Error("failed to get scan", "scan_id", scanID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get scan")
		return
	}

	writeJSON(w, http.StatusOK, rpt)
}

// DemoData handles GET /api/demo-data: a fixed statement scored live.
func (h *Handler) DemoData(w http.ResponseWriter, r *http.Request) {
	scored, err := h.scans.Engine().ScoreAll(r.Context(), demoTransactions())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scoring failed")
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Success:      true,
		Transactions: scored,
		Summary:      report.Summarize(scored),
	})
}

func demoTransactions() []domain.Transaction {
	return []domain.Transaction{
		{Date: "2024-01-15", Merchant: "Amazon India", Amount: 2500, Type: "Online"},
		{Date: "2024-01-16", Merchant: "Unknown Merchant", Amount: 75000, Type: "Online"},
		{Date: "2024-01-17", Merchant: "Flipkart", Amount: 1200, Type: "Online"},
		{Date: "2024-01-18", Merchant: "Suspicious Store", Amount: 45000, Type: "POS"},
		{Date: "2024-01-19", Merchant: "Zomato", Amount: 800, Type: "Online"},
		{Date: "2024-01-20", Merchant: "Test Merchant", Amount: 95000, Type: "Online"},
		{Date: "2024-01-21", Merchant: "Swiggy", Amount: 650, Type: "Online"},
		{Date: "2024-01-22", Merchant: "Uber", Amount: 350, Type: "Online"},
	}
}

// Health returns the health status of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"rules":   h.scans.Engine().RulesCount(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// APIHealth is the lightweight liveness probe used by the web client.
func (h *Handler) APIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// decodeRows reads a RowsRequest and converts its cells to text. It writes
// the error response itself and reports false on failure.
func decodeRows(w http.ResponseWriter, r *http.Request) ([]domain.RawRow, string, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req RowsRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, "", false
	}
	if len(req.Transactions) == 0 {
		writeError(w, http.StatusBadRequest, "transactions are required")
		return nil, "", false
	}

	rows := make([]domain.RawRow, len(req.Transactions))
	for i, tx := range req.Transactions {
		row := make(domain.RawRow, len(tx))
		for k, v := range tx {
			row[k] = cellText(v)
		}
		rows[i] = row
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	return rows, source, true
}

// cellText renders a decoded JSON value the way a spreadsheet cell would
// appear as text.
func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(val); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}

func scanResponse(rpt *domain.ScanReport) ScanResponse {
	return ScanResponse{
		Success:      true,
		ScanID:       rpt.ID,
		Transactions: rpt.Transactions,
		Summary:      rpt.Summary,
		Metadata:     &rpt.Metadata,
	}
}

// writeScanError maps pipeline failures to user-facing responses.
func writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoValidRecords):
		writeError(w, http.StatusBadRequest, "No valid transactions found in file")
	case errors.Is(err, domain.ErrUnsupportedFileType):
		writeError(w, http.StatusBadRequest, "Invalid file type. Only .xlsx and .csv files are allowed.")
	case errors.Is(err, domain.ErrMalformedInput):
		writeError(w, http.StatusUnprocessableEntity, "Failed to parse file")
	default:
		slog.Error("scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process file")
	}
}

// userMessage strips the sentinel prefix from a validation error.
func userMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
	if msg == "" {
		return err.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
