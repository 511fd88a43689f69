package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Godzillas/alarm-analysis-system-sub000/internal/engine"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/index"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/models"
	"github.com/Godzillas/alarm-analysis-system-sub000/internal/service"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handle, err := engine.NewConfigHandle(models.DefaultDedupConfig())
	if err != nil {
		t.Fatalf("NewConfigHandle: %v", err)
	}
	scorer, err := engine.NewScorer(engine.DefaultSimilarityWeights())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	eng := engine.New(logger, handle, scorer, index.NewMemoryIndex(0))
	return NewRouter(service.NewDedupService(logger, eng), logger)
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *apiError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if envelope.Error != nil {
		t.Fatalf("unexpected error payload: %+v", envelope.Error)
	}
	if err := json.Unmarshal(envelope.Data, into); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if envelope.Error == nil {
		t.Fatalf("expected error payload, got %s", rec.Body.String())
	}
	return *envelope.Error
}

func alertBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":       title,
		"severity":    "high",
		"host":        "web-01",
		"service":     "checkout",
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func TestProcessAlertEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/alerts/process", alertBody("CPU at 87%"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var first struct {
		AlertID     string `json:"alert_id"`
		IsDuplicate bool   `json:"is_duplicate"`
		Fingerprint struct {
			Digest string `json:"digest"`
		} `json:"fingerprint"`
	}
	decodeData(t, rec, &first)
	if first.AlertID == "" {
		t.Fatal("server must allocate an alert id when none is given")
	}
	if first.IsDuplicate {
		t.Fatal("first alert must be new")
	}
	if first.Fingerprint.Digest == "" {
		t.Fatal("response must include the fingerprint")
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/alerts/process", alertBody("CPU at 91%"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var second struct {
		IsDuplicate     bool   `json:"is_duplicate"`
		OriginalAlertID string `json:"original_alert_id"`
	}
	decodeData(t, rec, &second)
	if !second.IsDuplicate || second.OriginalAlertID != first.AlertID {
		t.Fatalf("second alert should duplicate the first, got %+v", second)
	}
}

func TestProcessAlertKeepsCallerID(t *testing.T) {
	router := newTestRouter(t)

	body := alertBody("disk full")
	body["alert_id"] = "caller-42"
	rec := doJSON(t, router, http.MethodPost, "/api/v1/alerts/process", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got struct {
		AlertID string `json:"alert_id"`
	}
	decodeData(t, rec, &got)
	if got.AlertID != "caller-42" {
		t.Fatalf("alert id = %q, want caller-42", got.AlertID)
	}
}

func TestProcessAlertValidation(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		name      string
		mutate    func(map[string]interface{})
		wantField string
	}{
		{"missing title", func(m map[string]interface{}) { delete(m, "title") }, "title"},
		{"bad severity", func(m map[string]interface{}) { m["severity"] = "urgent" }, "severity"},
		{"missing occurred_at", func(m map[string]interface{}) { delete(m, "occurred_at") }, "occurred_at"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := alertBody("disk full")
			tc.mutate(body)
			rec := doJSON(t, router, http.MethodPost, "/api/v1/alerts/process", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if apiErr := decodeError(t, rec); apiErr.Field != tc.wantField {
				t.Fatalf("error field = %q, want %q", apiErr.Field, tc.wantField)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/process", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want 400", rec.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 3; i++ {
		title := "disk full"
		if i == 0 {
			title = "unrelated incident"
		}
		if rec := doJSON(t, router, http.MethodPost, "/api/v1/alerts/process", alertBody(title)); rec.Code != http.StatusOK {
			t.Fatalf("seed alert %d failed: %d", i, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/dedup/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats models.Statistics
	decodeData(t, rec, &stats)
	if stats.TotalProcessed != 3 || stats.TotalDuplicates != 1 {
		t.Fatalf("stats = %d/%d, want 3/1", stats.TotalProcessed, stats.TotalDuplicates)
	}
	if fmt.Sprintf("%.4f", stats.DedupRate) != "0.3333" {
		t.Fatalf("dedup rate = %v", stats.DedupRate)
	}
}

func TestConfigEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/dedup/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var current configPayload
	decodeData(t, rec, &current)
	if current.Strategy != "normal" || current.SimilarityThreshold != 0.85 {
		t.Fatalf("default config = %+v", current)
	}
	if current.TimeWindow != "1h0m0s" {
		t.Fatalf("time window = %q", current.TimeWindow)
	}

	update := configPayload{
		Strategy:            "loose",
		SimilarityThreshold: 0.7,
		TimeWindow:          "30m",
		Enabled:             true,
	}
	rec = doJSON(t, router, http.MethodPut, "/api/v1/dedup/config", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/dedup/config", nil)
	decodeData(t, rec, &current)
	if current.Strategy != "loose" || current.SimilarityThreshold != 0.7 || current.TimeWindow != "30m0s" {
		t.Fatalf("updated config = %+v", current)
	}
}

func TestConfigUpdateValidation(t *testing.T) {
	router := newTestRouter(t)

	update := configPayload{Strategy: "normal", SimilarityThreshold: 1.5, TimeWindow: "30m", Enabled: true}
	rec := doJSON(t, router, http.MethodPut, "/api/v1/dedup/config", update)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range threshold: status = %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Field != "similarity_threshold" {
		t.Fatalf("error field = %q", apiErr.Field)
	}

	update = configPayload{Strategy: "normal", SimilarityThreshold: 0.8, TimeWindow: "soon", Enabled: true}
	rec = doJSON(t, router, http.MethodPut, "/api/v1/dedup/config", update)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad duration: status = %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Field != "time_window" {
		t.Fatalf("error field = %q", apiErr.Field)
	}

	update = configPayload{Strategy: "aggressive", SimilarityThreshold: 0.8, TimeWindow: "30m", Enabled: true}
	rec = doJSON(t, router, http.MethodPut, "/api/v1/dedup/config", update)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown strategy: status = %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Field != "strategy" {
		t.Fatalf("error field = %q, want strategy", apiErr.Field)
	}

	// A rejected update leaves the active config untouched.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/dedup/config", nil)
	var current configPayload
	decodeData(t, rec, &current)
	if current.Strategy != "normal" || current.SimilarityThreshold != 0.85 {
		t.Fatalf("config changed after rejected updates: %+v", current)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status map[string]string
	decodeData(t, rec, &status)
	if status["status"] != "ok" {
		t.Fatalf("health payload = %v", status)
	}
}
