package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/cache"
	"github.com/depointe/govforecast/internal/db"
	"github.com/depointe/govforecast/internal/models"
	"github.com/depointe/govforecast/internal/scan"
)

const testAdminSecret = "test-admin-secret"

func TestMain(m *testing.M) {
	os.Setenv("ADMIN_SECRET", testAdminSecret)
	os.Exit(m.Run())
}

type fakeAggregator struct {
	lastScanType string
	result       models.ScanResult
	err          error
}

func (f *fakeAggregator) ScanAllLRAFs(ctx context.Context, scanType string) (models.ScanResult, error) {
	f.lastScanType = scanType
	if f.err != nil {
		return models.ScanResult{Forecasts: []models.ForecastedOpportunity{}, Errors: []string{}}, f.err
	}
	return f.result, nil
}

type fakeAnalyzer struct {
	analysis models.ForecastAnalysis
	err      error
}

func (f *fakeAnalyzer) ForecastRecompetes(ctx context.Context, monthsAhead int) (models.ForecastAnalysis, error) {
	if f.err != nil {
		return models.ForecastAnalysis{ExpiringContracts: []models.ExpiringContract{}}, f.err
	}
	return f.analysis, nil
}

type fakeServerStore struct {
	saved    []models.ForecastedOpportunity
	byAgency map[string][]models.ForecastedOpportunity
	wosb     []models.ForecastedOpportunity
	stats    db.Stats
	err      error
}

func (f *fakeServerStore) SaveForecasts(ctx context.Context, opps []models.ForecastedOpportunity) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, opps...)
	return nil
}

func (f *fakeServerStore) GetByAgency(ctx context.Context, agency string) ([]models.ForecastedOpportunity, error) {
	return f.byAgency[agency], f.err
}

func (f *fakeServerStore) GetWOSBEligible(ctx context.Context) ([]models.ForecastedOpportunity, error) {
	return f.wosb, f.err
}

func (f *fakeServerStore) Stats(ctx context.Context) (db.Stats, error) {
	return f.stats, f.err
}

type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) GetJSON(ctx context.Context, key string, dest any) error {
	raw, ok := f.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func newTestServer(agg ScanRunner, analyzer RecompeteForecaster, store ForecastStore, reportCache ReportCache) *Server {
	scanner := scan.NewScanner(zerolog.Nop())
	return NewServer(scanner, agg, analyzer, store, reportCache, zerolog.Nop())
}

func doJSON(t *testing.T, s *Server, method, path, body string, admin bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if admin {
		req.Header.Set("X-Admin-Secret", testAdminSecret)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	var parsed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		t.Fatalf("unmarshal response: %v: %s", err, rec.Body.String())
	}
	return rec, parsed
}

func TestForecastScanSuccess(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	agg := &fakeAggregator{result: models.ScanResult{
		Success:        true,
		SourcesScanned: 2,
		TotalForecasts: 1,
		Forecasts: []models.ForecastedOpportunity{{
			ID: "DOT_LRAF_1_0", PredictedPostDate: now.AddDate(0, 1, 0),
			EstimatedValue: 500000, WOSBEligibility: models.WOSBEligible,
		}},
		Errors: []string{},
	}}
	analyzer := &fakeAnalyzer{analysis: models.ForecastAnalysis{
		ExpiringContracts: []models.ExpiringContract{{
			ForecastedOpportunity: models.ForecastedOpportunity{
				ID: "DOT_RECOMPETE_1", PredictedPostDate: now.AddDate(0, 2, 0),
				EstimatedValue: 600000,
			},
			RecompeteProbability: 95,
		}},
		TotalValue:     600000,
		ForecastPeriod: "12 months",
	}}
	reportCache := newFakeCache()

	s := newTestServer(agg, analyzer, &fakeServerStore{}, reportCache)
	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/forecast/scan", `{"monthsAhead": 12}`, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true: %s", body["success"], rec.Body.String())
	}
	if body["forecastPeriod"] != "12 months" {
		t.Errorf("forecastPeriod = %v", body["forecastPeriod"])
	}

	fc := body["forecast"].(map[string]any)
	opps := fc["opportunityForecasts"].([]any)
	if len(opps) != 2 {
		t.Errorf("opportunityForecasts = %d, want 2", len(opps))
	}
	periods := fc["periods"].([]any)
	if len(periods) != 4 {
		t.Errorf("periods = %d, want 4", len(periods))
	}
	summary := fc["summary"].(map[string]any)
	if summary["totalPredictedValue"].(float64) != 1100000 {
		t.Errorf("totalPredictedValue = %v", summary["totalPredictedValue"])
	}

	meta := body["metadata"].(map[string]any)
	if meta["forecastCount"].(float64) != 2 {
		t.Errorf("forecastCount = %v", meta["forecastCount"])
	}

	// report published to the cache
	if _, ok := reportCache.data[latestReportKey]; !ok {
		t.Error("latest report not cached")
	}
}

func TestForecastScanAnalyzerFailureStays200(t *testing.T) {
	agg := &fakeAggregator{result: models.ScanResult{Success: true}}
	analyzer := &fakeAnalyzer{err: fmt.Errorf("usaspending unreachable")}

	s := newTestServer(agg, analyzer, &fakeServerStore{}, nil)
	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/forecast/scan", `{}`, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on failure", rec.Code)
	}
	if body["success"] != false {
		t.Error("success should be false")
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Error("failure envelope missing error message")
	}
	if guidance, _ := body["guidance"].(string); guidance == "" {
		t.Error("failure envelope missing guidance")
	}

	fc := body["forecast"].(map[string]any)
	if len(fc["opportunityForecasts"].([]any)) != 0 {
		t.Error("failure envelope should carry empty forecasts")
	}
}

func TestForecastScanPersistFailureStays200(t *testing.T) {
	agg := &fakeAggregator{err: fmt.Errorf(`persist scan batch: relation "forecasts" does not exist`)}
	analyzer := &fakeAnalyzer{analysis: models.ForecastAnalysis{ExpiringContracts: []models.ExpiringContract{}}}

	s := newTestServer(agg, analyzer, &fakeServerStore{}, nil)
	rec, body := doJSON(t, s, http.MethodPost, "/api/v1/forecast/scan", `{}`, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on failure", rec.Code)
	}
	if body["success"] != false {
		t.Error("success should be false when the scan batch cannot be saved")
	}
	if guidance, _ := body["guidance"].(string); !strings.Contains(guidance, "forecasts table") {
		t.Errorf("guidance = %q, want table-creation guidance", guidance)
	}
	fc := body["forecast"].(map[string]any)
	if len(fc["opportunityForecasts"].([]any)) != 0 {
		t.Error("failure envelope should carry empty forecasts")
	}
}

func TestQuickScanUsesCriticalSources(t *testing.T) {
	agg := &fakeAggregator{result: models.ScanResult{Success: true, Errors: []string{}}}
	analyzer := &fakeAnalyzer{analysis: models.ForecastAnalysis{ExpiringContracts: []models.ExpiringContract{}}}

	s := newTestServer(agg, analyzer, &fakeServerStore{}, nil)
	rec, _ := doJSON(t, s, http.MethodGet, "/api/v1/forecast/scan", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if agg.lastScanType != "critical" {
		t.Errorf("scanType = %q, want critical", agg.lastScanType)
	}
}

func TestForecastScanRequiresAdminSecret(t *testing.T) {
	s := newTestServer(&fakeAggregator{}, &fakeAnalyzer{}, &fakeServerStore{}, nil)
	rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/forecast/scan", `{}`, false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestForecastsByAgency(t *testing.T) {
	store := &fakeServerStore{byAgency: map[string][]models.ForecastedOpportunity{
		"Department of Transportation": {{ID: "DOT_LRAF_1_0"}},
	}}
	s := newTestServer(&fakeAggregator{}, &fakeAnalyzer{}, store, nil)

	rec, body := doJSON(t, s, http.MethodGet, "/api/v1/forecasts?agency=Department+of+Transportation", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", body["count"])
	}

	// missing agency param
	rec, _ = doJSON(t, s, http.MethodGet, "/api/v1/forecasts", "", false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without agency", rec.Code)
	}

	// unknown agency returns empty list, not null
	rec, body = doJSON(t, s, http.MethodGet, "/api/v1/forecasts?agency=Nobody", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if forecasts, ok := body["forecasts"].([]any); !ok || len(forecasts) != 0 {
		t.Errorf("forecasts = %v, want []", body["forecasts"])
	}
}

func TestWOSBForecasts(t *testing.T) {
	store := &fakeServerStore{wosb: []models.ForecastedOpportunity{
		{ID: "a", WOSBEligibility: models.WOSBEligible},
		{ID: "b", WOSBEligibility: models.WOSBEligible},
	}}
	s := newTestServer(&fakeAggregator{}, &fakeAnalyzer{}, store, nil)

	rec, body := doJSON(t, s, http.MethodGet, "/api/v1/forecasts/wosb", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestLatestForecast(t *testing.T) {
	reportCache := newFakeCache()
	s := newTestServer(&fakeAggregator{result: models.ScanResult{Success: true, Errors: []string{}}},
		&fakeAnalyzer{analysis: models.ForecastAnalysis{ExpiringContracts: []models.ExpiringContract{}}},
		&fakeServerStore{}, reportCache)

	// nothing published yet
	rec, body := doJSON(t, s, http.MethodGet, "/api/v1/forecast/latest", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["success"] != false {
		t.Error("expected success=false before any scan")
	}

	// publish, then read back
	doJSON(t, s, http.MethodPost, "/api/v1/forecast/scan", `{}`, true)
	rec, body = doJSON(t, s, http.MethodGet, "/api/v1/forecast/latest", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["success"] != true {
		t.Errorf("success = %v after publish: %s", body["success"], rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeAggregator{}, &fakeAnalyzer{}, &fakeServerStore{}, nil)
	rec, _ := doJSON(t, s, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	store := &fakeServerStore{stats: db.Stats{TotalForecasts: 42, TotalValue: 1_000_000}}
	s := newTestServer(&fakeAggregator{}, &fakeAnalyzer{}, store, nil)

	rec, body := doJSON(t, s, http.MethodGet, "/api/v1/stats", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["totalForecasts"].(float64) != 42 {
		t.Errorf("totalForecasts = %v", body["totalForecasts"])
	}
}
