package forecast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/models"
	"github.com/depointe/govforecast/internal/scan"
)

// fakeScanner returns canned opportunities per source ID and fails for
// sources listed in failing.
type fakeScanner struct {
	results map[string][]models.ForecastedOpportunity
	failing map[string]bool
}

func (f *fakeScanner) Scan(ctx context.Context, source scan.Source) ([]models.ForecastedOpportunity, error) {
	if f.failing[source.ID] {
		return nil, fmt.Errorf("fetch %s: connection timed out", source.ID)
	}
	return f.results[source.ID], nil
}

func testRegistry(n int) *scan.Registry {
	reg := &scan.Registry{}
	for i := 0; i < n; i++ {
		reg.Sources = append(reg.Sources, scan.Source{
			ID:         fmt.Sprintf("source_%d", i),
			Agency:     fmt.Sprintf("Agency %d", i),
			AgencyCode: fmt.Sprintf("AG%d", i),
			URL:        fmt.Sprintf("https://agency%d.gov/forecast", i),
			Priority:   models.PriorityHigh,
			Active:     true,
			Strategy:   "html_table",
		})
	}
	return reg
}

func oppAt(id string, postDate time.Time) models.ForecastedOpportunity {
	return models.ForecastedOpportunity{
		ID:                id,
		PredictedPostDate: postDate,
		EstimatedValue:    500000,
		WOSBEligibility:   models.WOSBUnknown,
	}
}

func TestScanAllLRAFsPartialFailure(t *testing.T) {
	reg := testRegistry(5)
	scanner := &fakeScanner{
		results: map[string][]models.ForecastedOpportunity{
			"source_0": {oppAt("a", time.Now())},
			"source_2": {oppAt("b", time.Now()), oppAt("c", time.Now())},
			"source_4": {oppAt("d", time.Now())},
		},
		failing: map[string]bool{"source_1": true, "source_3": true},
	}
	store := &fakeStore{}

	agg := NewAggregator(reg, scanner, store, zerolog.Nop())
	result, err := agg.ScanAllLRAFs(context.Background(), "")
	if err != nil {
		t.Fatalf("ScanAllLRAFs: %v", err)
	}

	if !result.Success {
		t.Error("Success = false, want true despite partial failure")
	}
	if result.SourcesScanned != 3 {
		t.Errorf("SourcesScanned = %d, want 3", result.SourcesScanned)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(result.Errors))
	}
	if result.TotalForecasts != 4 {
		t.Errorf("TotalForecasts = %d, want 4", result.TotalForecasts)
	}
	for _, msg := range result.Errors {
		if msg != "Agency 1: fetch source_1: connection timed out" &&
			msg != "Agency 3: fetch source_3: connection timed out" {
			t.Errorf("unexpected error message %q", msg)
		}
	}

	// one batch persist after the loop
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 persisted batch, got %d", len(store.saved))
	}
	if len(store.saved[0]) != 4 {
		t.Errorf("persisted %d forecasts, want 4", len(store.saved[0]))
	}
}

func TestScanAllLRAFsAllSourcesFail(t *testing.T) {
	reg := testRegistry(3)
	scanner := &fakeScanner{failing: map[string]bool{
		"source_0": true, "source_1": true, "source_2": true,
	}}

	agg := NewAggregator(reg, scanner, nil, zerolog.Nop())
	result, err := agg.ScanAllLRAFs(context.Background(), "")
	if err != nil {
		t.Fatalf("ScanAllLRAFs: %v", err)
	}

	if !result.Success {
		t.Error("Success = false; a completed batch is a success even with zero data")
	}
	if result.SourcesScanned != 0 {
		t.Errorf("SourcesScanned = %d, want 0", result.SourcesScanned)
	}
	if len(result.Errors) != 3 {
		t.Errorf("len(Errors) = %d, want 3", len(result.Errors))
	}
	if len(result.Forecasts) != 0 {
		t.Errorf("Forecasts = %d, want 0", len(result.Forecasts))
	}
}

func TestScanAllLRAFsNoActiveSources(t *testing.T) {
	reg := &scan.Registry{}
	agg := NewAggregator(reg, &fakeScanner{}, nil, zerolog.Nop())

	result, err := agg.ScanAllLRAFs(context.Background(), "")
	if err != nil {
		t.Fatalf("ScanAllLRAFs: %v", err)
	}

	if !result.Success {
		t.Error("Success = false")
	}
	if result.SourcesScanned != 0 || result.TotalForecasts != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if result.Forecasts == nil || result.Errors == nil {
		t.Error("Forecasts and Errors must serialize as [] not null")
	}
}

func TestScanAllLRAFsCriticalOnly(t *testing.T) {
	reg := testRegistry(3)
	reg.Sources[1].Priority = models.PriorityCritical

	scanner := &fakeScanner{results: map[string][]models.ForecastedOpportunity{
		"source_0": {oppAt("a", time.Now())},
		"source_1": {oppAt("b", time.Now())},
		"source_2": {oppAt("c", time.Now())},
	}}

	agg := NewAggregator(reg, scanner, nil, zerolog.Nop())
	result, err := agg.ScanAllLRAFs(context.Background(), "critical")
	if err != nil {
		t.Fatalf("ScanAllLRAFs: %v", err)
	}

	if result.SourcesScanned != 1 {
		t.Errorf("SourcesScanned = %d, want 1 (critical only)", result.SourcesScanned)
	}
	if result.TotalForecasts != 1 || result.Forecasts[0].ID != "b" {
		t.Errorf("expected only the critical source's forecast, got %+v", result.Forecasts)
	}
}

func TestScanAllLRAFsStoreFailureFailsCall(t *testing.T) {
	reg := testRegistry(2)
	scanner := &fakeScanner{results: map[string][]models.ForecastedOpportunity{
		"source_0": {oppAt("a", time.Now())},
		"source_1": {oppAt("b", time.Now())},
	}}
	store := &fakeStore{err: fmt.Errorf(`relation "forecasts" does not exist`)}

	agg := NewAggregator(reg, scanner, store, zerolog.Nop())
	result, err := agg.ScanAllLRAFs(context.Background(), "")

	if err == nil {
		t.Fatal("expected error; a scan whose results cannot be saved is incomplete")
	}
	if result.Success {
		t.Error("Success = true after failed persist")
	}
	if len(result.Forecasts) != 0 {
		t.Errorf("Forecasts = %d, want 0; callers must not see unsaved data", len(result.Forecasts))
	}
}

func TestMergeAndSortNonDecreasing(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scanned := []models.ForecastedOpportunity{
		oppAt("s1", base.AddDate(0, 2, 0)),
		oppAt("s2", base.AddDate(0, 0, 10)),
	}
	contracts := []models.ExpiringContract{
		{ForecastedOpportunity: oppAt("c1", base.AddDate(0, 1, 0))},
		{ForecastedOpportunity: oppAt("c2", base.AddDate(0, 0, 5))},
	}

	merged := MergeAndSort(scanned, contracts)

	if len(merged) != 4 {
		t.Fatalf("len = %d, want 4", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].PredictedPostDate.Before(merged[i-1].PredictedPostDate) {
			t.Errorf("out of order at %d", i)
		}
	}
	wantOrder := []string{"c2", "s2", "c1", "s1"}
	for i, want := range wantOrder {
		if merged[i].ID != want {
			t.Errorf("merged[%d].ID = %q, want %q", i, merged[i].ID, want)
		}
	}
}

func TestMergeAndSortStableOnTies(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scanned := []models.ForecastedOpportunity{
		oppAt("first", base),
		oppAt("second", base),
	}
	contracts := []models.ExpiringContract{
		{ForecastedOpportunity: oppAt("third", base)},
	}

	merged := MergeAndSort(scanned, contracts)
	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if merged[i].ID != want {
			t.Errorf("merged[%d].ID = %q, want %q", i, merged[i].ID, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	opps := []models.ForecastedOpportunity{
		{EstimatedValue: 100, WOSBEligibility: models.WOSBEligible, ForecastConfidence: models.ConfidenceHigh},
		{EstimatedValue: 200, WOSBEligibility: models.WOSBIneligible, ForecastConfidence: models.ConfidenceMedium},
		{EstimatedValue: 300, WOSBEligibility: models.WOSBEligible, ForecastConfidence: models.ConfidenceLow},
	}

	s := Summarize(opps)
	if s.TotalPredictedValue != 600 {
		t.Errorf("TotalPredictedValue = %v, want 600", s.TotalPredictedValue)
	}
	if s.WOSBOpportunities != 2 {
		t.Errorf("WOSBOpportunities = %d, want 2", s.WOSBOpportunities)
	}
	if s.HighConfidenceForecasts != 1 {
		t.Errorf("HighConfidenceForecasts = %d, want 1", s.HighConfidenceForecasts)
	}
}

func TestQuarterlyBreakdownCompleteness(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	var forecasts []models.ForecastedOpportunity
	for i := 0; i < 12; i++ {
		forecasts = append(forecasts, oppAt(fmt.Sprintf("f%d", i), now.AddDate(0, i, 1)))
	}
	// outside the window
	forecasts = append(forecasts, oppAt("past", now.AddDate(0, 0, -1)))
	forecasts = append(forecasts, oppAt("far", now.AddDate(0, 13, 0)))

	buckets := QuarterlyBreakdown(forecasts, 12, now)

	if len(buckets) != 4 {
		t.Fatalf("len(buckets) = %d, want 4", len(buckets))
	}

	appearances := make(map[string]int)
	for _, b := range buckets {
		for _, f := range b.Forecasts {
			appearances[f.ID]++
		}
	}

	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("f%d", i)
		if appearances[id] != 1 {
			t.Errorf("%s appears %d times, want exactly 1", id, appearances[id])
		}
	}
	if appearances["past"] != 0 || appearances["far"] != 0 {
		t.Error("out-of-window forecasts leaked into buckets")
	}

	// contiguity: each bucket starts where the previous ends
	for i := 1; i < len(buckets); i++ {
		if !buckets[i].StartDate.Equal(buckets[i-1].EndDate) {
			t.Errorf("gap between buckets %d and %d", i-1, i)
		}
	}
}

func TestQuarterlyBreakdownBucketCount(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		monthsAhead int
		want        int
	}{
		{3, 1}, {6, 2}, {12, 4}, {13, 5}, {24, 8}, {1, 1},
	}

	for _, tt := range tests {
		buckets := QuarterlyBreakdown(nil, tt.monthsAhead, now)
		if len(buckets) != tt.want {
			t.Errorf("monthsAhead=%d: %d buckets, want %d", tt.monthsAhead, len(buckets), tt.want)
		}
	}
}

func TestQuarterlyBreakdownLabels(t *testing.T) {
	// Buckets starting Jan 15 2026: Q1, Q2, Q3, Q4 by start month
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	buckets := QuarterlyBreakdown(nil, 12, now)

	wantLabels := []string{"Q1", "Q2", "Q3", "Q4"}
	for i, b := range buckets {
		if b.Quarter != wantLabels[i] {
			t.Errorf("bucket %d label = %q, want %q", i, b.Quarter, wantLabels[i])
		}
		if b.Year != 2026 {
			t.Errorf("bucket %d year = %d, want 2026", i, b.Year)
		}
	}

	// October start wraps to Q4 then Q1 of the next calendar year
	oct := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	buckets = QuarterlyBreakdown(nil, 6, oct)
	if buckets[0].Quarter != "Q4" {
		t.Errorf("October bucket label = %q, want Q4", buckets[0].Quarter)
	}
	if buckets[1].Quarter != "Q1" || buckets[1].Year != 2027 {
		t.Errorf("January bucket = %q %d, want Q1 2027", buckets[1].Quarter, buckets[1].Year)
	}
}

func TestQuarterlyBreakdownAggregates(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	wosb := oppAt("w", now.AddDate(0, 1, 0))
	wosb.WOSBEligibility = models.WOSBEligible
	wosb.EstimatedValue = 1_000_000
	plain := oppAt("p", now.AddDate(0, 2, 0))
	plain.EstimatedValue = 250_000

	buckets := QuarterlyBreakdown([]models.ForecastedOpportunity{wosb, plain}, 3, now)

	if len(buckets) != 1 {
		t.Fatalf("len(buckets) = %d, want 1", len(buckets))
	}
	b := buckets[0]
	if b.Count != 2 {
		t.Errorf("Count = %d, want 2", b.Count)
	}
	if b.TotalValue != 1_250_000 {
		t.Errorf("TotalValue = %v, want 1250000", b.TotalValue)
	}
	if b.WOSBCount != 1 {
		t.Errorf("WOSBCount = %d, want 1", b.WOSBCount)
	}
}
