package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/models"
	"github.com/depointe/govforecast/internal/scan"
)

// SourceScanner scans one registry source. Satisfied by *scan.Scanner.
type SourceScanner interface {
	Scan(ctx context.Context, source scan.Source) ([]models.ForecastedOpportunity, error)
}

// Aggregator runs the full forecast pass: every active source, plus the
// expiration analysis, merged into one report.
type Aggregator struct {
	registry *scan.Registry
	scanner  SourceScanner
	store    Store
	log      zerolog.Logger

	now func() time.Time
}

func NewAggregator(registry *scan.Registry, scanner SourceScanner, store Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		scanner:  scanner,
		store:    store,
		log:      logger.With().Str("component", "aggregator").Logger(),
		now:      time.Now,
	}
}

// ScanAllLRAFs scans every active source sequentially. scanType "critical"
// restricts the pass to critical-priority sources. A failing source is
// recorded and skipped; partial data is still a successful scan, so Success
// stays true even when every source fails. A failed batch persist is
// different: a scan whose results cannot be saved is incomplete, so the
// error fails the whole call.
func (g *Aggregator) ScanAllLRAFs(ctx context.Context, scanType string) (models.ScanResult, error) {
	result := models.ScanResult{
		Success:   true,
		Forecasts: []models.ForecastedOpportunity{},
		Errors:    []string{},
	}

	sources := g.registry.Active()
	if scanType == "critical" {
		sources = g.registry.Critical()
	}

	for _, source := range sources {
		opps, err := g.scanner.Scan(ctx, source)
		if err != nil {
			g.log.Warn().Str("source", source.ID).Err(err).Msg("source scan failed")
			result.Errors = append(result.Errors, source.Agency+": "+err.Error())
			continue
		}
		result.SourcesScanned++
		result.Forecasts = append(result.Forecasts, opps...)
	}

	result.TotalForecasts = len(result.Forecasts)

	if g.store != nil && len(result.Forecasts) > 0 {
		if err := g.store.SaveForecasts(ctx, result.Forecasts); err != nil {
			g.log.Error().Err(err).Msg("persisting scan batch failed")
			return models.ScanResult{
				Forecasts: []models.ForecastedOpportunity{},
				Errors:    result.Errors,
			}, fmt.Errorf("persist scan batch: %w", err)
		}
	}

	g.log.Info().
		Int("sources_scanned", result.SourcesScanned).
		Int("forecasts", result.TotalForecasts).
		Int("errors", len(result.Errors)).
		Msg("LRAF scan complete")

	return result, nil
}

// MergeAndSort combines scanned and recompete opportunities into one list,
// non-decreasing by predictedPostDate. Within equal dates input order is
// preserved.
func MergeAndSort(scanned []models.ForecastedOpportunity, contracts []models.ExpiringContract) []models.ForecastedOpportunity {
	merged := make([]models.ForecastedOpportunity, 0, len(scanned)+len(contracts))
	merged = append(merged, scanned...)
	for _, c := range contracts {
		merged = append(merged, c.ForecastedOpportunity)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PredictedPostDate.Before(merged[j].PredictedPostDate)
	})

	return merged
}

// Summary metrics over a merged list.
type Summary struct {
	TotalPredictedValue     float64 `json:"totalPredictedValue"`
	WOSBOpportunities       int     `json:"wosbOpportunities"`
	HighConfidenceForecasts int     `json:"highConfidenceForecasts"`
}

func Summarize(opps []models.ForecastedOpportunity) Summary {
	var s Summary
	for _, opp := range opps {
		s.TotalPredictedValue += opp.EstimatedValue
		if opp.WOSBEligibility == models.WOSBEligible {
			s.WOSBOpportunities++
		}
		if opp.ForecastConfidence == models.ConfidenceHigh {
			s.HighConfidenceForecasts++
		}
	}
	return s
}

// QuarterlyBreakdown buckets forecasts into ceil(monthsAhead/3) consecutive
// 3-month spans starting today. Membership is half-open [start, end), so a
// forecast lands in exactly one bucket. The quarter label is the calendar
// quarter of the bucket's start month; a bucket straddling a quarter
// boundary keeps its start month's label.
func QuarterlyBreakdown(forecasts []models.ForecastedOpportunity, monthsAhead int, now time.Time) []models.QuarterBucket {
	bucketCount := int(math.Ceil(float64(monthsAhead) / 3.0))
	buckets := make([]models.QuarterBucket, 0, bucketCount)

	for i := 0; i < bucketCount; i++ {
		start := now.AddDate(0, i*3, 0)
		end := now.AddDate(0, (i+1)*3, 0)

		m := int(start.Month()) - 1
		q := (m/3 + 1) % 4
		if q == 0 {
			q = 4
		}

		bucket := models.QuarterBucket{
			Quarter:   quarterLabel(q),
			Year:      start.Year(),
			StartDate: start,
			EndDate:   end,
			Forecasts: []models.ForecastedOpportunity{},
		}

		for _, f := range forecasts {
			if f.PredictedPostDate.Before(start) || !f.PredictedPostDate.Before(end) {
				continue
			}
			bucket.Forecasts = append(bucket.Forecasts, f)
			bucket.Count++
			bucket.TotalValue += f.EstimatedValue
			if f.WOSBEligibility == models.WOSBEligible {
				bucket.WOSBCount++
			}
		}

		buckets = append(buckets, bucket)
	}

	return buckets
}

func quarterLabel(q int) string {
	return "Q" + string(rune('0'+q))
}

func sortContractsByRecompeteDate(contracts []models.ExpiringContract) {
	sort.SliceStable(contracts, func(i, j int) bool {
		return contracts[i].PredictedRecompeteDate.Before(contracts[j].PredictedRecompeteDate)
	})
}
