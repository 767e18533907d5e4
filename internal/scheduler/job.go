package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/models"
)

const defaultRunTimeout = 30 * time.Minute

// ScanRunner matches forecast.Aggregator.
type ScanRunner interface {
	ScanAllLRAFs(ctx context.Context, scanType string) (models.ScanResult, error)
}

// RecompeteForecaster matches forecast.Analyzer.
type RecompeteForecaster interface {
	ForecastRecompetes(ctx context.Context, monthsAhead int) (models.ForecastAnalysis, error)
}

// ForecastJob refreshes the forecast dataset: a full LRAF scan followed by a
// contract expiration pass. Both stages persist through their own stores.
type ForecastJob struct {
	Aggregator  ScanRunner
	Analyzer    RecompeteForecaster
	ScanType    string
	MonthsAhead int
	Timeout     time.Duration

	Log zerolog.Logger
}

func (j *ForecastJob) Name() string { return "forecast-refresh" }

func (j *ForecastJob) Run(ctx context.Context) error {
	monthsAhead := j.MonthsAhead
	if monthsAhead <= 0 {
		monthsAhead = 12
	}

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := j.Aggregator.ScanAllLRAFs(ctx, j.ScanType)
	if err != nil {
		return fmt.Errorf("lraf scan failed: %w", err)
	}
	j.Log.Info().
		Int("sources_scanned", result.SourcesScanned).
		Int("forecasts_found", result.TotalForecasts).
		Int("errors", len(result.Errors)).
		Msg("Scheduled LRAF scan finished")

	if j.Analyzer == nil {
		return nil
	}

	analysis, err := j.Analyzer.ForecastRecompetes(ctx, monthsAhead)
	if err != nil {
		return fmt.Errorf("recompete forecast failed: %w", err)
	}

	j.Log.Info().
		Int("expiring_contracts", len(analysis.ExpiringContracts)).
		Float64("total_value", analysis.TotalValue).
		Msg("Scheduled recompete forecast finished")

	return nil
}
