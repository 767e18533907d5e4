package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/models"
)

// AwardProvider supplies historical contract awards to analyze.
type AwardProvider interface {
	GetHistoricalContracts(ctx context.Context) ([]models.HistoricalAward, error)
}

// Store persists forecasted opportunities.
type Store interface {
	SaveForecasts(ctx context.Context, opps []models.ForecastedOpportunity) error
}

// Analyzer predicts recompete opportunities from contracts whose period of
// performance ends inside the forecast window.
type Analyzer struct {
	provider AwardProvider
	store    Store
	log      zerolog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewAnalyzer wires an analyzer. store may be nil to skip persistence.
func NewAnalyzer(provider AwardProvider, store Store, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		provider: provider,
		store:    store,
		log:      logger.With().Str("component", "analyzer").Logger(),
		now:      time.Now,
	}
}

// ForecastRecompetes scores every award expiring within monthsAhead months.
// Results are persisted before they are returned; a storage failure aborts
// the call so callers never see data the store doesn't have.
func (a *Analyzer) ForecastRecompetes(ctx context.Context, monthsAhead int) (models.ForecastAnalysis, error) {
	analysis := models.ForecastAnalysis{
		ExpiringContracts: []models.ExpiringContract{},
		ForecastPeriod:    fmt.Sprintf("%d months", monthsAhead),
	}

	awards, err := a.provider.GetHistoricalContracts(ctx)
	if err != nil {
		return analysis, fmt.Errorf("fetch historical contracts: %w", err)
	}

	today := a.now().Truncate(24 * time.Hour)
	windowEnd := today.AddDate(0, monthsAhead, 0)

	for _, award := range awards {
		if award.EndDate.Before(today) || award.EndDate.After(windowEnd) {
			continue
		}
		days := int(award.EndDate.Sub(today).Hours() / 24)
		if days <= 0 {
			continue
		}

		contract := a.buildContract(award, today, days)
		analysis.ExpiringContracts = append(analysis.ExpiringContracts, contract)

		analysis.TotalValue += contract.CurrentValue
		if contract.WOSBEligibility == models.WOSBEligible {
			analysis.WOSBOpportunities++
		}
		if contract.RecompeteProbability > 70 {
			analysis.HighProbabilityRecompetes++
		}
	}

	sortContractsByRecompeteDate(analysis.ExpiringContracts)

	if a.store != nil && len(analysis.ExpiringContracts) > 0 {
		opps := make([]models.ForecastedOpportunity, len(analysis.ExpiringContracts))
		for i, c := range analysis.ExpiringContracts {
			opps[i] = c.ForecastedOpportunity
		}
		if err := a.store.SaveForecasts(ctx, opps); err != nil {
			return models.ForecastAnalysis{
				ExpiringContracts: []models.ExpiringContract{},
				ForecastPeriod:    analysis.ForecastPeriod,
			}, fmt.Errorf("persist recompete forecasts: %w", err)
		}
	}

	a.log.Info().
		Int("expiring", len(analysis.ExpiringContracts)).
		Int("high_probability", analysis.HighProbabilityRecompetes).
		Float64("total_value", analysis.TotalValue).
		Msg("recompete analysis complete")

	return analysis, nil
}

func (a *Analyzer) buildContract(award models.HistoricalAward, today time.Time, days int) models.ExpiringContract {
	recompeteDate := award.EndDate.AddDate(0, -4, 0)
	awardDate := recompeteDate.AddDate(0, 0, 60)

	eligibility := models.WOSBIneligible
	if WOSBLikely(award) {
		eligibility = models.WOSBEligible
	}

	title := award.Description
	if title == "" {
		title = award.ID
	}

	opp := models.ForecastedOpportunity{
		ID:                    fmt.Sprintf("%s_RECOMPETE_%s", award.AgencyCode, award.ID),
		Source:                "usaspending",
		Agency:                award.Agency,
		AgencyCode:            award.AgencyCode,
		Title:                 "Recompete: " + title,
		Description:           award.Description,
		NAICSCode:             award.NAICSCode,
		EstimatedValue:        award.TotalObligation,
		FiscalYear:            federalFiscalYear(recompeteDate),
		FiscalQuarter:         federalFiscalQuarter(recompeteDate),
		PredictedPostDate:     recompeteDate,
		PredictedAwardDate:    awardDate,
		SmallBusinessSetAside: award.SetAside,
		WOSBEligibility:       eligibility,
		AcquisitionType:       award.ContractType,
		ScannedAt:             today,
		ForecastConfidence:    RecompeteConfidence(award, days),
	}

	return models.ExpiringContract{
		ForecastedOpportunity:  opp,
		CurrentValue:           award.TotalObligation,
		CurrentContractor:      award.Recipient,
		ContractType:           award.ContractType,
		ExpirationDate:         award.EndDate,
		DaysUntilExpiration:    days,
		PredictedRecompeteDate: recompeteDate,
		RecompeteProbability:   RecompeteProbability(award),
	}
}

func federalFiscalYear(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}

func federalFiscalQuarter(t time.Time) string {
	switch t.Month() {
	case time.October, time.November, time.December:
		return "Q1"
	case time.January, time.February, time.March:
		return "Q2"
	case time.April, time.May, time.June:
		return "Q3"
	default:
		return "Q4"
	}
}
