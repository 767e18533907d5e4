package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/models"
)

// Defaults applied when a source omits a field. Agency forecast pages are
// sparse; rather than dropping incomplete rows we fill freight-relevant
// placeholder values.
const (
	DefaultPostDateOffset  = 90 * 24 * time.Hour
	DefaultAwardDateOffset = 60 * 24 * time.Hour
	DefaultEstimatedValue  = 500000
	DefaultNAICSCode       = "484110" // general freight trucking
)

// Scanner turns one registry source into canonical forecasted opportunities.
type Scanner struct {
	fetcher    Fetcher
	browser    Fetcher
	strategies *StrategyFactory
	sanitizer  *bluemonday.Policy
	log        zerolog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewScanner wires the default fetchers and strategies.
func NewScanner(logger zerolog.Logger) *Scanner {
	return &Scanner{
		fetcher:    NewHTTPFetcher(FetchConfig{}),
		browser:    NewCollyFetcher(logger),
		strategies: DefaultStrategyFactory(),
		sanitizer:  bluemonday.StrictPolicy(),
		log:        logger.With().Str("component", "scanner").Logger(),
		now:        time.Now,
	}
}

// NewScannerWithFetcher builds a scanner around a caller-provided fetcher.
// Used by tests and the PDF upload path.
func NewScannerWithFetcher(fetcher Fetcher, logger zerolog.Logger) *Scanner {
	s := NewScanner(logger)
	s.fetcher = fetcher
	s.browser = fetcher
	return s
}

// Scan fetches one source and maps its raw items into opportunities.
// A fetch or parse failure returns the error to the caller; the aggregator
// decides how to record it. A source that fetches fine but yields zero rows
// is not an error.
func (s *Scanner) Scan(ctx context.Context, source Source) ([]models.ForecastedOpportunity, error) {
	fetcher := s.fetcherFor(source)

	doc, err := fetcher.Fetch(ctx, source.URL)
	if err != nil {
		s.log.Warn().Str("source", source.ID).Err(err).Msg("fetch failed")
		return nil, fmt.Errorf("fetch %s: %w", source.ID, err)
	}

	strategy, err := s.strategies.Get(source.Strategy)
	if err != nil {
		doc.Body.Close()
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}

	rawItems, err := strategy.Parse(ctx, source, doc)
	if err != nil {
		s.log.Warn().Str("source", source.ID).Err(err).Msg("parse failed")
		return nil, fmt.Errorf("parse %s: %w", source.ID, err)
	}

	opportunities := s.MapItems(source, rawItems)

	s.log.Info().
		Str("source", source.ID).
		Int("found", len(opportunities)).
		Msg("scan complete")

	return opportunities, nil
}

// fetcherFor picks the fetcher for a source and applies its fetch tuning.
// A source with no overrides shares the scanner's default fetcher.
func (s *Scanner) fetcherFor(source Source) Fetcher {
	fetcher := s.fetcher
	if source.Fetch.UseBrowser {
		fetcher = s.browser
	}

	overrides := source.Fetch
	overrides.UseBrowser = false
	if overrides == (FetchConfig{}) {
		return fetcher
	}

	if cf, ok := fetcher.(ConfigurableFetcher); ok {
		return cf.WithConfig(source.Fetch)
	}
	return fetcher
}

// MapItems converts raw items to opportunities, filling defaults. Exposed
// separately so the PDF upload path can reuse the mapping without a fetch.
func (s *Scanner) MapItems(source Source, rawItems []RawForecastItem) []models.ForecastedOpportunity {
	now := s.now()
	epochMillis := now.UnixMilli()

	opportunities := make([]models.ForecastedOpportunity, 0, len(rawItems))
	for i, raw := range rawItems {
		postDate := parseFlexibleDate(raw.PredictedPostDate)
		if postDate.IsZero() {
			postDate = now.Add(DefaultPostDateOffset)
		}
		// Award date is always derived; raw award dates are too unreliable
		// to trust.
		awardDate := postDate.Add(DefaultAwardDateOffset)

		value := raw.EstimatedValue
		if value <= 0 {
			value = DefaultEstimatedValue
		}

		naics := raw.NAICSCode
		if naics == "" {
			naics = DefaultNAICSCode
		}

		fiscalYear := raw.FiscalYear
		if fiscalYear == 0 {
			fiscalYear = federalFiscalYear(postDate)
		}

		fiscalQuarter := raw.FiscalQuarter
		if fiscalQuarter == "" {
			fiscalQuarter = federalFiscalQuarter(postDate)
		}

		contactName := raw.ContactName
		if contactName == "" {
			contactName = source.Agency + " Small Business Office"
		}

		opp := models.ForecastedOpportunity{
			ID:                    fmt.Sprintf("%s_LRAF_%d_%d", source.AgencyCode, epochMillis, i),
			Source:                source.ID,
			Agency:                source.Agency,
			AgencyCode:            source.AgencyCode,
			Title:                 s.clean(raw.Title),
			Description:           s.clean(raw.Description),
			NAICSCode:             naics,
			EstimatedValue:        value,
			FiscalYear:            fiscalYear,
			FiscalQuarter:         fiscalQuarter,
			PredictedPostDate:     postDate,
			PredictedAwardDate:    awardDate,
			SmallBusinessSetAside: s.clean(raw.SetAside),
			WOSBEligibility:       classifyWOSB(raw.SetAside),
			ContactName:           s.clean(contactName),
			ContactEmail:          s.clean(raw.ContactEmail),
			ContactPhone:          s.clean(raw.ContactPhone),
			AcquisitionType:       s.clean(raw.AcquisitionType),
			PlaceOfPerformance:    s.clean(raw.PlaceOfPerformance),
			ScannedAt:             now,
			ForecastConfidence:    scanConfidence(raw),
			URL:                   source.URL,
		}

		opportunities = append(opportunities, opp)
	}

	return opportunities
}

func (s *Scanner) clean(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}

// classifyWOSB maps set-aside text to the eligibility tri-state. A source
// that names no set-aside gets "unknown" rather than a guess.
func classifyWOSB(setAside string) models.WOSBEligibility {
	text := strings.ToLower(setAside)
	if text == "" {
		return models.WOSBUnknown
	}
	if strings.Contains(text, "wosb") || strings.Contains(text, "women") {
		return models.WOSBEligible
	}
	return models.WOSBIneligible
}

// scanConfidence rates how much of the row the source actually published.
func scanConfidence(raw RawForecastItem) models.ForecastConfidence {
	if raw.PredictedPostDate != "" && raw.Description != "" && raw.NAICSCode != "" {
		return models.ConfidenceHigh
	}
	if raw.PredictedPostDate != "" || raw.Description != "" {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// federalFiscalYear: FY starts October 1.
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
