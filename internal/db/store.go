package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/depointe/govforecast/internal/models"
)

// Store persists forecasted opportunities. The forecasts table is
// append-only: a later scan of the same requirement produces a new row with
// a later scanned_at, never an update.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const insertForecast = `
	INSERT INTO forecasts (
		id, source, agency, agency_code, title, description, naics_code,
		estimated_value, fiscal_year, fiscal_quarter, predicted_post_date,
		predicted_award_date, small_business_set_aside, wosb_eligibility,
		contact_name, contact_email, contact_phone, acquisition_type,
		place_of_performance, scanned_at, forecast_confidence, url
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
	)
	ON CONFLICT (id) DO NOTHING`

const selectCols = `id, source, agency, agency_code, title, description,
	naics_code, estimated_value, fiscal_year, fiscal_quarter,
	predicted_post_date, predicted_award_date, small_business_set_aside,
	wosb_eligibility, contact_name, contact_email, contact_phone,
	acquisition_type, place_of_performance, scanned_at,
	forecast_confidence, url`

// SaveForecasts bulk-inserts a scan batch in one round trip.
func (s *Store) SaveForecasts(ctx context.Context, opps []models.ForecastedOpportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, opp := range opps {
		batch.Queue(insertForecast,
			opp.ID, opp.Source, opp.Agency, opp.AgencyCode, opp.Title,
			opp.Description, opp.NAICSCode, opp.EstimatedValue,
			opp.FiscalYear, opp.FiscalQuarter, opp.PredictedPostDate,
			opp.PredictedAwardDate, opp.SmallBusinessSetAside,
			string(opp.WOSBEligibility), opp.ContactName, opp.ContactEmail,
			opp.ContactPhone, opp.AcquisitionType, opp.PlaceOfPerformance,
			opp.ScannedAt, string(opp.ForecastConfidence), opp.URL,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range opps {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert forecast batch: %w", err)
		}
	}

	return nil
}

// GetByAgency returns forecasts for one agency (exact name match), earliest
// predicted post date first.
func (s *Store) GetByAgency(ctx context.Context, agency string) ([]models.ForecastedOpportunity, error) {
	query := fmt.Sprintf(`SELECT %s FROM forecasts WHERE agency = $1 ORDER BY predicted_post_date ASC`, selectCols)

	rows, err := s.pool.Query(ctx, query, agency)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts by agency: %w", err)
	}
	defer rows.Close()

	return scanForecasts(rows)
}

// GetWOSBEligible returns forecasts with an eligible WOSB tri-state,
// earliest predicted post date first.
func (s *Store) GetWOSBEligible(ctx context.Context) ([]models.ForecastedOpportunity, error) {
	query := fmt.Sprintf(`SELECT %s FROM forecasts WHERE wosb_eligibility = 'eligible' ORDER BY predicted_post_date ASC`, selectCols)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query wosb forecasts: %w", err)
	}
	defer rows.Close()

	return scanForecasts(rows)
}

func scanForecasts(rows pgx.Rows) ([]models.ForecastedOpportunity, error) {
	var opps []models.ForecastedOpportunity
	for rows.Next() {
		var o models.ForecastedOpportunity
		var wosb, confidence string

		err := rows.Scan(
			&o.ID, &o.Source, &o.Agency, &o.AgencyCode, &o.Title,
			&o.Description, &o.NAICSCode, &o.EstimatedValue,
			&o.FiscalYear, &o.FiscalQuarter, &o.PredictedPostDate,
			&o.PredictedAwardDate, &o.SmallBusinessSetAside, &wosb,
			&o.ContactName, &o.ContactEmail, &o.ContactPhone,
			&o.AcquisitionType, &o.PlaceOfPerformance, &o.ScannedAt,
			&confidence, &o.URL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}

		o.WOSBEligibility = models.WOSBEligibility(wosb)
		o.ForecastConfidence = models.ForecastConfidence(confidence)
		opps = append(opps, o)
	}

	return opps, rows.Err()
}

// Stats summarizes the forecasts table.
type Stats struct {
	TotalForecasts   int     `json:"totalForecasts"`
	TotalValue       float64 `json:"totalValue"`
	WOSBEligible     int     `json:"wosbEligible"`
	HighConfidence   int     `json:"highConfidence"`
	DistinctAgencies int     `json:"distinctAgencies"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(estimated_value), 0),
			COUNT(*) FILTER (WHERE wosb_eligibility = 'eligible'),
			COUNT(*) FILTER (WHERE forecast_confidence = 'high'),
			COUNT(DISTINCT agency)
		FROM forecasts
	`).Scan(&stats.TotalForecasts, &stats.TotalValue, &stats.WOSBEligible,
		&stats.HighConfidence, &stats.DistinctAgencies)
	if err != nil {
		return stats, fmt.Errorf("failed to query forecast stats: %w", err)
	}

	return stats, nil
}
