package models

import "time"

// ForecastConfidence grades how reliable a predicted opportunity is.
type ForecastConfidence string

const (
	ConfidenceHigh   ForecastConfidence = "high"
	ConfidenceMedium ForecastConfidence = "medium"
	ConfidenceLow    ForecastConfidence = "low"
)

// WOSBEligibility is a tri-state: a forecast source either states a
// woman-owned set-aside, states a different set-aside, or says nothing.
// Unknown is stored as-is rather than guessed.
type WOSBEligibility string

const (
	WOSBEligible   WOSBEligibility = "eligible"
	WOSBIneligible WOSBEligibility = "ineligible"
	WOSBUnknown    WOSBEligibility = "unknown"
)

// SourcePriority ranks how important a forecast source is to scan.
type SourcePriority string

const (
	PriorityCritical SourcePriority = "critical"
	PriorityHigh     SourcePriority = "high"
	PriorityMedium   SourcePriority = "medium"
	PriorityLow      SourcePriority = "low"
)

// ForecastedOpportunity is the canonical unit of output for both the LRAF
// scanner and the expiration analyzer. It is read-only once constructed;
// corrections come from a later scan cycle as new rows.
type ForecastedOpportunity struct {
	ID                    string             `json:"id"`
	Source                string             `json:"source"`
	Agency                string             `json:"agency"`
	AgencyCode            string             `json:"agencyCode"`
	Title                 string             `json:"title"`
	Description           string             `json:"description"`
	NAICSCode             string             `json:"naicsCode"`
	EstimatedValue        float64            `json:"estimatedValue"`
	FiscalYear            int                `json:"fiscalYear"`
	FiscalQuarter         string             `json:"fiscalQuarter"`
	PredictedPostDate     time.Time          `json:"predictedPostDate"`
	PredictedAwardDate    time.Time          `json:"predictedAwardDate"`
	SmallBusinessSetAside string             `json:"smallBusinessSetAside"`
	WOSBEligibility       WOSBEligibility    `json:"wosbEligibility"`
	ContactName           string             `json:"contactName,omitempty"`
	ContactEmail          string             `json:"contactEmail,omitempty"`
	ContactPhone          string             `json:"contactPhone,omitempty"`
	AcquisitionType       string             `json:"acquisitionType,omitempty"`
	PlaceOfPerformance    string             `json:"placeOfPerformance,omitempty"`
	ScannedAt             time.Time          `json:"scannedAt"`
	ForecastConfidence    ForecastConfidence `json:"forecastConfidence"`
	URL                   string             `json:"url,omitempty"`
}

// ExpiringContract is an opportunity predicted from a contract whose period
// of performance ends inside the forecast window.
type ExpiringContract struct {
	ForecastedOpportunity

	CurrentValue           float64   `json:"currentValue"`
	CurrentContractor      string    `json:"currentContractor"`
	ContractType           string    `json:"contractType"`
	ExpirationDate         time.Time `json:"expirationDate"`
	DaysUntilExpiration    int       `json:"daysUntilExpiration"`
	PredictedRecompeteDate time.Time `json:"predictedRecompeteDate"`
	RecompeteProbability   int       `json:"recompeteProbability"`
}

// ForecastAnalysis is the result of one expiration-analysis pass.
type ForecastAnalysis struct {
	ExpiringContracts         []ExpiringContract `json:"expiringContracts"`
	TotalValue                float64            `json:"totalValue"`
	WOSBOpportunities         int                `json:"wosbOpportunities"`
	HighProbabilityRecompetes int                `json:"highProbabilityRecompetes"`
	ForecastPeriod            string             `json:"forecastPeriod"`
}

// ScanResult is the outcome of scanning every active source once. Errors are
// informational: partial data is still useful, so Success stays true as long
// as the batch itself completed.
type ScanResult struct {
	Success        bool                    `json:"success"`
	Forecasts      []ForecastedOpportunity `json:"forecasts"`
	SourcesScanned int                     `json:"sourcesScanned"`
	TotalForecasts int                     `json:"totalForecasts"`
	Errors         []string                `json:"errors"`
}

// QuarterBucket aggregates forecasts over one 3-month span.
type QuarterBucket struct {
	Quarter    string                  `json:"quarter"`
	Year       int                     `json:"year"`
	StartDate  time.Time               `json:"startDate"`
	EndDate    time.Time               `json:"endDate"`
	Count      int                     `json:"count"`
	TotalValue float64                 `json:"totalValue"`
	WOSBCount  int                     `json:"wosbCount"`
	Forecasts  []ForecastedOpportunity `json:"forecasts"`
}
