package scan

import (
	"context"
	"io"
	"time"

	"github.com/depointe/govforecast/internal/models"
)

// RawForecastItem is an unprocessed record yielded by one source fetch.
// Fields other than Title are best-effort: agency forecast pages disagree on
// almost everything, so the scanner fills defaults for whatever is missing.
type RawForecastItem struct {
	Title              string  `json:"title"`
	Description        string  `json:"description,omitempty"`
	NAICSCode          string  `json:"naicsCode,omitempty"`
	EstimatedValue     float64 `json:"estimatedValue,omitempty"`
	PredictedPostDate  string  `json:"predictedPostDate,omitempty"`
	FiscalYear         int     `json:"fiscalYear,omitempty"`
	FiscalQuarter      string  `json:"fiscalQuarter,omitempty"`
	SetAside           string  `json:"setAside,omitempty"`
	ContactName        string  `json:"contactName,omitempty"`
	ContactEmail       string  `json:"contactEmail,omitempty"`
	ContactPhone       string  `json:"contactPhone,omitempty"`
	AcquisitionType    string  `json:"acquisitionType,omitempty"`
	PlaceOfPerformance string  `json:"placeOfPerformance,omitempty"`
}

// FetchedDocument is the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// ConfigurableFetcher is a Fetcher that accepts per-source tuning from the
// registry's fetch block.
type ConfigurableFetcher interface {
	Fetcher
	WithConfig(cfg FetchConfig) Fetcher
}

// Strategy parses one fetched document into raw forecast items.
type Strategy interface {
	Parse(ctx context.Context, source Source, doc *FetchedDocument) ([]RawForecastItem, error)
}

// Source is one forecast origin from the registry. Created at load time,
// never mutated.
type Source struct {
	ID                     string                `yaml:"id"`
	Agency                 string                `yaml:"agency"`
	AgencyCode             string                `yaml:"agency_code"`
	URL                    string                `yaml:"url"`
	Priority               models.SourcePriority `yaml:"priority"`
	Active                 bool                  `yaml:"active"`
	TransportationRelevant bool                  `yaml:"transportation_relevant"`
	Strategy               string                `yaml:"strategy"`
	Fetch                  FetchConfig           `yaml:"fetch,omitempty"`
}

// FetchConfig tunes HTTP behavior for one source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
	MaxRetries     int     `yaml:"max_retries,omitempty"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`
	UseBrowser     bool    `yaml:"use_browser,omitempty"`
}
