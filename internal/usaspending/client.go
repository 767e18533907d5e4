package usaspending

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/models"
)

const (
	// DefaultBaseURL is the public USAspending API root.
	DefaultBaseURL = "https://api.usaspending.gov"

	searchPath = "/api/v2/search/spending_by_award/"

	defaultPageLimit = 100
	defaultMaxPages  = 5
)

// transportationNAICS are the codes the brokerage cares about; the search is
// filtered server-side to keep result pages small.
var transportationNAICS = []string{"484", "485", "488", "492", "493"}

// contract award type codes (definitive contracts, purchase orders, delivery
// orders, BPA calls)
var contractTypeCodes = []string{"A", "B", "C", "D"}

// Client queries the USAspending spending_by_award search endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	PageLimit  int
	MaxPages   int

	log zerolog.Logger
}

func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		PageLimit:  defaultPageLimit,
		MaxPages:   defaultMaxPages,
		log:        logger.With().Str("component", "usaspending").Logger(),
	}
}

type searchRequest struct {
	Filters searchFilters `json:"filters"`
	Fields  []string      `json:"fields"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Sort    string        `json:"sort"`
	Order   string        `json:"order"`
}

type searchFilters struct {
	NAICSCodes     []string     `json:"naics_codes"`
	AwardTypeCodes []string     `json:"award_type_codes"`
	TimePeriod     []timePeriod `json:"time_period"`
}

type timePeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type searchResponse struct {
	Results      []awardRow `json:"results"`
	PageMetadata struct {
		HasNext bool `json:"hasNext"`
	} `json:"page_metadata"`
}

// awardRow mirrors the display-name keys the search endpoint returns.
type awardRow struct {
	AwardID            string  `json:"Award ID"`
	RecipientName      string  `json:"Recipient Name"`
	Description        string  `json:"Description"`
	NAICS              string  `json:"NAICS"`
	ContractAwardType  string  `json:"Contract Award Type"`
	AwardAmount        float64 `json:"Award Amount"`
	StartDate          string  `json:"Start Date"`
	EndDate            string  `json:"End Date"`
	AwardingAgency     string  `json:"Awarding Agency"`
	AwardingAgencyCode string  `json:"Awarding Agency Code"`
	TypeOfSetAside     string  `json:"Type of Set Aside"`
}

var searchFields = []string{
	"Award ID", "Recipient Name", "Description", "NAICS",
	"Contract Award Type", "Award Amount", "Start Date", "End Date",
	"Awarding Agency", "Awarding Agency Code", "Type of Set Aside",
}

// GetHistoricalContracts pulls transportation-sector contract awards. Pages
// until the API reports no more results or MaxPages is reached.
func (c *Client) GetHistoricalContracts(ctx context.Context) ([]models.HistoricalAward, error) {
	today := time.Now().UTC()
	period := timePeriod{
		StartDate: today.AddDate(-5, 0, 0).Format("2006-01-02"),
		EndDate:   today.AddDate(2, 0, 0).Format("2006-01-02"),
	}

	var awards []models.HistoricalAward
	for page := 1; page <= c.MaxPages; page++ {
		resp, err := c.search(ctx, page, period)
		if err != nil {
			return nil, err
		}

		for _, row := range resp.Results {
			awards = append(awards, mapRow(row))
		}

		if !resp.PageMetadata.HasNext {
			break
		}
	}

	c.log.Info().Int("awards", len(awards)).Msg("historical contracts fetched")
	return awards, nil
}

func (c *Client) search(ctx context.Context, page int, period timePeriod) (*searchResponse, error) {
	reqBody := searchRequest{
		Filters: searchFilters{
			NAICSCodes:     transportationNAICS,
			AwardTypeCodes: contractTypeCodes,
			TimePeriod:     []timePeriod{period},
		},
		Fields: searchFields,
		Page:   page,
		Limit:  c.PageLimit,
		Sort:   "Award Amount",
		Order:  "desc",
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+searchPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usaspending search: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usaspending search: status %d", httpResp.StatusCode)
	}

	var resp searchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return &resp, nil
}

func mapRow(row awardRow) models.HistoricalAward {
	return models.HistoricalAward{
		ID:              row.AwardID,
		Description:     row.Description,
		Recipient:       row.RecipientName,
		Agency:          row.AwardingAgency,
		AgencyCode:      row.AwardingAgencyCode,
		NAICSCode:       row.NAICS,
		ContractType:    row.ContractAwardType,
		SetAside:        row.TypeOfSetAside,
		TotalObligation: row.AwardAmount,
		StartDate:       parseAPIDate(row.StartDate),
		EndDate:         parseAPIDate(row.EndDate),
	}
}

func parseAPIDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
