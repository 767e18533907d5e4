package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// JSONFeedStrategy handles sources that expose their forecast as a JSON API
// (DHS APFS and similar portals). Feeds disagree on field naming, so every
// value is pulled through a set of known key aliases.
type JSONFeedStrategy struct{}

var jsonKeyAliases = map[string][]string{
	"title":       {"title", "requirement_title", "requirementTitle", "name", "contract_name"},
	"description": {"description", "requirement_description", "summary", "scope"},
	"naics":       {"naics", "naics_code", "naicsCode", "primary_naics"},
	"value":       {"estimated_value", "estimatedValue", "dollar_range", "contract_value", "value"},
	"postDate":    {"estimated_solicitation_date", "solicitation_date", "release_date", "anticipated_award_date", "post_date"},
	"fiscalYear":  {"fiscal_year", "fiscalYear", "fy"},
	"quarter":     {"fiscal_quarter", "quarter", "qtr"},
	"setAside":    {"set_aside", "setAside", "small_business_program", "competition_type"},
	"contact":     {"point_of_contact", "contact_name", "poc", "specialist"},
	"email":       {"contact_email", "poc_email", "email"},
	"phone":       {"contact_phone", "poc_phone", "phone"},
	"acqType":     {"contract_type", "acquisition_type", "contract_vehicle"},
	"place":       {"place_of_performance", "location", "pop_city"},
}

func (s *JSONFeedStrategy) Parse(ctx context.Context, source Source, doc *FetchedDocument) ([]RawForecastItem, error) {
	defer doc.Body.Close()

	data, err := io.ReadAll(io.LimitReader(doc.Body, 32*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	records, err := extractRecords(data)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}

	items := make([]RawForecastItem, 0, len(records))
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		item := RawForecastItem{
			Title:              pickString(rec, "title"),
			Description:        pickString(rec, "description"),
			NAICSCode:          extractNAICS(pickString(rec, "naics")),
			PredictedPostDate:  pickString(rec, "postDate"),
			FiscalQuarter:      pickString(rec, "quarter"),
			SetAside:           pickString(rec, "setAside"),
			ContactName:        pickString(rec, "contact"),
			ContactEmail:       pickString(rec, "email"),
			ContactPhone:       pickString(rec, "phone"),
			AcquisitionType:    pickString(rec, "acqType"),
			PlaceOfPerformance: pickString(rec, "place"),
			EstimatedValue:     pickNumber(rec, "value"),
			FiscalYear:         int(pickNumber(rec, "fiscalYear")),
		}

		if item.Title != "" {
			items = append(items, item)
		}
	}

	return items, nil
}

// extractRecords finds the record array whether the feed is a bare array or
// wraps it in a results/data/forecasts envelope.
func extractRecords(data []byte) ([]map[string]any, error) {
	var direct []map[string]any
	if err := json.Unmarshal(data, &direct); err == nil {
		return direct, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unrecognized feed shape: %w", err)
	}

	for _, key := range []string{"results", "data", "forecasts", "records", "items", "opportunities"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err == nil {
			return records, nil
		}
	}

	return nil, fmt.Errorf("no record array found in feed")
}

func pickString(rec map[string]any, canonical string) string {
	for _, key := range jsonKeyAliases[canonical] {
		if v, ok := rec[key]; ok {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}

func pickNumber(rec map[string]any, canonical string) float64 {
	for _, key := range jsonKeyAliases[canonical] {
		v, ok := rec[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case string:
			if n := parseMoney(t); n != 0 {
				return n
			}
		}
	}
	return 0
}
