package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLTableStrategy extracts forecast rows from agency forecast pages that
// publish their LRAF as an HTML table. Column layouts vary per agency, so
// headers are matched by keyword rather than position.
type HTMLTableStrategy struct{}

// headerAliases maps canonical column names to the header text fragments
// agencies actually use.
var headerAliases = map[string][]string{
	"title":       {"title", "requirement", "description of requirement", "project name", "contract name"},
	"description": {"description", "summary", "scope", "details"},
	"naics":       {"naics"},
	"value":       {"value", "estimated value", "dollar", "amount", "price range", "est. value"},
	"postDate":    {"anticipated", "solicitation date", "release date", "post date", "estimated release", "target award"},
	"fiscalYear":  {"fiscal year", "fy"},
	"quarter":     {"quarter", "qtr"},
	"setAside":    {"set-aside", "set aside", "socioeconomic", "small business program"},
	"contact":     {"contact", "point of contact", "poc", "specialist"},
	"acqType":     {"acquisition type", "contract type", "contract vehicle", "type of contract"},
	"place":       {"place of performance", "location", "pop"},
}

func (s *HTMLTableStrategy) Parse(ctx context.Context, source Source, doc *FetchedDocument) ([]RawForecastItem, error) {
	defer doc.Body.Close()

	htmlDoc, err := goquery.NewDocumentFromReader(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var items []RawForecastItem
	htmlDoc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		columns := mapColumns(table)
		if _, ok := columns["title"]; !ok {
			return true // not a forecast table, keep looking
		}

		table.Find("tbody tr, tr").Each(func(i int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() == 0 {
				return
			}

			item := RawForecastItem{
				Title:              cellText(cells, columns, "title"),
				Description:        cellText(cells, columns, "description"),
				NAICSCode:          extractNAICS(cellText(cells, columns, "naics")),
				PredictedPostDate:  cellText(cells, columns, "postDate"),
				FiscalQuarter:      cellText(cells, columns, "quarter"),
				SetAside:           cellText(cells, columns, "setAside"),
				ContactName:        cellText(cells, columns, "contact"),
				AcquisitionType:    cellText(cells, columns, "acqType"),
				PlaceOfPerformance: cellText(cells, columns, "place"),
			}

			if raw := cellText(cells, columns, "value"); raw != "" {
				item.EstimatedValue = parseMoney(raw)
			}
			if raw := cellText(cells, columns, "fiscalYear"); raw != "" {
				item.FiscalYear = parseFiscalYear(raw)
			}

			if item.Title != "" {
				items = append(items, item)
			}
		})

		return true
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// mapColumns inspects a table's header row and returns canonical column
// name -> cell index.
func mapColumns(table *goquery.Selection) map[string]int {
	columns := make(map[string]int)

	headerRow := table.Find("thead tr").First()
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").First()
	}

	headerRow.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		if text == "" {
			return
		}
		for canonical, aliases := range headerAliases {
			if _, taken := columns[canonical]; taken {
				continue
			}
			for _, alias := range aliases {
				if strings.Contains(text, alias) {
					columns[canonical] = i
					break
				}
			}
		}
	})

	return columns
}

func cellText(cells *goquery.Selection, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= cells.Length() {
		return ""
	}
	return strings.Join(strings.Fields(cells.Eq(idx).Text()), " ")
}
