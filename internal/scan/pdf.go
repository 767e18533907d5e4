package scan

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	rpdf "rsc.io/pdf"
)

var (
	dollarRegex = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?\s?[KMBkmb]?(?:illion)?`)
	dateInLine  = regexp.MustCompile(`(?i)\b(?:\d{1,2}/\d{1,2}/20\d{2}|20\d{2}-\d{2}-\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2})\b`)
)

// extractPDFText pulls plain text from PDF bytes. rsc.io/pdf panics on
// malformed files, so the panic is converted to an error.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		var lastY float64
		for _, fragment := range page.Content().Text {
			if lastY != 0 && fragment.Y != lastY {
				builder.WriteString("\n")
			}
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
			lastY = fragment.Y
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// ExtractForecastsFromPDF parses an uploaded LRAF document into raw items.
// LRAF PDFs are line-oriented: a requirement line carries a NAICS code
// and usually a dollar figure. Anything without a NAICS code is treated
// as narrative text and skipped.
func ExtractForecastsFromPDF(content []byte) ([]RawForecastItem, error) {
	text, err := extractPDFText(content)
	if err != nil {
		return nil, fmt.Errorf("pdf text extraction failed: %w", err)
	}
	return parseForecastLines(text), nil
}

func parseForecastLines(text string) []RawForecastItem {
	var items []RawForecastItem

	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len(line) < 20 {
			continue
		}

		naics := extractNAICS(line)
		if naics == "" {
			continue
		}

		item := RawForecastItem{
			NAICSCode: naics,
		}

		if m := dollarRegex.FindString(line); m != "" {
			item.EstimatedValue = parseMoney(m)
		}
		if m := dateInLine.FindString(line); m != "" {
			item.PredictedPostDate = m
		}

		// Title is the text before the NAICS code, or the whole line when
		// the code leads.
		idx := strings.Index(line, naics)
		title := strings.TrimSpace(strings.Trim(line[:idx], " -|,"))
		if title == "" {
			title = strings.TrimSpace(strings.Trim(line[idx+len(naics):], " -|,"))
			title = dollarRegex.ReplaceAllString(title, "")
			title = strings.TrimSpace(strings.Trim(title, " -|,"))
		}
		if title == "" {
			continue
		}
		item.Title = title

		lower := strings.ToLower(line)
		for _, setAside := range []string{"wosb", "women-owned", "8(a)", "hubzone", "sdvosb", "small business set-aside", "total small business"} {
			if strings.Contains(lower, setAside) {
				item.SetAside = setAside
				break
			}
		}

		if fy := parseFiscalYear(line); fy != 0 {
			item.FiscalYear = fy
		}

		items = append(items, item)
	}

	return items
}
