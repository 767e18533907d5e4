package scan

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	naicsRegex  = regexp.MustCompile(`\b\d{6}\b`)
	numberRegex = regexp.MustCompile(`(?i)([\d][\d,]*(?:\.\d+)?)\s?(thousand|million|billion|[kmb]\b)?`)
	fyRegex     = regexp.MustCompile(`(?i)\bFY\s?(\d{2,4})\b`)
	yearRegex   = regexp.MustCompile(`\b(20\d{2})\b`)
)

// parseMoney extracts a dollar figure from free text. Agencies write values
// as "$1,500,000", "1.5M", "$500K - $1M" and so on; ranges resolve to the
// upper bound. Each number carries its own magnitude suffix.
func parseMoney(text string) float64 {
	matches := numberRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}

	var max float64
	for _, m := range matches {
		clean := strings.ReplaceAll(m[1], ",", "")
		val, err := strconv.ParseFloat(clean, 64)
		if err != nil || val <= 0 {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "k", "thousand":
			val *= 1_000
		case "m", "million":
			val *= 1_000_000
		case "b", "billion":
			val *= 1_000_000_000
		}
		if val > max {
			max = val
		}
	}

	return max
}

// extractNAICS pulls the first six-digit NAICS code out of a cell, which may
// contain extra text like "484110 - General Freight Trucking".
func extractNAICS(text string) string {
	return naicsRegex.FindString(text)
}

// parseFiscalYear accepts "FY2026", "FY 26", "2026".
func parseFiscalYear(text string) int {
	m := fyRegex.FindStringSubmatch(text)
	if m == nil {
		m = yearRegex.FindStringSubmatch(text)
	}
	if m == nil {
		return 0
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	if year < 100 {
		year += 2000
	}
	if year < 2000 || year > 2100 {
		return 0
	}
	return year
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2006",
	"Jan 2006",
	"2006-01-02T15:04:05Z07:00",
}

// parseFlexibleDate tries the date formats seen across agency forecast
// pages. Returns zero time if nothing matches.
func parseFlexibleDate(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return time.Time{}
}
