package forecast

import (
	"strings"

	"github.com/depointe/govforecast/internal/models"
)

// Recompete scoring. All scores are pure functions of the award so that
// repeated analysis runs over the same data give identical results.

const (
	baseScore = 50
	minScore  = 20
	maxScore  = 95

	// Obligations above this suggest an established program likely to
	// recompete rather than lapse.
	largeObligationThreshold = 500000

	// Below this obligation a contract plausibly fits small-business
	// set-aside thresholds.
	wosbObligationCeiling = 4_000_000
)

// transportationNAICSPrefixes are the 3-digit sector codes relevant to
// freight brokerage: truck transportation, transit, support activities,
// couriers, warehousing.
var transportationNAICSPrefixes = []string{"484", "485", "488", "492", "493"}

type scoreRule struct {
	reason  string
	points  int
	applies func(models.HistoricalAward) bool
}

var recompeteRules = []scoreRule{
	{
		reason: "large obligation",
		points: 20,
		applies: func(a models.HistoricalAward) bool {
			return a.TotalObligation > largeObligationThreshold
		},
	},
	{
		reason: "IDIQ vehicle",
		points: 15,
		applies: func(a models.HistoricalAward) bool {
			return strings.Contains(strings.ToUpper(a.ContractType), "IDIQ")
		},
	},
	{
		reason: "transportation NAICS",
		points: 10,
		applies: func(a models.HistoricalAward) bool {
			for _, prefix := range transportationNAICSPrefixes {
				if strings.HasPrefix(a.NAICSCode, prefix) {
					return true
				}
			}
			return false
		},
	},
	{
		reason: "pilot program",
		points: -10,
		applies: func(a models.HistoricalAward) bool {
			return strings.Contains(strings.ToLower(a.Description), "pilot")
		},
	},
	{
		reason: "study effort",
		points: -15,
		applies: func(a models.HistoricalAward) bool {
			return strings.Contains(strings.ToLower(a.Description), "study")
		},
	},
}

// RecompeteProbability scores how likely an expiring award is to be
// recompeted, on a 0-100 scale clamped to [20, 95].
func RecompeteProbability(award models.HistoricalAward) int {
	score := baseScore
	for _, rule := range recompeteRules {
		if rule.applies(award) {
			score += rule.points
		}
	}

	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}
	return score
}

// RecompeteConfidence grades the prediction by how far out the expiration
// sits. The 90-270 day band is the sweet spot: close enough that agency
// planning has started, far enough that the solicitation hasn't posted yet.
func RecompeteConfidence(award models.HistoricalAward, daysUntilExpiration int) models.ForecastConfidence {
	if daysUntilExpiration >= 90 && daysUntilExpiration <= 270 &&
		award.Description != "" && award.NAICSCode != "" {
		return models.ConfidenceHigh
	}
	if daysUntilExpiration >= 60 && daysUntilExpiration <= 365 {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// WOSBLikely reports whether the recompete plausibly carries a woman-owned
// set-aside. This is an approximation from set-aside text and contract
// size, not a certification check.
func WOSBLikely(award models.HistoricalAward) bool {
	text := strings.ToLower(award.SetAside)
	if strings.Contains(text, "wosb") || strings.Contains(text, "women") {
		return true
	}
	return award.TotalObligation < wosbObligationCeiling
}
