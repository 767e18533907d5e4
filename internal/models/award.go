package models

import "time"

// HistoricalAward is a past contract award pulled from an award data
// provider (USAspending or a fixture). Only the fields the expiration
// analyzer scores on are kept.
type HistoricalAward struct {
	ID              string    `json:"id"`
	Description     string    `json:"description"`
	Recipient       string    `json:"recipient"`
	Agency          string    `json:"agency"`
	AgencyCode      string    `json:"agencyCode"`
	NAICSCode       string    `json:"naicsCode"`
	ContractType    string    `json:"contractType"`
	SetAside        string    `json:"setAside"`
	TotalObligation float64   `json:"totalObligation"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
}
