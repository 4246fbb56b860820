package domain

import "time"

// Credit scores and per-factor scores live on the consumer credit scale.
const (
	ScoreFloor   = 300
	ScoreCeiling = 850
)

// FactorName identifies one of the five weighted scoring factors.
type FactorName string

const (
	FactorPaymentHistory      FactorName = "paymentHistory"
	FactorBusinessAge         FactorName = "businessAge"
	FactorRevenueStability    FactorName = "revenueStability"
	FactorInventoryManagement FactorName = "inventoryManagement"
	FactorCustomerBase        FactorName = "customerBase"
)

// FactorWeights maps each factor to its percentage weight in the composite
// score. The weights always sum to exactly 100.
var FactorWeights = map[FactorName]int{
	FactorPaymentHistory:      35,
	FactorBusinessAge:         15,
	FactorRevenueStability:    25,
	FactorInventoryManagement: 15,
	FactorCustomerBase:        10,
}

// ScoreFactor is one weighted component of a credit score.
type ScoreFactor struct {
	Score       int    `json:"score"`  // [300, 850]
	Weight      int    `json:"weight"` // percentage
	Description string `json:"description"`
}

// Rating is the label band for a composite credit score.
type Rating string

const (
	RatingExcellent Rating = "Excellent"
	RatingVeryGood  Rating = "Very Good"
	RatingGood      Rating = "Good"
	RatingFair      Rating = "Fair"
	RatingPoor      Rating = "Poor"
)

// RatingFor maps a composite score to its rating band.
func RatingFor(score int) Rating {
	switch {
	case score >= 800:
		return RatingExcellent
	case score >= 740:
		return RatingVeryGood
	case score >= 670:
		return RatingGood
	case score >= 580:
		return RatingFair
	default:
		return RatingPoor
	}
}

// CreditScore is the composite creditworthiness result for one business.
// It is always derived fresh from a BusinessSnapshot and never persisted
// as the source of truth.
type CreditScore struct {
	TenantID     string                     `json:"tenantId"`
	Score        int                        `json:"score"`
	Rating       Rating                     `json:"rating"`
	Factors      map[FactorName]ScoreFactor `json:"factors"`
	Improvements []string                   `json:"improvements"`
	ComputedAt   time.Time                  `json:"computedAt"`
}
