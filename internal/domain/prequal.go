package domain

// PreQualificationResult is the outcome of a pre-qualification check.
// A non-qualified result is a normal decision outcome, not an error;
// Reasons is populated only when Qualified is false.
type PreQualificationResult struct {
	Qualified           bool          `json:"qualified"`
	MaxAmount           float64       `json:"maxAmount"`
	CreditScore         int           `json:"creditScore"`
	RecommendedProducts []LoanProduct `json:"recommendedProducts"`
	Reasons             []string      `json:"reasons,omitempty"`
}
