package domain

import "time"

// PolicyConfig defines a configurable underwriting policy. Policies are
// CEL expressions evaluated against the applicant's score breakdown and
// request at pre-qualification time; an expression returning false blocks
// qualification and surfaces Reason to the applicant.
type PolicyConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool
	Expression string `json:"expression"`

	// Reason reported when the expression evaluates to false
	Reason string `json:"reason"`

	// Whether policy is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// PolicyResult is the output of evaluating a single policy.
type PolicyResult struct {
	PolicyID string `json:"policyId"`
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason,omitempty"`
	Err      string `json:"error,omitempty"`
}
