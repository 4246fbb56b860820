package policy

import (
	"context"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/prequal"
)

func testInput(score int) *prequal.PolicyInput {
	return &prequal.PolicyInput{
		Score: &domain.CreditScore{
			Score:  score,
			Rating: domain.RatingFor(score),
			Factors: map[domain.FactorName]domain.ScoreFactor{
				domain.FactorPaymentHistory: {Score: 620, Weight: 35},
				domain.FactorBusinessAge:    {Score: 430, Weight: 15},
			},
		},
		Product: &domain.LoanProduct{
			ProductType:    domain.ProductInventory,
			TermMonths:     12,
			InterestRate:   12.5,
			MinCreditScore: 600,
		},
		RequestedAmount: 50000,
	}
}

func TestLoadAndCheck(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	policies := []*domain.PolicyConfig{
		{
			ID:         "min-score",
			Expression: "score >= 550",
			Reason:     "credit score below policy floor",
			Enabled:    true,
		},
		{
			ID:         "large-loan-history",
			Expression: "requested_amount < 75000.0 || factors['businessAge'] >= 500",
			Reason:     "large loans require longer operating history",
			Enabled:    true,
		},
		{
			ID:         "disabled-policy",
			Expression: "false",
			Enabled:    false,
		},
	}

	if err := engine.LoadPolicies(policies); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	if engine.PoliciesCount() != 2 {
		t.Errorf("expected 2 loaded policies, got %d", engine.PoliciesCount())
	}

	results, err := engine.Check(context.Background(), "tenant-1", testInput(680))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("policy %s unexpectedly failed: %s", r.PolicyID, r.Reason)
		}
	}
}

func TestCheckFailingPolicy(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadPolicy(&domain.PolicyConfig{
		ID:         "min-score",
		Expression: "score >= 550",
		Reason:     "credit score below policy floor",
		Enabled:    true,
	})

	results, err := engine.Check(context.Background(), "tenant-1", testInput(480))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Passed {
		t.Error("expected policy to fail for score 480")
	}
	if results[0].Reason != "credit score below policy floor" {
		t.Errorf("expected configured reason, got %q", results[0].Reason)
	}
}

func TestTenantScopedPolicy(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadPolicy(&domain.PolicyConfig{
		ID:         "tenant-a-only",
		TenantID:   "tenant-a",
		Expression: "false",
		Reason:     "blocked",
		Enabled:    true,
	})

	results, err := engine.Check(context.Background(), "tenant-b", testInput(700))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("tenant-b must not see tenant-a policies, got %d results", len(results))
	}

	results, _ = engine.Check(context.Background(), "tenant-a", testInput(700))
	if len(results) != 1 || results[0].Passed {
		t.Errorf("tenant-a policy not applied: %v", results)
	}
}

func TestValidatePolicy(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	err := engine.ValidatePolicy(&domain.PolicyConfig{
		ID:         "bad-syntax",
		Expression: "score >=",
	})
	if err == nil {
		t.Error("expected compile error for invalid expression")
	}

	err = engine.ValidatePolicy(&domain.PolicyConfig{
		ID:         "non-bool",
		Expression: "score + 10",
	})
	if err == nil {
		t.Error("expected error for non-boolean expression")
	}

	// Validation must not load the policy
	if engine.PoliciesCount() != 0 {
		t.Errorf("ValidatePolicy must not load, count %d", engine.PoliciesCount())
	}
}

func TestReloadPolicies(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadPolicy(&domain.PolicyConfig{ID: "old", Expression: "true", Enabled: true})

	err := engine.ReloadPolicies([]*domain.PolicyConfig{
		{ID: "new-1", Expression: "score >= 300", Enabled: true},
		{ID: "new-2", Expression: "rating != 'Poor'", Enabled: true},
	})
	if err != nil {
		t.Fatalf("ReloadPolicies failed: %v", err)
	}

	if engine.PoliciesCount() != 2 {
		t.Errorf("expected 2 policies after reload, got %d", engine.PoliciesCount())
	}
	for _, p := range engine.GetLoadedPolicies() {
		if p.ID == "old" {
			t.Error("old policy survived reload")
		}
	}
}
