package prequal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// fakeRepo implements the handful of repository methods prequal touches.
// Unimplemented methods panic via the nil embedded interface.
type fakeRepo struct {
	domain.Repository
	products  map[string]*domain.LoanProduct
	suppliers map[string]*domain.Supplier
}

func (f *fakeRepo) GetLoanProduct(ctx context.Context, tenantID, productID string) (*domain.LoanProduct, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, errors.New("record not found")
	}
	return p, nil
}

func (f *fakeRepo) GetSupplier(ctx context.Context, tenantID, supplierID string) (*domain.Supplier, error) {
	s, ok := f.suppliers[supplierID]
	if !ok || s.TenantID != tenantID {
		return nil, errors.New("record not found")
	}
	return s, nil
}

func (f *fakeRepo) ListLoanProducts(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.LoanProduct, error) {
	var out []*domain.LoanProduct
	for _, p := range f.products {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func testProduct() *domain.LoanProduct {
	return &domain.LoanProduct{
		ID:             "prod-1",
		Name:           "Inventory Line",
		MinAmount:      10000,
		MaxAmount:      100000,
		InterestRate:   12.5,
		TermMonths:     12,
		ProductType:    domain.ProductInventory,
		MinCreditScore: 600,
		IsActive:       true,
	}
}

func TestEvaluateQualified(t *testing.T) {
	result := Evaluate(testProduct(), 50000, 720)

	if !result.Qualified {
		t.Fatalf("expected qualified, got reasons %v", result.Reasons)
	}
	if len(result.Reasons) != 0 {
		t.Errorf("qualified result must not carry reasons, got %v", result.Reasons)
	}
	if result.MaxAmount != 100000 {
		t.Errorf("expected full max amount, got %.2f", result.MaxAmount)
	}
	if result.CreditScore != 720 {
		t.Errorf("expected score 720 echoed, got %d", result.CreditScore)
	}
}

func TestEvaluateAmountBoundaries(t *testing.T) {
	p := testProduct()

	cases := []struct {
		name      string
		amount    float64
		qualified bool
	}{
		{"exactly min", p.MinAmount, true},
		{"exactly max", p.MaxAmount, true},
		{"one below min", p.MinAmount - 1, false},
		{"one above max", p.MaxAmount + 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Evaluate(p, tc.amount, 720)
			if result.Qualified != tc.qualified {
				t.Errorf("amount %.0f: qualified=%v, want %v (reasons %v)",
					tc.amount, result.Qualified, tc.qualified, result.Reasons)
			}
		})
	}
}

func TestEvaluateScoreBoundary(t *testing.T) {
	p := testProduct() // MinCreditScore 600

	if r := Evaluate(p, 50000, 600); !r.Qualified {
		t.Errorf("score equal to minimum must qualify, got reasons %v", r.Reasons)
	}
	r := Evaluate(p, 50000, 599)
	if r.Qualified {
		t.Error("score one below minimum must not qualify")
	}
	if len(r.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", r.Reasons)
	}
}

func TestEvaluateReasonsIncludeGaps(t *testing.T) {
	p := testProduct()

	// Fails on score and on minimum amount
	result := Evaluate(p, 5000, 550)
	if result.Qualified {
		t.Fatal("expected not qualified")
	}
	if len(result.Reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %v", result.Reasons)
	}
}

func TestMaxEligibleAmountTiers(t *testing.T) {
	p := testProduct() // min 10000, max 100000

	cases := []struct {
		score int
		want  float64
	}{
		{499, 20000},  // min(100000, 10000*2)
		{500, 70000},  // min(100000, 100000*0.7)
		{699, 70000},
		{700, 100000},
	}

	for _, tc := range cases {
		if got := MaxEligibleAmount(p, tc.score); got != tc.want {
			t.Errorf("score %d: cap %.0f, want %.0f", tc.score, got, tc.want)
		}
	}

	// Low tier is still capped by the product maximum
	small := &domain.LoanProduct{MinAmount: 80000, MaxAmount: 100000}
	if got := MaxEligibleAmount(small, 450); got != 100000 {
		t.Errorf("expected cap at product max 100000, got %.0f", got)
	}
}

func newTestEngine(policies PolicyChecker) (*Engine, *fakeRepo) {
	repo := &fakeRepo{
		products: map[string]*domain.LoanProduct{
			"prod-1": testProduct(),
			"prod-2": {
				ID: "prod-2", Name: "Cash Advance",
				MinAmount: 1000, MaxAmount: 20000,
				InterestRate: 18.0, ProductType: domain.ProductCash,
				MinCreditScore: 500, IsActive: true,
			},
			"prod-3": {
				ID: "prod-3", Name: "Working Capital",
				MinAmount: 5000, MaxAmount: 50000,
				InterestRate: 9.5, ProductType: domain.ProductWorkingCapital,
				MinCreditScore: 700, IsActive: true,
			},
		},
		suppliers: map[string]*domain.Supplier{
			"sup-1": {ID: "sup-1", TenantID: "tenant-1", Name: "Acme Supply", IsActive: true},
			"sup-2": {ID: "sup-2", TenantID: "tenant-1", Name: "Defunct Co", IsActive: false},
		},
	}
	return NewEngine(repo, policies), repo
}

func testScore(score int) *domain.CreditScore {
	return &domain.CreditScore{
		TenantID:   "tenant-1",
		Score:      score,
		Rating:     domain.RatingFor(score),
		ComputedAt: time.Now(),
	}
}

func TestPreQualify(t *testing.T) {
	engine, _ := newTestEngine(nil)
	ctx := context.Background()

	result, err := engine.PreQualify(ctx, &Request{
		TenantID:        "tenant-1",
		ProductID:       "prod-1",
		RequestedAmount: 50000,
		SupplierID:      "sup-1",
	}, testScore(720))
	if err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}
	if !result.Qualified {
		t.Fatalf("expected qualified, got reasons %v", result.Reasons)
	}

	// Score 720 qualifies for all three products, ordered by interest rate
	if len(result.RecommendedProducts) != 3 {
		t.Fatalf("expected 3 recommended products, got %d", len(result.RecommendedProducts))
	}
	for i := 1; i < len(result.RecommendedProducts); i++ {
		if result.RecommendedProducts[i].InterestRate < result.RecommendedProducts[i-1].InterestRate {
			t.Error("recommended products not ordered by ascending interest rate")
		}
	}
}

func TestPreQualifyRecommendationsFilterByScore(t *testing.T) {
	engine, _ := newTestEngine(nil)

	result, err := engine.PreQualify(context.Background(), &Request{
		TenantID:        "tenant-1",
		ProductID:       "prod-2",
		RequestedAmount: 5000,
	}, testScore(550))
	if err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}

	// Score 550 only reaches prod-2 (min 500)
	if len(result.RecommendedProducts) != 1 || result.RecommendedProducts[0].ID != "prod-2" {
		t.Errorf("expected only prod-2 recommended, got %v", result.RecommendedProducts)
	}
}

func TestPreQualifyUnknownProduct(t *testing.T) {
	engine, _ := newTestEngine(nil)

	_, err := engine.PreQualify(context.Background(), &Request{
		TenantID:        "tenant-1",
		ProductID:       "prod-missing",
		RequestedAmount: 5000,
	}, testScore(700))
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestPreQualifyInvalidSupplier(t *testing.T) {
	engine, _ := newTestEngine(nil)
	ctx := context.Background()

	_, err := engine.PreQualify(ctx, &Request{
		TenantID:        "tenant-1",
		ProductID:       "prod-1",
		RequestedAmount: 50000,
		SupplierID:      "sup-missing",
	}, testScore(700))
	if !errors.Is(err, ErrInvalidSupplier) {
		t.Fatalf("expected ErrInvalidSupplier for unknown supplier, got %v", err)
	}

	_, err = engine.PreQualify(ctx, &Request{
		TenantID:        "tenant-1",
		ProductID:       "prod-1",
		RequestedAmount: 50000,
		SupplierID:      "sup-2",
	}, testScore(700))
	if !errors.Is(err, ErrInvalidSupplier) {
		t.Fatalf("expected ErrInvalidSupplier for inactive supplier, got %v", err)
	}
}

type fakePolicies struct {
	results []domain.PolicyResult
}

func (f *fakePolicies) Check(ctx context.Context, tenantID string, input *PolicyInput) ([]domain.PolicyResult, error) {
	return f.results, nil
}

func TestPreQualifyPolicyDisqualifies(t *testing.T) {
	engine, _ := newTestEngine(&fakePolicies{
		results: []domain.PolicyResult{
			{PolicyID: "pol-1", Passed: true},
			{PolicyID: "pol-2", Passed: false, Reason: "business too young for this product"},
		},
	})

	result, err := engine.PreQualify(context.Background(), &Request{
		TenantID:        "tenant-1",
		ProductID:       "prod-1",
		RequestedAmount: 50000,
	}, testScore(720))
	if err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}
	if result.Qualified {
		t.Fatal("expected policy to disqualify the request")
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != "business too young for this product" {
		t.Errorf("expected policy reason, got %v", result.Reasons)
	}
}
