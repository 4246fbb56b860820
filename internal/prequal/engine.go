// Package prequal implements loan pre-qualification decisions.
// Given a loan product, a requested amount, and a credit score, it decides
// eligibility and the applicant's maximum eligible amount. Decisions are
// stateless and non-binding.
package prequal

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrProductNotFound means the referenced loan product does not exist.
	ErrProductNotFound = errors.New("loan product not found")

	// ErrInvalidSupplier means the supplier reference is missing, belongs
	// to another tenant, or is inactive.
	ErrInvalidSupplier = errors.New("invalid supplier")
)

// PolicyChecker evaluates tenant underwriting policies against a request.
// Results with Passed=false carry the reason to surface to the applicant.
type PolicyChecker interface {
	Check(ctx context.Context, tenantID string, input *PolicyInput) ([]domain.PolicyResult, error)
}

// PolicyInput is the request data exposed to underwriting policies.
type PolicyInput struct {
	Score           *domain.CreditScore
	Product         *domain.LoanProduct
	RequestedAmount float64
}

// Engine makes pre-qualification decisions.
type Engine struct {
	repo     domain.Repository
	policies PolicyChecker
}

// NewEngine creates a pre-qualification engine. The policy checker is
// optional; without one, decisions use score and amount bounds only.
func NewEngine(repo domain.Repository, policies PolicyChecker) *Engine {
	return &Engine{repo: repo, policies: policies}
}

// Request identifies what an applicant is asking to be pre-qualified for.
type Request struct {
	TenantID        string
	ProductID       string
	RequestedAmount float64
	SupplierID      string // optional; validated but not used in the decision
}

// PreQualify loads the product, validates the supplier reference, and
// evaluates the request against the given score. It has no side effects.
func (e *Engine) PreQualify(ctx context.Context, req *Request, score *domain.CreditScore) (*domain.PreQualificationResult, error) {
	product, err := e.repo.GetLoanProduct(ctx, req.TenantID, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, req.ProductID)
	}

	if req.SupplierID != "" {
		supplier, err := e.repo.GetSupplier(ctx, req.TenantID, req.SupplierID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSupplier, req.SupplierID)
		}
		if !supplier.IsActive {
			return nil, fmt.Errorf("%w: supplier %s is inactive", ErrInvalidSupplier, req.SupplierID)
		}
	}

	result := Evaluate(product, req.RequestedAmount, score.Score)
	result.RecommendedProducts, err = e.recommend(ctx, req.TenantID, score.Score)
	if err != nil {
		return nil, err
	}

	if e.policies != nil && result.Qualified {
		policyResults, err := e.policies.Check(ctx, req.TenantID, &PolicyInput{
			Score:           score,
			Product:         product,
			RequestedAmount: req.RequestedAmount,
		})
		if err != nil {
			return nil, fmt.Errorf("policy check failed: %w", err)
		}
		for _, pr := range policyResults {
			if !pr.Passed {
				result.Qualified = false
				reason := pr.Reason
				if reason == "" {
					reason = fmt.Sprintf("underwriting policy %s not met", pr.PolicyID)
				}
				result.Reasons = append(result.Reasons, reason)
			}
		}
	}

	return result, nil
}

// Evaluate applies the core qualification rules. Pure and deterministic;
// callers that already hold the product can use it directly.
func Evaluate(product *domain.LoanProduct, requestedAmount float64, score int) *domain.PreQualificationResult {
	meetsScore := score >= product.MinCreditScore
	withinMin := requestedAmount >= product.MinAmount
	withinMax := requestedAmount <= product.MaxAmount

	result := &domain.PreQualificationResult{
		Qualified:   meetsScore && withinMin && withinMax,
		MaxAmount:   MaxEligibleAmount(product, score),
		CreditScore: score,
	}

	if !result.Qualified {
		if !meetsScore {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("credit score %d is %d points below the required %d",
					score, product.MinCreditScore-score, product.MinCreditScore))
		}
		if !withinMin {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("requested amount %.2f is %.2f below the product minimum %.2f",
					requestedAmount, product.MinAmount-requestedAmount, product.MinAmount))
		}
		if !withinMax {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("requested amount %.2f is %.2f above the product maximum %.2f",
					requestedAmount, requestedAmount-product.MaxAmount, product.MaxAmount))
		}
	}

	return result
}

// MaxEligibleAmount computes the cap for a given product and score,
// independent of whether the request qualifies.
func MaxEligibleAmount(product *domain.LoanProduct, score int) float64 {
	switch {
	case score < 500:
		return min(product.MaxAmount, product.MinAmount*2)
	case score < 700:
		return min(product.MaxAmount, product.MaxAmount*0.7)
	default:
		return product.MaxAmount
	}
}

// recommend returns every active product the score qualifies for,
// cheapest interest rate first.
func (e *Engine) recommend(ctx context.Context, tenantID string, score int) ([]domain.LoanProduct, error) {
	products, err := e.repo.ListLoanProducts(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan products: %w", err)
	}

	var out []domain.LoanProduct
	for _, p := range products {
		if p.MinCreditScore <= score {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InterestRate < out[j].InterestRate
	})
	return out, nil
}
