// Package policy provides the CEL-Go based underwriting policy engine.
// Tenants configure policies as boolean expressions over the applicant's
// score breakdown and loan request; a false result blocks qualification.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/prequal"
)

// Engine compiles and evaluates underwriting policies.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledPolicy
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.PolicyConfig
	Program cel.Program
}

// NewEngine creates a policy engine.
func NewEngine() (*Engine, error) {
	// CEL environment with score and request variables
	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("rating", cel.StringType),
		cel.Variable("factors", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("requested_amount", cel.DoubleType),
		cel.Variable("product_type", cel.StringType),
		cel.Variable("term_months", cel.IntType),
		cel.Variable("interest_rate", cel.DoubleType),
		cel.Variable("min_credit_score", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledPolicy),
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(cfg *domain.PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled

	return nil
}

// UnloadPolicy removes a policy from the engine. Unloading an unknown ID
// is a no-op.
func (e *Engine) UnloadPolicy(policyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiled, policyID)
}

// LoadPolicies compiles and loads multiple policies.
func (e *Engine) LoadPolicies(configs []*domain.PolicyConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadPolicies clears all existing policies and loads new ones.
// This enables hot-reloading of policies from the database.
func (e *Engine) ReloadPolicies(configs []*domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := make(map[string]*CompiledPolicy)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		fresh[cfg.ID] = compiled
	}

	e.compiled = fresh

	return nil
}

// Check evaluates all loaded policies against a pre-qualification request.
// An evaluation error fails closed: the policy reports Passed=false with
// the error recorded.
func (e *Engine) Check(ctx context.Context, tenantID string, input *prequal.PolicyInput) ([]domain.PolicyResult, error) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		// Tenant-scoped policies only apply to their own tenant
		if p.Config.TenantID != "" && p.Config.TenantID != tenantID {
			continue
		}
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil, nil
	}

	factors := make(map[string]int, len(input.Score.Factors))
	for name, f := range input.Score.Factors {
		factors[string(name)] = f.Score
	}

	activation := map[string]any{
		"score":            input.Score.Score,
		"rating":           string(input.Score.Rating),
		"factors":          factors,
		"requested_amount": input.RequestedAmount,
		"product_type":     string(input.Product.ProductType),
		"term_months":      input.Product.TermMonths,
		"interest_rate":    input.Product.InterestRate,
		"min_credit_score": input.Product.MinCreditScore,
	}

	results := make([]domain.PolicyResult, 0, len(policies))
	for _, p := range policies {
		results = append(results, e.evaluate(p, activation))
	}

	return results, nil
}

func (e *Engine) evaluate(p *CompiledPolicy, activation map[string]any) domain.PolicyResult {
	result := domain.PolicyResult{PolicyID: p.Config.ID}

	out, _, err := p.Program.Eval(activation)
	if err != nil {
		result.Passed = false
		result.Reason = p.Config.Reason
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	passed, ok := out.(types.Bool)
	if !ok {
		result.Passed = false
		result.Reason = p.Config.Reason
		result.Err = "expression did not return bool"
		return result
	}

	result.Passed = bool(passed)
	if !result.Passed {
		result.Reason = p.Config.Reason
	}

	return result
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedPolicies returns the currently loaded policy configurations.
func (e *Engine) GetLoadedPolicies() []*domain.PolicyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.PolicyConfig, 0, len(e.compiled))
	for _, p := range e.compiled {
		out = append(out, p.Config)
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.PolicyConfig) (*CompiledPolicy, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}
