// Package workflow implements the loan application state machine.
// A workflow is single-flight per user session: it assembles one
// application at a time and is not persisted mid-flow.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/prequal"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/snapshot"
)

var (
	// ErrInvalidState means the requested action is not allowed from the
	// workflow's current state.
	ErrInvalidState = errors.New("invalid workflow state")

	// ErrValidation means the caller supplied an invalid application.
	// Nothing is written when it is returned.
	ErrValidation = errors.New("validation failed")
)

// State is the closed set of workflow states. Each state carries the data
// accumulated so far; there are no optional fields shared across states.
type State interface {
	stateName() string
}

// ProductsState is the initial state: browsing the loan product catalog.
type ProductsState struct{}

// PreQualifyState holds a selected product awaiting pre-qualification.
type PreQualifyState struct {
	Product *domain.LoanProduct
}

// ApplicationState holds a qualified request being assembled for
// submission. RequestedAmount is the amount that qualified and does not
// change for the remainder of the flow.
type ApplicationState struct {
	Product         *domain.LoanProduct
	Result          *domain.PreQualificationResult
	RequestedAmount float64
	SupplierID      string
	Items           []domain.RestockItem
}

// ApprovalState is terminal for the flow: the application is persisted as
// pending and underwriting happens asynchronously elsewhere.
type ApprovalState struct {
	Application *domain.LoanApplication
}

func (ProductsState) stateName() string    { return "products" }
func (PreQualifyState) stateName() string  { return "prequalify" }
func (ApplicationState) stateName() string { return "application" }
func (ApprovalState) stateName() string    { return "approval" }

// Workflow drives one loan application from product selection to submission.
type Workflow struct {
	tenantID string
	state    State

	repo     domain.Repository
	bus      domain.EventBus
	snapshot *snapshot.Service
	scoring  *scoring.Engine
	prequal  *prequal.Engine
	logger   *slog.Logger
}

// New creates a workflow for one tenant, starting at product selection.
func New(tenantID string, repo domain.Repository, eventBus domain.EventBus,
	snapshotSvc *snapshot.Service, scoringEngine *scoring.Engine,
	prequalEngine *prequal.Engine, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		tenantID: tenantID,
		state:    ProductsState{},
		repo:     repo,
		bus:      eventBus,
		snapshot: snapshotSvc,
		scoring:  scoringEngine,
		prequal:  prequalEngine,
		logger:   logger,
	}
}

// State returns the current workflow state.
func (w *Workflow) State() State {
	return w.state
}

// SelectProduct moves from product browsing to pre-qualification.
// Any amount, supplier, or item selection from a previous pass is discarded.
func (w *Workflow) SelectProduct(ctx context.Context, productID string) error {
	switch w.state.(type) {
	case ProductsState, PreQualifyState:
	default:
		return fmt.Errorf("%w: cannot select a product from %s", ErrInvalidState, w.state.stateName())
	}

	product, err := w.repo.GetLoanProduct(ctx, w.tenantID, productID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}
	if !product.IsActive {
		return fmt.Errorf("%w: product %s is not active", ErrValidation, productID)
	}

	w.state = PreQualifyState{Product: product}
	return nil
}

// PreQualify computes a fresh credit score and checks the requested amount
// against the selected product. On a qualified result the workflow moves to
// application assembly and the amount becomes fixed; otherwise the workflow
// stays put and the result carries the unmet conditions.
func (w *Workflow) PreQualify(ctx context.Context, requestedAmount float64, supplierID string) (*domain.PreQualificationResult, error) {
	st, ok := w.state.(PreQualifyState)
	if !ok {
		return nil, fmt.Errorf("%w: cannot pre-qualify from %s", ErrInvalidState, w.state.stateName())
	}

	if requestedAmount <= 0 {
		return nil, fmt.Errorf("%w: requested amount must be positive", ErrValidation)
	}

	snap, err := w.snapshot.Take(ctx, w.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to take snapshot: %w", err)
	}
	score := w.scoring.Score(snap)

	result, err := w.prequal.PreQualify(ctx, &prequal.Request{
		TenantID:        w.tenantID,
		ProductID:       st.Product.ID,
		RequestedAmount: requestedAmount,
		SupplierID:      supplierID,
	}, score)
	if err != nil {
		return nil, err
	}

	if !result.Qualified {
		w.logger.Info("pre-qualification declined",
			"tenantId", w.tenantID,
			"productId", st.Product.ID,
			"score", score.Score,
			"reasons", result.Reasons)
		return result, nil
	}

	w.state = ApplicationState{
		Product:         st.Product,
		Result:          result,
		RequestedAmount: requestedAmount,
		SupplierID:      supplierID,
	}
	return result, nil
}

// SelectItem adds a restock line to an inventory-financing application.
// The quantity is bounded by the item's available stock at selection time.
func (w *Workflow) SelectItem(ctx context.Context, itemID string, quantity int) error {
	st, ok := w.state.(ApplicationState)
	if !ok {
		return fmt.Errorf("%w: cannot select items from %s", ErrInvalidState, w.state.stateName())
	}
	if st.Product.ProductType != domain.ProductInventory {
		return fmt.Errorf("%w: product %s does not finance inventory", ErrValidation, st.Product.ID)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	item, err := w.repo.GetInventoryItem(ctx, w.tenantID, itemID)
	if err != nil {
		return fmt.Errorf("failed to load inventory item: %w", err)
	}
	if quantity > item.StockQuantity {
		return fmt.Errorf("%w: quantity %d exceeds available stock %d for %s",
			ErrValidation, quantity, item.StockQuantity, item.Name)
	}

	for i, existing := range st.Items {
		if existing.ItemID == itemID {
			st.Items[i].Quantity = quantity
			w.state = st
			return nil
		}
	}

	st.Items = append(st.Items, domain.RestockItem{
		ItemID:    item.ID,
		Name:      item.Name,
		Quantity:  quantity,
		UnitPrice: item.UnitPrice,
	})
	w.state = st
	return nil
}

// RemoveItem drops a restock line from the selection.
func (w *Workflow) RemoveItem(itemID string) error {
	st, ok := w.state.(ApplicationState)
	if !ok {
		return fmt.Errorf("%w: cannot remove items from %s", ErrInvalidState, w.state.stateName())
	}
	for i, existing := range st.Items {
		if existing.ItemID == itemID {
			st.Items = append(st.Items[:i], st.Items[i+1:]...)
			w.state = st
			return nil
		}
	}
	return nil
}

// Back navigates one step backwards without losing the selected product.
func (w *Workflow) Back() error {
	switch st := w.state.(type) {
	case PreQualifyState:
		w.state = ProductsState{}
		return nil
	case ApplicationState:
		w.state = PreQualifyState{Product: st.Product}
		return nil
	default:
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidState, w.state.stateName())
	}
}

// Cancel aborts the flow from any non-terminal state. In-flight selections
// are discarded and no record is created.
func (w *Workflow) Cancel() error {
	if _, ok := w.state.(ApprovalState); ok {
		return fmt.Errorf("%w: application already submitted", ErrInvalidState)
	}
	w.state = ProductsState{}
	return nil
}

// Submit validates the assembled application and persists it with status
// pending. Submission is atomic: either the full record is created or
// nothing is. The credit score from pre-qualification is snapshotted into
// the record and never recomputed afterwards.
func (w *Workflow) Submit(ctx context.Context) (*domain.LoanApplication, error) {
	st, ok := w.state.(ApplicationState)
	if !ok {
		return nil, fmt.Errorf("%w: cannot submit from %s", ErrInvalidState, w.state.stateName())
	}

	if err := w.validateSubmission(st); err != nil {
		return nil, err
	}

	app := &domain.LoanApplication{
		TenantID:        w.tenantID,
		LoanProductID:   st.Product.ID,
		SupplierID:      st.SupplierID,
		RequestedAmount: st.RequestedAmount,
		CreditScore:     st.Result.CreditScore,
		ItemsToRestock:  st.Items,
		Status:          domain.ApplicationPending,
		ApplicationData: map[string]any{
			"productName":  st.Product.Name,
			"productType":  string(st.Product.ProductType),
			"termMonths":   st.Product.TermMonths,
			"interestRate": st.Product.InterestRate,
		},
	}

	if err := w.repo.CreateApplication(ctx, w.tenantID, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	w.publishSubmitted(ctx, app)

	w.logger.Info("application submitted",
		"tenantId", w.tenantID,
		"applicationNumber", app.ApplicationNumber,
		"productId", st.Product.ID,
		"requestedAmount", st.RequestedAmount,
		"creditScore", app.CreditScore)

	w.state = ApprovalState{Application: app}
	return app, nil
}

func (w *Workflow) validateSubmission(st ApplicationState) error {
	if st.RequestedAmount <= 0 {
		return fmt.Errorf("%w: requested amount must be positive", ErrValidation)
	}

	if st.Product.ProductType == domain.ProductInventory {
		if len(st.Items) == 0 {
			return fmt.Errorf("%w: select at least one item to restock", ErrValidation)
		}
		total := domain.TotalItemsValue(st.Items)
		if total > st.RequestedAmount {
			return fmt.Errorf("%w: selected items total %.2f exceeds requested amount %.2f",
				ErrValidation, total, st.RequestedAmount)
		}
	}

	return nil
}

func (w *Workflow) publishSubmitted(ctx context.Context, app *domain.LoanApplication) {
	if w.bus == nil {
		return
	}
	payload, err := json.Marshal(app)
	if err != nil {
		w.logger.Error("failed to marshal application event", "error", err)
		return
	}
	if err := w.bus.Publish(ctx, w.tenantID, domain.TopicApplicationSubmitted, payload); err != nil {
		w.logger.Error("failed to publish application event",
			"applicationNumber", app.ApplicationNumber, "error", err)
	}
}
