package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/prequal"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/snapshot"
)

// fakeRepo backs the workflow with in-memory ledgers. Unused repository
// methods panic via the nil embedded interface.
type fakeRepo struct {
	domain.Repository

	products  map[string]*domain.LoanProduct
	suppliers map[string]*domain.Supplier
	items     map[string]*domain.InventoryItem

	sales     []*domain.Sale
	invoices  []*domain.Invoice
	customers []*domain.Customer

	created []*domain.LoanApplication
}

var errNotFound = errors.New("record not found")

func (f *fakeRepo) GetLoanProduct(ctx context.Context, tenantID, id string) (*domain.LoanProduct, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
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

func (f *fakeRepo) GetSupplier(ctx context.Context, tenantID, id string) (*domain.Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return nil, errNotFound
	}
	return s, nil
}

func (f *fakeRepo) GetInventoryItem(ctx context.Context, tenantID, id string) (*domain.InventoryItem, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, errNotFound
	}
	return it, nil
}

func (f *fakeRepo) ListSales(ctx context.Context, tenantID string, since time.Time) ([]*domain.Sale, error) {
	return f.sales, nil
}

func (f *fakeRepo) ListInvoices(ctx context.Context, tenantID string) ([]*domain.Invoice, error) {
	return f.invoices, nil
}

func (f *fakeRepo) ListInventoryItems(ctx context.Context, tenantID string) ([]*domain.InventoryItem, error) {
	var out []*domain.InventoryItem
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeRepo) ListCustomers(ctx context.Context, tenantID string) ([]*domain.Customer, error) {
	return f.customers, nil
}

func (f *fakeRepo) CreateApplication(ctx context.Context, tenantID string, app *domain.LoanApplication) error {
	app.ID = uuid.New().String()
	app.ApplicationNumber = fmt.Sprintf("LA-TEST-%04d", len(f.created)+1)
	app.SubmittedAt = time.Now().UTC()
	f.created = append(f.created, app)
	return nil
}

// healthyRepo returns ledgers for a business that scores well enough to
// qualify for the test products.
func healthyRepo() *fakeRepo {
	now := time.Now()

	repo := &fakeRepo{
		products: map[string]*domain.LoanProduct{
			"prod-inv": {
				ID: "prod-inv", Name: "Inventory Line",
				MinAmount: 10000, MaxAmount: 150000,
				InterestRate: 12.5, TermMonths: 12,
				ProductType:    domain.ProductInventory,
				MinCreditScore: 500, IsActive: true,
			},
			"prod-cash": {
				ID: "prod-cash", Name: "Cash Advance",
				MinAmount: 1000, MaxAmount: 20000,
				InterestRate: 18.0, TermMonths: 6,
				ProductType:    domain.ProductCash,
				MinCreditScore: 500, IsActive: true,
			},
			"prod-inactive": {
				ID: "prod-inactive", Name: "Retired Product",
				ProductType: domain.ProductCash,
			},
		},
		suppliers: map[string]*domain.Supplier{
			"sup-1": {ID: "sup-1", TenantID: "tenant-1", Name: "Acme Supply", IsActive: true},
		},
		items: map[string]*domain.InventoryItem{
			"item-1": {ID: "item-1", Name: "Widget", StockQuantity: 100, UnitPrice: 500, IsActive: true},
			"item-2": {ID: "item-2", Name: "Gadget", StockQuantity: 40, UnitPrice: 2000, IsActive: true},
		},
	}

	// Three years of steady sales, mostly-paid invoices, contactable customers
	for m := 0; m < 36; m++ {
		repo.sales = append(repo.sales, &domain.Sale{
			TotalAmount: 10000,
			SaleDate:    now.AddDate(0, -m, 0),
		})
	}
	for i := 0; i < 20; i++ {
		status := domain.InvoicePaid
		if i == 0 {
			status = domain.InvoiceOverdue
		}
		repo.invoices = append(repo.invoices, &domain.Invoice{Status: status})
	}
	for i := 0; i < 30; i++ {
		repo.customers = append(repo.customers, &domain.Customer{Email: "c@example.com"})
	}

	return repo
}

func newTestWorkflow(repo *fakeRepo) *Workflow {
	snapshotSvc := snapshot.NewService(repo, 0)
	scoringEngine := scoring.NewEngine()
	prequalEngine := prequal.NewEngine(repo, nil)
	return New("tenant-1", repo, nil, snapshotSvc, scoringEngine, prequalEngine, nil)
}

func TestHappyPathInventoryApplication(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	if _, ok := w.State().(ProductsState); !ok {
		t.Fatal("workflow must start in products state")
	}

	if err := w.SelectProduct(ctx, "prod-inv"); err != nil {
		t.Fatalf("SelectProduct failed: %v", err)
	}
	if _, ok := w.State().(PreQualifyState); !ok {
		t.Fatal("expected prequalify state after product selection")
	}

	result, err := w.PreQualify(ctx, 100000, "sup-1")
	if err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}
	if !result.Qualified {
		t.Fatalf("expected qualified, got reasons %v", result.Reasons)
	}
	if _, ok := w.State().(ApplicationState); !ok {
		t.Fatal("expected application state after qualification")
	}

	if err := w.SelectItem(ctx, "item-1", 50); err != nil { // 25000
		t.Fatalf("SelectItem failed: %v", err)
	}
	if err := w.SelectItem(ctx, "item-2", 20); err != nil { // 40000
		t.Fatalf("SelectItem failed: %v", err)
	}

	app, err := w.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if app.Status != domain.ApplicationPending {
		t.Errorf("expected pending status, got %s", app.Status)
	}
	if app.ApplicationNumber == "" {
		t.Error("expected an application number to be assigned")
	}
	if app.CreditScore != result.CreditScore {
		t.Errorf("application snapshot score %d differs from prequal score %d",
			app.CreditScore, result.CreditScore)
	}
	if len(app.ItemsToRestock) != 2 {
		t.Errorf("expected 2 restock items, got %d", len(app.ItemsToRestock))
	}
	if _, ok := w.State().(ApprovalState); !ok {
		t.Fatal("expected approval state after submission")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected exactly one persisted application, got %d", len(repo.created))
	}
}

func TestSubmitBlockedWhenItemsExceedAmount(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-inv")
	result, err := w.PreQualify(ctx, 100000, "")
	if err != nil || !result.Qualified {
		t.Fatalf("setup failed: %v %v", err, result)
	}

	// 60 gadgets at 2000 = 120000, over the 100000 qualified amount
	if err := w.SelectItem(ctx, "item-2", 40); err != nil {
		t.Fatalf("SelectItem failed: %v", err)
	}
	st := w.State().(ApplicationState)
	st.Items[0].Quantity = 60
	w.state = st

	_, err = w.Submit(ctx)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeds requested amount") {
		t.Errorf("expected blocking reason to name the overage, got %q", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("no application record may be created on a blocked submission")
	}
	if _, ok := w.State().(ApplicationState); !ok {
		t.Error("workflow must stay in application state after a blocked submit")
	}
}

func TestSubmitBlockedWithoutItems(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-inv")
	if _, err := w.PreQualify(ctx, 50000, ""); err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}

	_, err := w.Submit(ctx)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty item selection, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("no application record may be created")
	}
}

func TestCashProductSkipsItemSelection(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-cash")
	if _, err := w.PreQualify(ctx, 15000, ""); err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}

	if err := w.SelectItem(ctx, "item-1", 5); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error selecting items on a cash product, got %v", err)
	}

	app, err := w.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(app.ItemsToRestock) != 0 {
		t.Errorf("cash application must not carry restock items")
	}
}

func TestPreQualifyDeclinedStaysPut(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-cash")

	// Above the product maximum of 20000
	result, err := w.PreQualify(ctx, 50000, "")
	if err != nil {
		t.Fatalf("PreQualify failed: %v", err)
	}
	if result.Qualified {
		t.Fatal("expected declined result")
	}
	if len(result.Reasons) == 0 {
		t.Error("declined result must carry reasons")
	}
	if _, ok := w.State().(PreQualifyState); !ok {
		t.Error("workflow must stay in prequalify state after a declined check")
	}
}

func TestItemQuantityBoundedByStock(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-inv")
	w.PreQualify(ctx, 100000, "")

	// item-2 has 40 in stock
	if err := w.SelectItem(ctx, "item-2", 41); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for quantity above stock, got %v", err)
	}
	if err := w.SelectItem(ctx, "item-2", 40); err != nil {
		t.Errorf("quantity equal to stock must be allowed, got %v", err)
	}
}

func TestBackNavigation(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-inv")
	w.PreQualify(ctx, 50000, "")

	if err := w.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	st, ok := w.State().(PreQualifyState)
	if !ok || st.Product.ID != "prod-inv" {
		t.Fatal("back from application must return to prequalify with the product kept")
	}

	if err := w.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if _, ok := w.State().(ProductsState); !ok {
		t.Fatal("back from prequalify must return to products")
	}

	if err := w.Back(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state error going back from products, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-inv")
	w.PreQualify(ctx, 50000, "")
	w.SelectItem(ctx, "item-1", 10)

	if err := w.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, ok := w.State().(ProductsState); !ok {
		t.Fatal("cancel must reset to products state")
	}
	if len(repo.created) != 0 {
		t.Fatal("cancel must not create any record")
	}

	// Terminal state cannot be cancelled
	w.SelectProduct(ctx, "prod-cash")
	w.PreQualify(ctx, 15000, "")
	if _, err := w.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := w.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected invalid state error cancelling a submitted flow, got %v", err)
	}
}

func TestSelectProductResetsSelections(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	w.SelectProduct(ctx, "prod-inv")
	w.PreQualify(ctx, 100000, "sup-1")
	w.SelectItem(ctx, "item-1", 10)

	w.Back()
	if err := w.SelectProduct(ctx, "prod-cash"); err != nil {
		t.Fatalf("SelectProduct failed: %v", err)
	}
	w.PreQualify(ctx, 15000, "")

	st := w.State().(ApplicationState)
	if len(st.Items) != 0 || st.SupplierID != "" {
		t.Error("reselecting a product must discard prior item and supplier selections")
	}
	if st.RequestedAmount != 15000 {
		t.Errorf("expected fresh requested amount 15000, got %.0f", st.RequestedAmount)
	}
}

func TestInactiveProductRejected(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)

	err := w.SelectProduct(context.Background(), "prod-inactive")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for inactive product, got %v", err)
	}
}

func TestInvalidStateErrors(t *testing.T) {
	repo := healthyRepo()
	w := newTestWorkflow(repo)
	ctx := context.Background()

	if _, err := w.PreQualify(ctx, 1000, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("PreQualify from products: got %v", err)
	}
	if _, err := w.Submit(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Submit from products: got %v", err)
	}
	if err := w.SelectItem(ctx, "item-1", 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SelectItem from products: got %v", err)
	}
}
