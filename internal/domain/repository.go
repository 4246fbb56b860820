package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Business ledger operations
	SaveSale(ctx context.Context, tenantID string, sale *Sale) error
	ListSales(ctx context.Context, tenantID string, since time.Time) ([]*Sale, error)
	SaveInvoice(ctx context.Context, tenantID string, inv *Invoice) error
	ListInvoices(ctx context.Context, tenantID string) ([]*Invoice, error)
	SaveCustomer(ctx context.Context, tenantID string, c *Customer) error
	ListCustomers(ctx context.Context, tenantID string) ([]*Customer, error)

	// Inventory operations
	SaveInventoryItem(ctx context.Context, tenantID string, item *InventoryItem) error
	GetInventoryItem(ctx context.Context, tenantID string, itemID string) (*InventoryItem, error)
	ListInventoryItems(ctx context.Context, tenantID string) ([]*InventoryItem, error)
	// AdjustStockQuantity atomically applies a signed delta to an item's
	// stock. Fails rather than letting the quantity go negative.
	AdjustStockQuantity(ctx context.Context, tenantID string, itemID string, delta int) error
	// ApplyRestock records a restock in the ledger and increments stock in
	// one transaction. A repeat call for the same application and item is a
	// no-op.
	ApplyRestock(ctx context.Context, tenantID string, applicationID string, item RestockItem) error

	// Supplier operations
	SaveSupplier(ctx context.Context, tenantID string, s *Supplier) error
	GetSupplier(ctx context.Context, tenantID string, supplierID string) (*Supplier, error)

	// Loan product catalog operations
	SaveLoanProduct(ctx context.Context, tenantID string, p *LoanProduct) error
	GetLoanProduct(ctx context.Context, tenantID string, productID string) (*LoanProduct, error)
	ListLoanProducts(ctx context.Context, tenantID string, activeOnly bool) ([]*LoanProduct, error)

	// Loan application operations
	CreateApplication(ctx context.Context, tenantID string, app *LoanApplication) error
	GetApplication(ctx context.Context, tenantID string, appID string) (*LoanApplication, error)
	ListApplications(ctx context.Context, tenantID string, status ApplicationStatus) ([]*LoanApplication, error)
	// UpdateApplicationStatus enforces the status transition table and
	// rejects any move it does not allow.
	UpdateApplicationStatus(ctx context.Context, tenantID string, appID string, status ApplicationStatus, approvedAmount *float64) error

	// Underwriting policy operations
	SavePolicy(ctx context.Context, tenantID string, p *PolicyConfig) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*PolicyConfig, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*PolicyConfig, error)
	DeletePolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
