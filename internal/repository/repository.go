// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyApplied    = errors.New("restock already applied")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSale stores a sale with tenant isolation.
func (r *SQLRepository) SaveSale(ctx context.Context, tenantID string, sale *domain.Sale) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sales (id, tenant_id, total_amount, sale_date, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sale.ID, tenantID, sale.TotalAmount, sale.SaleDate, sale.CreatedAt,
	)
	return err
}

// ListSales retrieves sales since a point in time with tenant isolation.
// A zero since lists everything.
func (r *SQLRepository) ListSales(ctx context.Context, tenantID string, since time.Time) ([]*domain.Sale, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, total_amount, sale_date, created_at
		FROM sales
		WHERE tenant_id = ? AND sale_date >= ?
		ORDER BY sale_date DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		var s domain.Sale
		if err := rows.Scan(&s.ID, &s.TenantID, &s.TotalAmount, &s.SaleDate, &s.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, &s)
	}

	return sales, rows.Err()
}

// SaveInvoice stores an invoice with tenant isolation.
func (r *SQLRepository) SaveInvoice(ctx context.Context, tenantID string, inv *domain.Invoice) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO invoices (id, tenant_id, status, total_amount, invoice_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_amount = excluded.total_amount,
			invoice_date = excluded.invoice_date
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		inv.ID, tenantID, string(inv.Status), inv.TotalAmount, inv.InvoiceDate, inv.CreatedAt,
	)
	return err
}

// ListInvoices retrieves all invoices for a tenant.
func (r *SQLRepository) ListInvoices(ctx context.Context, tenantID string) ([]*domain.Invoice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, status, total_amount, invoice_date, created_at
		FROM invoices
		WHERE tenant_id = ?
		ORDER BY invoice_date DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		var status string
		if err := rows.Scan(&inv.ID, &inv.TenantID, &status, &inv.TotalAmount, &inv.InvoiceDate, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.Status = domain.InvoiceStatus(status)
		invoices = append(invoices, &inv)
	}

	return invoices, rows.Err()
}

// SaveCustomer stores a customer with tenant isolation.
func (r *SQLRepository) SaveCustomer(ctx context.Context, tenantID string, c *domain.Customer) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO customers (id, tenant_id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.Name, c.Email, c.Phone, c.CreatedAt,
	)
	return err
}

// ListCustomers retrieves all customers for a tenant.
func (r *SQLRepository) ListCustomers(ctx context.Context, tenantID string) ([]*domain.Customer, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, email, phone, created_at
		FROM customers
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		var email, phone sql.NullString
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &email, &phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Email = email.String
		c.Phone = phone.String
		customers = append(customers, &c)
	}

	return customers, rows.Err()
}

// SaveSupplier stores a supplier with tenant isolation.
func (r *SQLRepository) SaveSupplier(ctx context.Context, tenantID string, s *domain.Supplier) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	active := 0
	if s.IsActive {
		active = 1
	}

	query := `
		INSERT INTO suppliers (id, tenant_id, name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, tenantID, s.Name, active, s.CreatedAt,
	)
	return err
}

// GetSupplier retrieves a supplier by ID with tenant isolation.
func (r *SQLRepository) GetSupplier(ctx context.Context, tenantID string, supplierID string) (*domain.Supplier, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, is_active, created_at
		FROM suppliers
		WHERE tenant_id = ? AND id = ?
	`

	var s domain.Supplier
	var active int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, supplierID).Scan(
		&s.ID, &s.TenantID, &s.Name, &active, &s.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.IsActive = active == 1
	return &s, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
