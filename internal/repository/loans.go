package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveLoanProduct stores a loan product catalog entry.
// TenantID may be empty for catalog entries shared across tenants.
func (r *SQLRepository) SaveLoanProduct(ctx context.Context, tenantID string, p *domain.LoanProduct) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	active := 0
	if p.IsActive {
		active = 1
	}

	query := `
		INSERT INTO loan_products (
			id, tenant_id, name, min_amount, max_amount, interest_rate,
			term_months, product_type, min_credit_score, is_active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			interest_rate = excluded.interest_rate,
			term_months = excluded.term_months,
			product_type = excluded.product_type,
			min_credit_score = excluded.min_credit_score,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.MinAmount, p.MaxAmount, p.InterestRate,
		p.TermMonths, string(p.ProductType), p.MinCreditScore, active,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetLoanProduct retrieves a loan product by ID. Shared catalog entries
// (empty tenant_id) are visible to every tenant.
func (r *SQLRepository) GetLoanProduct(ctx context.Context, tenantID string, productID string) (*domain.LoanProduct, error) {
	query := `
		SELECT id, tenant_id, name, min_amount, max_amount, interest_rate,
			   term_months, product_type, min_credit_score, is_active,
			   created_at, updated_at
		FROM loan_products
		WHERE id = ? AND (tenant_id = ? OR tenant_id = '')
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), productID, tenantID)
	p, err := scanLoanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListLoanProducts retrieves the catalog visible to a tenant.
func (r *SQLRepository) ListLoanProducts(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.LoanProduct, error) {
	query := `
		SELECT id, tenant_id, name, min_amount, max_amount, interest_rate,
			   term_months, product_type, min_credit_score, is_active,
			   created_at, updated_at
		FROM loan_products
		WHERE (tenant_id = ? OR tenant_id = '')
	`
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY interest_rate"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.LoanProduct
	for rows.Next() {
		p, err := scanLoanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoanProduct(row rowScanner) (*domain.LoanProduct, error) {
	var p domain.LoanProduct
	var productType string
	var active int

	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.MinAmount, &p.MaxAmount, &p.InterestRate,
		&p.TermMonths, &productType, &p.MinCreditScore, &active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ProductType = domain.ProductType(productType)
	p.IsActive = active == 1
	return &p, nil
}

// CreateApplication persists a new loan application. The ID, application
// number, and timestamps are assigned here; the application number is
// unique and never changes afterwards.
func (r *SQLRepository) CreateApplication(ctx context.Context, tenantID string, app *domain.LoanApplication) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if app.RequestedAmount <= 0 {
		return fmt.Errorf("%w: requested amount must be positive", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	if app.ApplicationNumber == "" {
		app.ApplicationNumber = newApplicationNumber(now)
	}
	if app.Status == "" {
		app.Status = domain.ApplicationPending
	}
	app.TenantID = tenantID
	app.SubmittedAt = now
	app.UpdatedAt = now

	items, _ := json.Marshal(app.ItemsToRestock)
	data, _ := json.Marshal(app.ApplicationData)

	query := `
		INSERT INTO loan_applications (
			id, tenant_id, application_number, loan_product_id, supplier_id,
			requested_amount, approved_amount, credit_score, items_to_restock,
			status, application_data, submitted_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		app.ID, tenantID, app.ApplicationNumber, app.LoanProductID, app.SupplierID,
		app.RequestedAmount, app.ApprovedAmount, app.CreditScore, string(items),
		string(app.Status), string(data), app.SubmittedAt, app.UpdatedAt,
	)
	return err
}

// newApplicationNumber builds a unique application number like
// LA-20250630-4F2A91BC. The UNIQUE column catches the unlikely collision.
func newApplicationNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("LA-%s-%s", now.Format("20060102"), suffix)
}

// GetApplication retrieves a loan application by ID with tenant isolation.
func (r *SQLRepository) GetApplication(ctx context.Context, tenantID string, appID string) (*domain.LoanApplication, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, application_number, loan_product_id, supplier_id,
			   requested_amount, approved_amount, credit_score, items_to_restock,
			   status, application_data, submitted_at, updated_at
		FROM loan_applications
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, appID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return app, err
}

// ListApplications retrieves applications for a tenant, optionally
// filtered by status.
func (r *SQLRepository) ListApplications(ctx context.Context, tenantID string, status domain.ApplicationStatus) ([]*domain.LoanApplication, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, application_number, loan_product_id, supplier_id,
			   requested_amount, approved_amount, credit_score, items_to_restock,
			   status, application_data, submitted_at, updated_at
		FROM loan_applications
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY submitted_at DESC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*domain.LoanApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

func scanApplication(row rowScanner) (*domain.LoanApplication, error) {
	var app domain.LoanApplication
	var supplierID sql.NullString
	var approvedAmount sql.NullFloat64
	var items, data, status string

	err := row.Scan(
		&app.ID, &app.TenantID, &app.ApplicationNumber, &app.LoanProductID, &supplierID,
		&app.RequestedAmount, &approvedAmount, &app.CreditScore, &items,
		&status, &data, &app.SubmittedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.SupplierID = supplierID.String
	if approvedAmount.Valid {
		app.ApprovedAmount = &approvedAmount.Float64
	}
	app.Status = domain.ApplicationStatus(status)
	if items != "" {
		json.Unmarshal([]byte(items), &app.ItemsToRestock)
	}
	if data != "" {
		json.Unmarshal([]byte(data), &app.ApplicationData)
	}

	return &app, nil
}

// UpdateApplicationStatus moves an application through its lifecycle.
// The transition table is enforced inside a transaction; a disallowed
// move returns ErrInvalidTransition and nothing changes.
func (r *SQLRepository) UpdateApplicationStatus(ctx context.Context, tenantID string, appID string, status domain.ApplicationStatus, approvedAmount *float64) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	selectQuery := `SELECT status FROM loan_applications WHERE tenant_id = ? AND id = ?`
	err = tx.QueryRowContext(ctx, r.rebind(selectQuery), tenantID, appID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if !domain.CanTransition(domain.ApplicationStatus(current), status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	updateQuery := `
		UPDATE loan_applications
		SET status = ?, approved_amount = COALESCE(?, approved_amount), updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	_, err = tx.ExecContext(ctx, r.rebind(updateQuery),
		string(status), approvedAmount, time.Now().UTC(), tenantID, appID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SavePolicy stores an underwriting policy with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, p *domain.PolicyConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO policies (
			id, tenant_id, name, description, version, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Description,
		p.Version, p.Expression, p.Reason, enabled,
		now, now,
	)
	return err
}

// GetPolicy retrieves the latest enabled version of a policy.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.PolicyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, enabled, created_at, updated_at
		FROM policies
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var p domain.PolicyConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description,
		&p.Version, &p.Expression, &p.Reason, &enabled,
		&p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Enabled = enabled == 1
	return &p, nil
}

// ListPolicies retrieves all enabled policies for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.PolicyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, enabled, created_at, updated_at
		FROM policies
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.PolicyConfig
	for rows.Next() {
		var p domain.PolicyConfig
		var enabled int

		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Name, &p.Description,
			&p.Version, &p.Expression, &p.Reason, &enabled,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}

		p.Enabled = enabled == 1
		policies = append(policies, &p)
	}

	return policies, rows.Err()
}

// DeletePolicy soft-deletes a policy by setting enabled = 0.
func (r *SQLRepository) DeletePolicy(ctx context.Context, tenantID string, policyID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE policies
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, policyID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
