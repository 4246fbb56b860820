package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaSales = `
CREATE TABLE IF NOT EXISTS sales (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    total_amount REAL NOT NULL,
    sale_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_tenant ON sales(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(tenant_id, sale_date);
`

const schemaInvoices = `
CREATE TABLE IF NOT EXISTS invoices (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    status TEXT NOT NULL,
    total_amount REAL NOT NULL,
    invoice_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_tenant ON invoices(tenant_id);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(tenant_id, status);
`

const schemaInventoryItems = `
CREATE TABLE IF NOT EXISTS inventory_items (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
    unit_price REAL NOT NULL DEFAULT 0,
    min_stock_level INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inventory_tenant ON inventory_items(tenant_id);
CREATE INDEX IF NOT EXISTS idx_inventory_active ON inventory_items(tenant_id, is_active);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    email TEXT,
    phone TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_tenant ON customers(tenant_id);
`

const schemaSuppliers = `
CREATE TABLE IF NOT EXISTS suppliers (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suppliers_tenant ON suppliers(tenant_id);
`

const schemaLoanProducts = `
CREATE TABLE IF NOT EXISTS loan_products (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    min_amount REAL NOT NULL,
    max_amount REAL NOT NULL,
    interest_rate REAL NOT NULL,
    term_months INTEGER NOT NULL,
    product_type TEXT NOT NULL,
    min_credit_score INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loan_products_tenant ON loan_products(tenant_id);
CREATE INDEX IF NOT EXISTS idx_loan_products_active ON loan_products(tenant_id, is_active);
`

const schemaLoanApplications = `
CREATE TABLE IF NOT EXISTS loan_applications (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    application_number TEXT NOT NULL UNIQUE,
    loan_product_id TEXT NOT NULL,
    supplier_id TEXT,
    requested_amount REAL NOT NULL,
    approved_amount REAL,
    credit_score INTEGER NOT NULL,
    items_to_restock TEXT,
    status TEXT NOT NULL,
    application_data TEXT,
    submitted_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_tenant ON loan_applications(tenant_id);
CREATE INDEX IF NOT EXISTS idx_applications_status ON loan_applications(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_applications_number ON loan_applications(application_number);
`

// schemaRestockLedger tracks which application/item pairs have already
// been credited to stock, making fulfillment idempotent per item.
const schemaRestockLedger = `
CREATE TABLE IF NOT EXISTS restock_ledger (
    application_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    applied_at TIMESTAMP NOT NULL,
    PRIMARY KEY (application_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_restock_ledger_tenant ON restock_ledger(tenant_id);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_enabled ON policies(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSales,
		schemaInvoices,
		schemaInventoryItems,
		schemaCustomers,
		schemaSuppliers,
		schemaLoanProducts,
		schemaLoanApplications,
		schemaRestockLedger,
		schemaPolicies,
	}
}
