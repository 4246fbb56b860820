// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Sale is a completed point-of-sale transaction recorded by the sales ledger.
type Sale struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	TotalAmount float64   `json:"totalAmount"`
	SaleDate    time.Time `json:"saleDate"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice is an accounts-receivable entry recorded by the invoicing ledger.
type Invoice struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Status      InvoiceStatus `json:"status"`
	TotalAmount float64       `json:"totalAmount"`
	InvoiceDate time.Time     `json:"invoiceDate"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// InventoryItem is a stocked product owned by the inventory ledger.
// StockQuantity is never negative.
type InventoryItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name          string  `json:"name"`
	StockQuantity int     `json:"stockQuantity"`
	UnitPrice     float64 `json:"unitPrice"`
	MinStockLevel int     `json:"minStockLevel"`
	IsActive      bool    `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Customer is a contact recorded by the customer ledger.
type Customer struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Supplier is a purchasing counterparty a business can name on an
// inventory-financing application.
type Supplier struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// BusinessSnapshot is a read-only view of one business's activity ledgers.
// The scoring engine never mutates it; it is assembled fresh for every
// score computation.
type BusinessSnapshot struct {
	TenantID  string          `json:"tenantId"`
	Sales     []Sale          `json:"sales"`
	Invoices  []Invoice       `json:"invoices"`
	Inventory []InventoryItem `json:"inventory"`
	Customers []Customer      `json:"customers"`
	TakenAt   time.Time       `json:"takenAt"`
}
