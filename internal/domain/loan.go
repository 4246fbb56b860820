package domain

import (
	"time"
)

// ProductType classifies what a loan product finances.
type ProductType string

const (
	ProductInventory      ProductType = "inventory"
	ProductCash           ProductType = "cash"
	ProductWorkingCapital ProductType = "working_capital"
	ProductEquipment      ProductType = "equipment"
)

// LoanProduct is an immutable catalog entry describing a loan offering.
type LoanProduct struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	Name           string      `json:"name"`
	MinAmount      float64     `json:"minAmount"`
	MaxAmount      float64     `json:"maxAmount"`
	InterestRate   float64     `json:"interestRate"` // annual percentage
	TermMonths     int         `json:"termMonths"`
	ProductType    ProductType `json:"productType"`
	MinCreditScore int         `json:"minCreditScore"`
	IsActive       bool        `json:"isActive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RestockItem is one inventory line selected on an inventory-financing
// application. Quantity is always positive.
type RestockItem struct {
	ItemID    string  `json:"itemId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// TotalItemsValue returns the sum of quantity*unitPrice over the selection.
func TotalItemsValue(items []RestockItem) float64 {
	var total float64
	for _, it := range items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

// ApplicationStatus is the lifecycle state of a submitted loan application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationDisbursed ApplicationStatus = "disbursed"
	ApplicationCancelled ApplicationStatus = "cancelled"
)

// validStatusTransitions holds the allowed status edges. The engine only
// creates applications as pending; every later edge is an underwriter or
// disbursement action.
var validStatusTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:  {ApplicationApproved, ApplicationRejected, ApplicationCancelled},
	ApplicationApproved: {ApplicationDisbursed, ApplicationCancelled},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to ApplicationStatus) bool {
	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// LoanApplication is a persisted loan application record. ApplicationNumber
// is unique and immutable once assigned; CreditScore is the snapshot taken
// at submission time and never changes afterwards.
type LoanApplication struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	ApplicationNumber string            `json:"applicationNumber"`
	LoanProductID     string            `json:"loanProductId"`
	SupplierID        string            `json:"supplierId,omitempty"`
	RequestedAmount   float64           `json:"requestedAmount"`
	ApprovedAmount    *float64          `json:"approvedAmount,omitempty"`
	CreditScore       int               `json:"creditScore"`
	ItemsToRestock    []RestockItem     `json:"itemsToRestock,omitempty"`
	Status            ApplicationStatus `json:"status"`
	ApplicationData   map[string]any    `json:"applicationData,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
