// Package snapshot assembles read-only business activity snapshots.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service builds BusinessSnapshots from the activity ledgers.
// Snapshots are assembled fresh on every call so scores never go stale.
type Service struct {
	repo domain.Repository
	now  func() time.Time

	// lookbackMonths bounds the sales history read for a snapshot.
	// Zero means unbounded.
	lookbackMonths int
}

// NewService creates a snapshot service.
func NewService(repo domain.Repository, lookbackMonths int) *Service {
	return &Service{
		repo:           repo,
		now:            time.Now,
		lookbackMonths: lookbackMonths,
	}
}

// Take reads all four ledgers and returns a snapshot for the tenant.
func (s *Service) Take(ctx context.Context, tenantID string) (*domain.BusinessSnapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	now := s.now()
	since := time.Time{}
	if s.lookbackMonths > 0 {
		since = now.AddDate(0, -s.lookbackMonths, 0)
	}

	sales, err := s.repo.ListSales(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	invoices, err := s.repo.ListInvoices(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	items, err := s.repo.ListInventoryItems(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}

	customers, err := s.repo.ListCustomers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	snap := &domain.BusinessSnapshot{
		TenantID: tenantID,
		TakenAt:  now,
	}
	for _, v := range sales {
		snap.Sales = append(snap.Sales, *v)
	}
	for _, v := range invoices {
		snap.Invoices = append(snap.Invoices, *v)
	}
	for _, v := range items {
		snap.Inventory = append(snap.Inventory, *v)
	}
	for _, v := range customers {
		snap.Customers = append(snap.Customers, *v)
	}

	return snap, nil
}
