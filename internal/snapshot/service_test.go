package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-snapshot-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestTakeAssemblesAllLedgers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now()

	repo.SaveSale(ctx, tenantID, &domain.Sale{
		ID: "sale-1", TotalAmount: 1200, SaleDate: now.AddDate(0, -1, 0),
	})
	repo.SaveInvoice(ctx, tenantID, &domain.Invoice{
		ID: "inv-1", TotalAmount: 500, Status: domain.InvoicePaid, CreatedAt: now,
	})
	repo.SaveInventoryItem(ctx, tenantID, &domain.InventoryItem{
		ID: "item-1", Name: "Widget", StockQuantity: 7, UnitPrice: 10, IsActive: true,
	})
	repo.SaveCustomer(ctx, tenantID, &domain.Customer{
		ID: "cust-1", Name: "Acme", Email: "buyer@acme.test",
	})

	svc := NewService(repo, 24)
	snap, err := svc.Take(ctx, tenantID)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	if snap.TenantID != tenantID {
		t.Errorf("expected tenant %s, got %s", tenantID, snap.TenantID)
	}
	if len(snap.Sales) != 1 || len(snap.Invoices) != 1 || len(snap.Inventory) != 1 || len(snap.Customers) != 1 {
		t.Errorf("unexpected ledger counts: sales=%d invoices=%d inventory=%d customers=%d",
			len(snap.Sales), len(snap.Invoices), len(snap.Inventory), len(snap.Customers))
	}
	if snap.TakenAt.IsZero() {
		t.Error("expected TakenAt to be set")
	}
}

func TestTakeBoundsSalesLookback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	now := time.Now()

	repo.SaveSale(ctx, tenantID, &domain.Sale{
		ID: "sale-recent", TotalAmount: 900, SaleDate: now.AddDate(0, -2, 0),
	})
	repo.SaveSale(ctx, tenantID, &domain.Sale{
		ID: "sale-ancient", TotalAmount: 800, SaleDate: now.AddDate(-4, 0, 0),
	})

	svc := NewService(repo, 24)
	snap, err := svc.Take(ctx, tenantID)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if len(snap.Sales) != 1 {
		t.Fatalf("expected 1 sale inside the lookback window, got %d", len(snap.Sales))
	}
	if snap.Sales[0].ID != "sale-recent" {
		t.Errorf("expected sale-recent, got %s", snap.Sales[0].ID)
	}
}

func TestTakeIsolatesTenants(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.SaveCustomer(ctx, "tenant-a", &domain.Customer{ID: "cust-1", Name: "Acme"})

	svc := NewService(repo, 0)
	snap, err := svc.Take(ctx, "tenant-b")
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if len(snap.Customers) != 0 {
		t.Errorf("expected empty snapshot for other tenant, got %d customers", len(snap.Customers))
	}
}

func TestTakeRequiresTenant(t *testing.T) {
	svc := NewService(newTestRepo(t), 0)
	if _, err := svc.Take(context.Background(), ""); err == nil {
		t.Error("expected error for empty tenant")
	}
}
