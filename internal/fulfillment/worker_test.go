package fulfillment

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-fulfillment-*.db")
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

func seedApprovedApplication(t *testing.T, repo domain.Repository, tenantID string, items []domain.RestockItem) *domain.LoanApplication {
	t.Helper()
	ctx := context.Background()

	app := &domain.LoanApplication{
		LoanProductID:   "prod-001",
		RequestedAmount: 50000,
		CreditScore:     690,
		ItemsToRestock:  items,
		Status:          domain.ApplicationPending,
	}
	if err := repo.CreateApplication(ctx, tenantID, app); err != nil {
		t.Fatalf("CreateApplication failed: %v", err)
	}
	if err := repo.UpdateApplicationStatus(ctx, tenantID, app.ID, domain.ApplicationApproved, nil); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	return app
}

func TestFulfillCreditsStock(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	repo.SaveInventoryItem(ctx, tenantID, &domain.InventoryItem{
		ID: "item-1", Name: "Widget", StockQuantity: 10, UnitPrice: 100, IsActive: true,
	})
	repo.SaveInventoryItem(ctx, tenantID, &domain.InventoryItem{
		ID: "item-2", Name: "Gadget", StockQuantity: 5, UnitPrice: 250, IsActive: true,
	})

	app := seedApprovedApplication(t, repo, tenantID, []domain.RestockItem{
		{ItemID: "item-1", Name: "Widget", Quantity: 30, UnitPrice: 100},
		{ItemID: "item-2", Name: "Gadget", Quantity: 8, UnitPrice: 250},
	})

	w := NewWorker(nil, repo)
	summary, err := w.Fulfill(ctx, tenantID, app.ID)
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if summary.Applied != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	item1, _ := repo.GetInventoryItem(ctx, tenantID, "item-1")
	item2, _ := repo.GetInventoryItem(ctx, tenantID, "item-2")
	if item1.StockQuantity != 40 {
		t.Errorf("expected item-1 stock 40, got %d", item1.StockQuantity)
	}
	if item2.StockQuantity != 13 {
		t.Errorf("expected item-2 stock 13, got %d", item2.StockQuantity)
	}
}

func TestFulfillContinuesPastMissingItem(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	repo.SaveInventoryItem(ctx, tenantID, &domain.InventoryItem{
		ID: "item-1", Name: "Widget", StockQuantity: 10, UnitPrice: 100, IsActive: true,
	})

	app := seedApprovedApplication(t, repo, tenantID, []domain.RestockItem{
		{ItemID: "item-1", Name: "Widget", Quantity: 30, UnitPrice: 100},
		{ItemID: "item-deleted", Name: "Phantom", Quantity: 5, UnitPrice: 50},
	})

	w := NewWorker(nil, repo)
	summary, err := w.Fulfill(ctx, tenantID, app.ID)
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	// The first item still lands even though the second does not exist
	if summary.Applied != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0] != "item-deleted" {
		t.Errorf("unexpected failures: %v", summary.Failures)
	}

	item1, _ := repo.GetInventoryItem(ctx, tenantID, "item-1")
	if item1.StockQuantity != 40 {
		t.Errorf("expected item-1 stock 40, got %d", item1.StockQuantity)
	}

	// The application stays approved despite the partial failure
	got, _ := repo.GetApplication(ctx, tenantID, app.ID)
	if got.Status != domain.ApplicationApproved {
		t.Errorf("expected status approved, got %s", got.Status)
	}
}

func TestFulfillIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	repo.SaveInventoryItem(ctx, tenantID, &domain.InventoryItem{
		ID: "item-1", Name: "Widget", StockQuantity: 0, UnitPrice: 100, IsActive: true,
	})

	app := seedApprovedApplication(t, repo, tenantID, []domain.RestockItem{
		{ItemID: "item-1", Name: "Widget", Quantity: 20, UnitPrice: 100},
	})

	w := NewWorker(nil, repo)
	first, err := w.Fulfill(ctx, tenantID, app.ID)
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if first.Applied != 1 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	// Redelivery applies nothing new
	second, err := w.Fulfill(ctx, tenantID, app.ID)
	if err != nil {
		t.Fatalf("second Fulfill failed: %v", err)
	}
	if second.Applied != 0 || second.Skipped != 1 {
		t.Fatalf("unexpected second summary: %+v", second)
	}

	item1, _ := repo.GetInventoryItem(ctx, tenantID, "item-1")
	if item1.StockQuantity != 20 {
		t.Errorf("stock double credited: %d", item1.StockQuantity)
	}
}

func TestFulfillSkipsNonApproved(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	app := &domain.LoanApplication{
		LoanProductID:   "prod-001",
		RequestedAmount: 5000,
		CreditScore:     650,
		ItemsToRestock:  []domain.RestockItem{{ItemID: "item-1", Quantity: 5, UnitPrice: 10}},
		Status:          domain.ApplicationPending,
	}
	if err := repo.CreateApplication(ctx, tenantID, app); err != nil {
		t.Fatalf("CreateApplication failed: %v", err)
	}

	w := NewWorker(nil, repo)
	summary, err := w.Fulfill(ctx, tenantID, app.ID)
	if err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if summary.Applied != 0 || summary.Failed != 0 {
		t.Errorf("pending application must not be fulfilled: %+v", summary)
	}
}

func TestWorkerProcessesApprovalEvents(t *testing.T) {
	repo := newTestRepo(t)
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	repo.SaveInventoryItem(ctx, tenantID, &domain.InventoryItem{
		ID: "item-1", Name: "Widget", StockQuantity: 10, UnitPrice: 100, IsActive: true,
	})
	app := seedApprovedApplication(t, repo, tenantID, []domain.RestockItem{
		{ItemID: "item-1", Name: "Widget", Quantity: 15, UnitPrice: 100},
	})

	w := NewWorker(eventBus, repo)
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Fatalf("expected 1 wildcard subscription, got %d", stats.SubscriptionCount)
	}

	var summaryReceived atomic.Bool
	eventBus.Subscribe(ctx, tenantID, domain.TopicRestockApplied, func(ctx context.Context, msg *domain.Message) error {
		var summary RestockSummary
		if err := json.Unmarshal(msg.Payload, &summary); err == nil && summary.Applied == 1 {
			summaryReceived.Store(true)
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(ApprovalMessage{ApplicationID: app.ID, TenantID: tenantID})
	if err := eventBus.Publish(ctx, tenantID, domain.TopicApplicationApproved, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	item1, err := repo.GetInventoryItem(ctx, tenantID, "item-1")
	if err != nil {
		t.Fatalf("GetInventoryItem failed: %v", err)
	}
	if item1.StockQuantity != 25 {
		t.Errorf("expected stock 25 after event-driven fulfillment, got %d", item1.StockQuantity)
	}
	if !summaryReceived.Load() {
		t.Error("expected restock summary to be published")
	}
}
