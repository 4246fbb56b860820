// Package fulfillment credits inventory stock for approved loans.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Worker reacts to application approvals from the EventBus. For approved
// inventory-financing loans it applies each restock item independently:
// a failed item is logged and the remaining items still proceed. Every
// item application is recorded in a ledger, so redelivering an approval
// message is safe.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard)
	TenantIDs []string
}

// NewWorker creates a fulfillment worker.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing approvals for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		sub, err := w.bus.Subscribe(w.ctx, domain.TenantWildcard, domain.TopicApplicationApproved, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)

		slog.Info("fulfillment worker started", "scope", "all tenants")
		return nil
	}

	for _, tenantID := range cfg.TenantIDs {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicApplicationApproved, w.handleMessage)
		if err != nil {
			slog.Error("failed to start fulfillment worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("fulfillment workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// ApprovalMessage is the message payload published on approval.
type ApprovalMessage struct {
	ApplicationID string `json:"applicationId"`
	TenantID      string `json:"tenantId"`
	TraceID       string `json:"traceId,omitempty"`
}

// RestockSummary reports the outcome of one fulfillment run.
type RestockSummary struct {
	ApplicationID string   `json:"applicationId"`
	TenantID      string   `json:"tenantId"`
	Applied       int      `json:"applied"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	Failures      []string `json:"failures,omitempty"`
	DurationMs    int64    `json:"durationMs"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var approval ApprovalMessage
	if err := json.Unmarshal(msg.Payload, &approval); err != nil {
		slog.Error("failed to parse approval message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := approval.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	_, err := w.Fulfill(ctx, tenantID, approval.ApplicationID)
	return err
}

// Fulfill applies the restock items of an approved application.
// A failure on one item never blocks the others, and never rolls back
// items already applied; re-running for the same application only applies
// items the ledger has not seen yet.
func (w *Worker) Fulfill(ctx context.Context, tenantID, applicationID string) (*RestockSummary, error) {
	start := time.Now()

	app, err := w.repo.GetApplication(ctx, tenantID, applicationID)
	if err != nil {
		slog.Error("failed to load application for fulfillment",
			"application_id", applicationID,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	summary := &RestockSummary{
		ApplicationID: applicationID,
		TenantID:      tenantID,
	}

	if app.Status != domain.ApplicationApproved {
		slog.Warn("skipping fulfillment for non-approved application",
			"application_id", applicationID,
			"status", app.Status,
		)
		return summary, nil
	}

	for _, item := range app.ItemsToRestock {
		err := w.repo.ApplyRestock(ctx, tenantID, applicationID, item)
		switch {
		case err == nil:
			summary.Applied++
			slog.Info("restock applied",
				"application_id", applicationID,
				"item_id", item.ItemID,
				"quantity", item.Quantity,
			)
		case isAlreadyApplied(err):
			summary.Skipped++
			slog.Debug("restock already applied",
				"application_id", applicationID,
				"item_id", item.ItemID,
			)
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, item.ItemID)
			slog.Error("restock failed",
				"application_id", applicationID,
				"item_id", item.ItemID,
				"quantity", item.Quantity,
				"error", err,
			)
		}
	}

	summary.DurationMs = time.Since(start).Milliseconds()

	w.publishSummary(ctx, tenantID, summary)

	slog.Info("fulfillment finished",
		"application_id", applicationID,
		"tenant_id", tenantID,
		"applied", summary.Applied,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration_ms", summary.DurationMs,
	)

	return summary, nil
}

func (w *Worker) publishSummary(ctx context.Context, tenantID string, summary *RestockSummary) {
	if w.bus == nil {
		return
	}
	payload, _ := json.Marshal(summary)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicRestockApplied, payload); err != nil {
		slog.Error("failed to publish restock summary",
			"application_id", summary.ApplicationID,
			"error", err,
		)
	}
}

func isAlreadyApplied(err error) bool {
	return errors.Is(err, repository.ErrAlreadyApplied)
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("fulfillment workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
