package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// The sync endpoints accept batches from the management app's ledgers.
// Records are upserted by ID, so re-sending a batch is safe.

// SyncResponse reports the outcome of a ledger sync batch.
type SyncResponse struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncSales handles POST /sales requests.
func (h *Handler) SyncSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var sales []domain.Sale
	if err := json.NewDecoder(r.Body).Decode(&sales); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body, expected an array of sales",
		})
		return
	}

	var resp SyncResponse
	for i := range sales {
		if sales[i].ID == "" || sales[i].TotalAmount < 0 {
			resp.Failed++
			continue
		}
		if err := h.repo.SaveSale(ctx, tenantID, &sales[i]); err != nil {
			slog.Error("failed to save sale", "id", sales[i].ID, "error", err)
			resp.Failed++
			continue
		}
		resp.Synced++
	}

	writeJSON(w, http.StatusOK, resp)
}

// SyncInvoices handles POST /invoices requests.
func (h *Handler) SyncInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var invoices []domain.Invoice
	if err := json.NewDecoder(r.Body).Decode(&invoices); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body, expected an array of invoices",
		})
		return
	}

	var resp SyncResponse
	for i := range invoices {
		if invoices[i].ID == "" || invoices[i].Status == "" {
			resp.Failed++
			continue
		}
		if err := h.repo.SaveInvoice(ctx, tenantID, &invoices[i]); err != nil {
			slog.Error("failed to save invoice", "id", invoices[i].ID, "error", err)
			resp.Failed++
			continue
		}
		resp.Synced++
	}

	writeJSON(w, http.StatusOK, resp)
}

// SyncInventory handles POST /inventory requests.
func (h *Handler) SyncInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var items []domain.InventoryItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body, expected an array of inventory items",
		})
		return
	}

	var resp SyncResponse
	for i := range items {
		if items[i].ID == "" || items[i].StockQuantity < 0 {
			resp.Failed++
			continue
		}
		if err := h.repo.SaveInventoryItem(ctx, tenantID, &items[i]); err != nil {
			slog.Error("failed to save inventory item", "id", items[i].ID, "error", err)
			resp.Failed++
			continue
		}
		resp.Synced++
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetInventoryItem handles GET /inventory/{id} requests. It reads the
// item back from the repository, so restock credits applied by the
// fulfillment worker are visible here.
func (h *Handler) GetInventoryItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	itemID := chi.URLParam(r, "id")

	item, err := h.repo.GetInventoryItem(ctx, tenantID, itemID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "inventory item not found: " + itemID,
		})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// SyncCustomers handles POST /customers requests.
func (h *Handler) SyncCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var customers []domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&customers); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body, expected an array of customers",
		})
		return
	}

	var resp SyncResponse
	for i := range customers {
		if customers[i].ID == "" {
			resp.Failed++
			continue
		}
		if err := h.repo.SaveCustomer(ctx, tenantID, &customers[i]); err != nil {
			slog.Error("failed to save customer", "id", customers[i].ID, "error", err)
			resp.Failed++
			continue
		}
		resp.Synced++
	}

	writeJSON(w, http.StatusOK, resp)
}

// SyncSuppliers handles POST /suppliers requests.
func (h *Handler) SyncSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var suppliers []domain.Supplier
	if err := json.NewDecoder(r.Body).Decode(&suppliers); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body, expected an array of suppliers",
		})
		return
	}

	var resp SyncResponse
	for i := range suppliers {
		if suppliers[i].ID == "" {
			resp.Failed++
			continue
		}
		if err := h.repo.SaveSupplier(ctx, tenantID, &suppliers[i]); err != nil {
			slog.Error("failed to save supplier", "id", suppliers[i].ID, "error", err)
			resp.Failed++
			continue
		}
		resp.Synced++
	}

	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// POLICY HANDLERS
// ============================================================================

// CreatePolicyRequest is the request body for creating a policy.
type CreatePolicyRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason"`
	Enabled     bool   `json:"enabled"`
}

// ListPolicies returns all policies loaded in the engine.
// Policies are loaded from the database at startup and can be reloaded
// via POST /policies/reload.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	loaded := h.policies.GetLoadedPolicies()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": loaded,
		"count":    len(loaded),
		"source":   "database",
	})
}

// GetPolicy retrieves a policy by ID from the loaded engine policies.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	for _, p := range h.policies.GetLoadedPolicies() {
		if p.ID == policyID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "policy not found",
	})
}

// CreatePolicy creates a new underwriting policy for the tenant and loads
// it into the engine.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	cfg := &domain.PolicyConfig{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.policies.LoadPolicy(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SavePolicy(ctx, tenantID, cfg); err != nil {
		slog.Error("failed to save policy", "id", cfg.ID, "error", err)
		h.policies.UnloadPolicy(cfg.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save policy",
		})
		return
	}

	slog.Info("policy created", "id", cfg.ID, "name", cfg.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, cfg)
}

// DeletePolicy disables a policy and removes it from the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyID := chi.URLParam(r, "id")

	if err := h.repo.DeletePolicy(ctx, tenantID, policyID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "policy not found",
		})
		return
	}

	if h.policies != nil {
		h.policies.UnloadPolicy(policyID)
	}

	slog.Info("policy deleted", "id", policyID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policy deleted",
	})
}

// ReloadPolicies reloads the tenant's policies from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	dbPolicies, err := h.repo.ListPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policies.LoadPolicies(dbPolicies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "tenant_id", tenantID, "count", len(dbPolicies))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   len(dbPolicies),
	})
}
