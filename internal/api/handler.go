package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fulfillment"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/prequal"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/snapshot"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// productCacheTTL bounds how long a catalog entry may be served from cache.
const productCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	snapshot *snapshot.Service
	scoring  *scoring.Engine
	prequal  *prequal.Engine
	policies *policy.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, snapshotSvc *snapshot.Service, scoringEngine *scoring.Engine, prequalEngine *prequal.Engine, policyEngine *policy.Engine, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		snapshot: snapshotSvc,
		scoring:  scoringEngine,
		prequal:  prequalEngine,
		policies: policyEngine,
		version:  version,
	}
}

// GetScore handles GET /score requests. The score is always computed from
// a fresh ledger snapshot.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	snap, err := h.snapshot.Take(ctx, tenantID)
	if err != nil {
		slog.Error("failed to take business snapshot", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read business activity",
		})
		return
	}

	score := h.scoring.Score(snap)
	writeJSON(w, http.StatusOK, score)
}

// PreQualifyRequest is the request body for POST /prequalify.
type PreQualifyRequest struct {
	ProductID       string  `json:"productId"`
	RequestedAmount float64 `json:"requestedAmount"`
	SupplierID      string  `json:"supplierId,omitempty"`
}

// PreQualifyResponse is the response for POST /prequalify.
type PreQualifyResponse struct {
	*domain.PreQualificationResult
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// PreQualify handles POST /prequalify requests.
func (h *Handler) PreQualify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req PreQualifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "productId is required",
		})
		return
	}
	if req.RequestedAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "requestedAmount must be positive",
		})
		return
	}

	snap, err := h.snapshot.Take(ctx, tenantID)
	if err != nil {
		slog.Error("failed to take business snapshot", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read business activity",
		})
		return
	}
	score := h.scoring.Score(snap)

	result, err := h.prequal.PreQualify(ctx, &prequal.Request{
		TenantID:        tenantID,
		ProductID:       req.ProductID,
		RequestedAmount: req.RequestedAmount,
		SupplierID:      req.SupplierID,
	}, score)
	if err != nil {
		switch {
		case errors.Is(err, prequal.ErrProductNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "loan product not found",
			})
		case errors.Is(err, prequal.ErrInvalidSupplier):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "supplier is unknown or inactive",
			})
		default:
			slog.Error("pre-qualification failed", "tenant_id", tenantID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "pre-qualification failed",
			})
		}
		return
	}

	resp := PreQualifyResponse{PreQualificationResult: result}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// ListProducts returns the loan product catalog visible to the tenant.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	activeOnly := r.URL.Query().Get("all") != "true"

	products, err := h.repo.ListLoanProducts(ctx, tenantID, activeOnly)
	if err != nil {
		slog.Error("failed to list products", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list products",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct retrieves one catalog entry, cached because the catalog is
// immutable between updates.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")

	if h.cache != nil {
		if product, err := h.cache.GetProduct(ctx, tenantID, productID); err == nil && product != nil {
			writeJSON(w, http.StatusOK, product)
			return
		}
	}

	product, err := h.repo.GetLoanProduct(ctx, tenantID, productID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "loan product not found",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetProduct(ctx, tenantID, productID, product, productCacheTTL)
	}

	writeJSON(w, http.StatusOK, product)
}

// CreateProduct creates or updates a catalog entry for the tenant.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var product domain.LoanProduct
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if product.ID == "" || product.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}
	if product.MinAmount <= 0 || product.MaxAmount < product.MinAmount {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "minAmount must be positive and maxAmount must be at least minAmount",
		})
		return
	}
	if product.MinCreditScore < domain.ScoreFloor || product.MinCreditScore > domain.ScoreCeiling {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "minCreditScore must be on the credit score scale",
		})
		return
	}

	if err := h.repo.SaveLoanProduct(ctx, tenantID, &product); err != nil {
		slog.Error("failed to save product", "id", product.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save product",
		})
		return
	}

	// Drop any stale cached copy
	if h.cache != nil {
		_ = h.cache.Delete(ctx, tenantID, "product:"+product.ID)
	}

	slog.Info("loan product saved", "id", product.ID, "name", product.Name)
	writeJSON(w, http.StatusCreated, &product)
}

// ItemSelection is one inventory line in an application request.
type ItemSelection struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// ApplicationRequest is the request body for POST /applications. It drives
// the full application flow in one shot: product selection,
// pre-qualification, item selection, and submission.
type ApplicationRequest struct {
	ProductID       string          `json:"productId"`
	RequestedAmount float64         `json:"requestedAmount"`
	SupplierID      string          `json:"supplierId,omitempty"`
	Items           []ItemSelection `json:"items,omitempty"`
}

// ApplicationResponse is the response for POST /applications.
type ApplicationResponse struct {
	Application   *domain.LoanApplication       `json:"application,omitempty"`
	Qualification *domain.PreQualificationResult `json:"qualification"`
	Metadata      struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// CreateApplication handles POST /applications requests.
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req ApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "productId is required",
		})
		return
	}
	if req.RequestedAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "requestedAmount must be positive",
		})
		return
	}

	wf := workflow.New(tenantID, h.repo, h.bus, h.snapshot, h.scoring, h.prequal, slog.Default())

	if err := wf.SelectProduct(ctx, req.ProductID); err != nil {
		if errors.Is(err, workflow.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "loan product not found",
		})
		return
	}

	result, err := wf.PreQualify(ctx, req.RequestedAmount, req.SupplierID)
	if err != nil {
		if errors.Is(err, workflow.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("pre-qualification failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "pre-qualification failed",
		})
		return
	}

	if !result.Qualified {
		resp := ApplicationResponse{Qualification: result}
		resp.Metadata.TraceID = traceID
		resp.Metadata.TotalMs = time.Since(start).Milliseconds()
		resp.Metadata.Version = h.version
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	for _, sel := range req.Items {
		if err := wf.SelectItem(ctx, sel.ItemID, sel.Quantity); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	app, err := wf.Submit(ctx)
	if err != nil {
		if errors.Is(err, workflow.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("application submission failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to submit application",
		})
		return
	}

	resp := ApplicationResponse{Application: app, Qualification: result}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// ListApplications returns the tenant's applications, optionally filtered
// by ?status=.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	status := domain.ApplicationStatus(r.URL.Query().Get("status"))

	apps, err := h.repo.ListApplications(ctx, tenantID, status)
	if err != nil {
		slog.Error("failed to list applications", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list applications",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applications": apps,
		"count":        len(apps),
	})
}

// GetApplication retrieves an application by ID.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	appID := chi.URLParam(r, "id")

	app, err := h.repo.GetApplication(ctx, tenantID, appID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "application not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// StatusRequest is the request body for POST /applications/{id}/status.
type StatusRequest struct {
	Status         domain.ApplicationStatus `json:"status"`
	ApprovedAmount *float64                 `json:"approvedAmount,omitempty"`
}

// UpdateApplicationStatus handles underwriting decisions. An approval
// publishes an event so the fulfillment worker can credit inventory stock.
func (h *Handler) UpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	appID := chi.URLParam(r, "id")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status is required",
		})
		return
	}

	err := h.repo.UpdateApplicationStatus(ctx, tenantID, appID, req.Status, req.ApprovedAmount)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "application not found",
			})
		case errors.Is(err, repository.ErrInvalidTransition):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		default:
			slog.Error("failed to update application status", "id", appID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update application status",
			})
		}
		return
	}

	if req.Status == domain.ApplicationApproved && h.bus != nil {
		payload, _ := json.Marshal(fulfillment.ApprovalMessage{
			ApplicationID: appID,
			TenantID:      tenantID,
			TraceID:       traceID,
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicApplicationApproved, payload); err != nil {
			slog.Error("failed to publish approval event", "id", appID, "error", err)
		}
	}

	app, err := h.repo.GetApplication(ctx, tenantID, appID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
