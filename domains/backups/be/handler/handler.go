// Package handler exposes backup listing and on-demand creation.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diploy/hostfleet/domains/backups/be/service"
	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/logging"
	"github.com/diploy/hostfleet/platform/go/persistence"
	"github.com/diploy/hostfleet/platform/go/quota"
)

const (
	problemTypeValidation = "https://hostfleet.dev/problems/validation-error"
	problemTypeNotFound   = "https://hostfleet.dev/problems/not-found"
	problemTypeConflict   = "https://hostfleet.dev/problems/conflict"
	problemTypeInternal   = "https://hostfleet.dev/problems/internal-error"
)

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
}

// TenantDirectory is the tenant lookup slice this handler needs.
type TenantDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (tenantsvc.Tenant, error)
}

// PlanCatalog resolves the plan whose retention applies to a new backup.
type PlanCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (quota.Plan, error)
}

// Handler wires the backup service to HTTP.
type Handler struct {
	svc     *service.Service
	tenants TenantDirectory
	plans   PlanCatalog
	logger  *zap.Logger
}

func New(svc *service.Service, tenants TenantDirectory, plans PlanCatalog, logger *zap.Logger) *Handler {
	if svc == nil || tenants == nil || plans == nil {
		panic("backups handler requires the backup service, tenants, and plans")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, tenants: tenants, plans: plans, logger: logger}
}

// Mount registers the listing route. Creation is mounted separately so
// the server can rate limit it.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tenants/{tenantID}/backups", h.list)
}

// MountCreate registers the creation route.
func (h *Handler) MountCreate(r chi.Router) {
	r.Post("/tenants/{tenantID}/backups", h.create)
}

type backupResponse struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	SizeBytes int64           `json:"size_bytes"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Manifest  json.RawMessage `json:"manifest,omitempty"`
}

func toResponse(rec persistence.BackupRecord) backupResponse {
	return backupResponse{
		ID:        rec.ID.String(),
		Kind:      rec.Kind,
		SizeBytes: rec.SizeBytes,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		Manifest:  rec.Manifest,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if _, err := h.tenants.Get(r.Context(), id); err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	recs, err := h.svc.List(r.Context(), id)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	items := make([]backupResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toResponse(rec))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

type createRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.tenants.Get(r.Context(), id)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	if t.Status != tenantsvc.StatusActive {
		h.writeProblem(w, r, problem{
			Type: problemTypeConflict, Title: "Tenant is not active", Status: http.StatusConflict,
		})
		return
	}
	if t.PlanID == nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeConflict, Title: "Guest tenants have no backups", Status: http.StatusConflict,
		})
		return
	}
	plan, err := h.plans.Get(r.Context(), *t.PlanID)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid request body",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}
	if req.Kind == "" {
		req.Kind = service.KindFull
	}

	rec, err := h.svc.Create(r.Context(), t, plan, req.Kind)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	h.writeJSON(w, r, http.StatusCreated, toResponse(rec))
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid tenant id",
			Status: http.StatusBadRequest,
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) problemForError(err error) problem {
	switch {
	case errors.Is(err, tenantsvc.ErrNotFound):
		return problem{Type: problemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound}
	case errors.Is(err, service.ErrUnknownKind):
		return problem{Type: problemTypeValidation, Title: "Unknown backup kind",
			Detail: "kind must be one of full, files, database", Status: http.StatusBadRequest}
	default:
		return problem{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError}
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, r *http.Request, p problem) {
	log := logging.FromContext(r.Context(), h.logger)
	if p.Status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("problem", p.Type))
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Warn("encode problem response", zap.Error(err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context(), h.logger).Warn("encode response", zap.Error(err))
	}
}
