// Package handler exposes the tenant registry and provisioning API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/logging"
	"github.com/diploy/hostfleet/platform/go/tenant"
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

// Handler wires the tenants service to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the read and delete routes. Create and SlugCheck are
// mounted separately so the server can rate limit them.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tenants", h.list)
	r.Get("/tenants/{tenantID}", h.get)
	r.Delete("/tenants/{tenantID}", h.delete)
}

type tenantResponse struct {
	ID            string     `json:"id"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	BaseURL       string     `json:"base_url,omitempty"`
	PlanID        *uuid.UUID `json:"plan_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	SuspendedAt   *time.Time `json:"suspended_at,omitempty"`
	SuspendReason *string    `json:"suspension_reason,omitempty"`
}

func toResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:            t.ID.String(),
		Slug:          t.Slug,
		Title:         t.Title,
		Status:        string(t.Status),
		PlanID:        t.PlanID,
		CreatedAt:     t.CreatedAt,
		ExpiresAt:     t.ExpiresAt,
		SuspendedAt:   t.SuspendedAt,
		SuspendReason: t.SuspensionReason,
	}
}

type createRequest struct {
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	OwnerID       *uuid.UUID `json:"owner_id,omitempty"`
	PlanID        *uuid.UUID `json:"plan_id,omitempty"`
	AdminEmail    string     `json:"admin_email"`
	AdminUsername string     `json:"admin_username,omitempty"`
	AdminPassword string     `json:"admin_password"`
}

// Create handles tenant provisioning requests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid request body",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}

	t, err := h.svc.Provision(r.Context(), service.ProvisionParams{
		Slug:          req.Slug,
		Title:         req.Title,
		OwnerID:       req.OwnerID,
		PlanID:        req.PlanID,
		AdminEmail:    req.AdminEmail,
		AdminUsername: req.AdminUsername,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/tenants/%s", t.ID))
	h.writeJSON(w, r, http.StatusCreated, toResponse(t))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var statuses []service.Status
	if s := r.URL.Query().Get("status"); s != "" {
		statuses = append(statuses, service.StatusFromString(s))
	}

	tenants, err := h.svc.List(r.Context(), statuses...)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	items := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toResponse(t))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid tenant id",
			Status: http.StatusBadRequest,
		})
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, toResponse(t))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid tenant id",
			Status: http.StatusBadRequest,
		})
		return
	}

	if err := h.svc.Deprovision(r.Context(), id); err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SlugCheck reports slug availability without reserving anything.
func (h *Handler) SlugCheck(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("slug")
	normalized, err := tenant.NormalizeSlug(raw)
	if err != nil {
		h.writeJSON(w, r, http.StatusOK, map[string]any{
			"slug": raw, "available": false, "reason": err.Error(),
		})
		return
	}

	_, err = h.svc.GetBySlug(r.Context(), normalized)
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.writeJSON(w, r, http.StatusOK, map[string]any{"slug": normalized, "available": true})
	case err == nil:
		h.writeJSON(w, r, http.StatusOK, map[string]any{
			"slug": normalized, "available": false, "reason": "slug already exists",
		})
	default:
		h.writeProblem(w, r, h.problemForError(err))
	}
}

func (h *Handler) problemForError(err error) problem {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return problem{Type: problemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound}
	case errors.Is(err, service.ErrSlugTaken):
		return problem{Type: problemTypeConflict, Title: "Slug already exists", Status: http.StatusConflict}
	case errors.Is(err, service.ErrInvalidSlug), errors.Is(err, tenant.ErrReservedSlug):
		return problem{Type: problemTypeValidation, Title: "Invalid slug", Detail: err.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, service.ErrPlanNotFound):
		return problem{Type: problemTypeValidation, Title: "Unknown plan", Status: http.StatusBadRequest}
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
