// Package handler exposes lifecycle transitions over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diploy/hostfleet/domains/lifecycle/be/service"
	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/logging"
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

// Handler wires the lifecycle service to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("lifecycle service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the lifecycle routes on the router.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/tenants/{tenantID}/suspend", h.suspend)
	r.Post("/tenants/{tenantID}/resume", h.resume)
	r.Post("/tenants/{tenantID}/extend", h.extend)
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req suspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid request body",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}
	if req.Reason == "" {
		req.Reason = "suspended by operator"
	}

	if err := h.svc.Suspend(r.Context(), id, req.Reason); err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Resume(r.Context(), id); err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type extendRequest struct {
	// ExpiresAt is the new expiry; null makes the tenant permanent.
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, r, problem{
			Type: problemTypeValidation, Title: "Invalid request body",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}

	if err := h.svc.ExtendExpiry(r.Context(), id, req.ExpiresAt); err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	case errors.Is(err, service.ErrTerminal):
		return problem{Type: problemTypeConflict, Title: "Tenant is deleted", Status: http.StatusConflict}
	case errors.Is(err, service.ErrNotSuspended):
		return problem{Type: problemTypeConflict, Title: "Tenant is not suspended", Status: http.StatusConflict}
	case errors.Is(err, service.ErrStillOverCap):
		return problem{Type: problemTypeConflict, Title: "Tenant still exceeds plan limits",
			Detail: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, service.ErrLockedElsewhere):
		return problem{Type: problemTypeConflict, Title: "Tenant is busy", Status: http.StatusConflict}
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
