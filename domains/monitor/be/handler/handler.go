// Package handler exposes tenant usage and limit reports over HTTP.
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

	"github.com/diploy/hostfleet/domains/monitor/be/service"
	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/logging"
	"github.com/diploy/hostfleet/platform/go/quota"
)

const (
	problemTypeValidation = "https://hostfleet.dev/problems/validation-error"
	problemTypeNotFound   = "https://hostfleet.dev/problems/not-found"
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

// PlanCatalog resolves plan limits for the limits report.
type PlanCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (quota.Plan, error)
}

// Handler wires the resource monitor to HTTP.
type Handler struct {
	svc     *service.Service
	tenants TenantDirectory
	plans   PlanCatalog
	logger  *zap.Logger
}

func New(svc *service.Service, tenants TenantDirectory, plans PlanCatalog, logger *zap.Logger) *Handler {
	if svc == nil || tenants == nil || plans == nil {
		panic("monitor handler requires the monitor, tenants, and plans")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, tenants: tenants, plans: plans, logger: logger}
}

// Mount registers the monitor routes on the router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tenants/{tenantID}/usage", h.usage)
	r.Get("/tenants/{tenantID}/limits", h.limits)
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if _, err := h.tenants.Get(r.Context(), id); err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "24h"
	}

	usage, err := h.svc.GetUsage(r.Context(), id, period)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"period":          usage.Period,
		"samples":         usage.Samples,
		"avg_cpu_percent": usage.AvgCPUPercent,
		"avg_memory_mb":   usage.AvgMemoryMB,
		"max_storage_mb":  usage.MaxStorageMB,
		"bandwidth_mb":    usage.BandwidthMB,
		"page_views":      usage.PageViews,
		"unique_visitors": usage.UniqueVisitors,
	})
}

type limitEntry struct {
	Resource string  `json:"resource"`
	Usage    float64 `json:"usage"`
	Limit    float64 `json:"limit"`
	Percent  float64 `json:"percent"`
	Level    string  `json:"level"`
}

func (h *Handler) limits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.tenants.Get(r.Context(), id)
	if err != nil {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	limits := quota.GuestLimits()
	planSlug := ""
	if t.PlanID != nil {
		plan, err := h.plans.Get(r.Context(), *t.PlanID)
		if err != nil {
			h.writeProblem(w, r, h.problemForError(err))
			return
		}
		limits = plan.Limits
		planSlug = plan.Slug
	}

	sample, err := h.svc.Latest(r.Context(), id)
	if err != nil && !errors.Is(err, service.ErrNoSamples) {
		h.writeProblem(w, r, h.problemForError(err))
		return
	}

	violations := service.CheckLimits(sample, limits)
	entries := make([]limitEntry, 0, len(violations))
	for _, v := range violations {
		entries = append(entries, limitEntry{
			Resource: v.Resource,
			Usage:    v.Usage,
			Limit:    v.Limit,
			Percent:  v.Percent,
			Level:    string(v.Level),
		})
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"plan":       planSlug,
		"sampled_at": sampleTime(sample),
		"limits":     limits,
		"violations": entries,
	})
}

func sampleTime(s service.Sample) *time.Time {
	if s.SampledAt.IsZero() {
		return nil
	}
	return &s.SampledAt
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
	case errors.Is(err, service.ErrUnknownPeriod):
		return problem{Type: problemTypeValidation, Title: "Unknown period",
			Detail: "period must be one of 1h, 24h, 7d, 30d", Status: http.StatusBadRequest}
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
