package ap

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for vendor bills.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       auth.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), mw: mw}
}

// MountRoutes registers vendor bill routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleProcurement, auth.RoleFinance, auth.RoleAuditor))
		r.Get("/vendor-bills", h.List)
		r.Get("/vendor-bills/{id}", h.Show)
		r.Get("/vendor-bills/{id}/payments", h.Payments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleFinance))
		r.Post("/vendor-bills", h.Create)
		r.Post("/vendor-bills/from-po", h.CreateFromPO)
		r.Post("/vendor-bills/{id}/cancel", h.Cancel)
		r.Post("/vendor-bills/{id}/payments", h.RecordPayment)
	})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := shared.ParseCursor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var filter ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("vendor_id"); raw != "" {
		filter.VendorID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
	}
	list, err := h.service.List(r.Context(), page, filter)
	if err != nil {
		h.logger.Error("list vendor bills", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var lastID int64
	if len(list) > 0 {
		lastID = list[len(list)-1].ID
	}
	httpx.OK(w, shared.NewCursorResult(list, page.Limit, lastID))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, bill)
}

func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.OK(w, payments)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.Create(r.Context(), req, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("create vendor bill", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, bill)
}

func (h *Handler) CreateFromPO(w http.ResponseWriter, r *http.Request) {
	var req CreateFromPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.CreateFromPO(r.Context(), req, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("create bill from purchase order",
			slog.Int64("purchase_order_id", req.PurchaseOrderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, bill)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.Cancel(r.Context(), id, auth.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, bill)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.RecordPayment(r.Context(), id, req, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("record bill payment", slog.Int64("bill_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, bill)
}
