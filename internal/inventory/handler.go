package inventory

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

// Handler wires HTTP endpoints for the stock movement log.
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

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleSales, auth.RoleProcurement, auth.RoleFinance, auth.RoleAuditor))
		r.Get("/inventory/movements", h.List)
		r.Get("/inventory/movements/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleSales, auth.RoleProcurement))
		r.Post("/inventory/movements", h.Create)
		r.Post("/inventory/transfers", h.Transfer)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole())
		r.Post("/inventory/reconcile", h.Reconcile)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := shared.ParseCursor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var productID int64
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		productID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
	}
	movType := MovementType(r.URL.Query().Get("type"))
	movements, err := h.service.List(r.Context(), page, productID, movType)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var lastID int64
	if len(movements) > 0 {
		lastID = movements[len(movements)-1].ID
	}
	httpx.OK(w, shared.NewCursorResult(movements, page.Limit, lastID))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	movement, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, movement)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.Post(r.Context(), MovementInput{
		ProductID:      req.ProductID,
		Type:           MovementType(req.Type),
		Quantity:       req.Quantity,
		RefType:        req.RefType,
		RefID:          req.RefID,
		Note:           req.Note,
		ActorID:        auth.ActorID(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("post movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, movement)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		Note:         req.Note,
		ActorID:      auth.ActorID(r.Context()),
	})
	if err != nil {
		h.logger.Error("transfer stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, movements)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	results, err := h.service.Reconcile(r.Context(), req.Repair, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("reconcile stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if results == nil {
		results = []ReconcileResult{}
	}
	httpx.OK(w, map[string]any{"drift": results, "clean": len(results) == 0})
}
