package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the general ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       auth.Middleware
	reports  *cache.ReportCache
	inflight singleflight.Group
}

// NewHandler constructs the handler. reports may be nil to disable report
// caching.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware, reports *cache.ReportCache) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), mw: mw, reports: reports}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleFinance, auth.RoleAuditor))
		r.Get("/ledger/accounts", h.ListAccounts)
		r.Get("/ledger/accounts/{id}", h.ShowAccount)
		r.Get("/ledger/entries", h.ListEntries)
		r.Get("/ledger/entries/{id}", h.ShowEntry)
		r.Get("/ledger/reports/trial-balance", h.TrialBalance)
		r.Get("/ledger/reports/profit-loss", h.ProfitLoss)
		r.Get("/ledger/reports/balance-sheet", h.BalanceSheet)
		r.Get("/ledger/reports/dashboard", h.Dashboard)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleFinance))
		r.Post("/ledger/accounts", h.CreateAccount)
		r.Put("/ledger/accounts/{id}", h.UpdateAccount)
		r.Post("/ledger/entries", h.CreateEntry)
	})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, shared.ErrValidation
	}
	return &parsed, nil
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	accounts, err := h.service.ListAccounts(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.OK(w, accounts)
}

func (h *Handler) ShowAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, account)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), req, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, account)
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), id, req, auth.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, account)
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	page, err := shared.ParseCursor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.ListEntries(r.Context(), page, from, to)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var lastID int64
	if len(entries) > 0 {
		lastID = entries[len(entries)-1].ID
	}
	httpx.OK(w, shared.NewCursorResult(entries, page.Limit, lastID))
}

func (h *Handler) ShowEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, entry)
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), req, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("post journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err := h.reports.Invalidate(r.Context(), reportKeys...); err != nil {
		h.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
	httpx.Created(w, entry)
}

var reportKeys = []string{
	"ledger:trial-balance", "ledger:profit-loss", "ledger:balance-sheet", "ledger:dashboard",
}

// cachedReport serves from the report cache when the request carries no date
// filters; filtered reports always recompute. Unfiltered recomputes collapse
// through singleflight so a dashboard burst aggregates the journal once.
func cachedReport[T any](h *Handler, w http.ResponseWriter, r *http.Request, key string,
	filtered bool, compute func() (*T, error)) {
	if filtered {
		report, err := compute()
		if err != nil {
			h.logger.Error("ledger report", slog.String("report", key), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.OK(w, report)
		return
	}

	var cached T
	if err := h.reports.Get(r.Context(), key, &cached); err == nil {
		httpx.OK(w, &cached)
		return
	}
	result, err, _ := h.inflight.Do(key, func() (any, error) {
		report, err := compute()
		if err != nil {
			return nil, err
		}
		if err := h.reports.Set(r.Context(), key, report); err != nil {
			h.logger.Warn("cache report", slog.String("report", key), slog.Any("error", err))
		}
		return report, nil
	})
	if err != nil {
		h.logger.Error("ledger report", slog.String("report", key), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, result)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cachedReport(h, w, r, "ledger:trial-balance", from != nil || to != nil,
		func() (*TrialBalanceReport, error) {
			return h.service.TrialBalance(r.Context(), from, to)
		})
}

func (h *Handler) ProfitLoss(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cachedReport(h, w, r, "ledger:profit-loss", from != nil || to != nil,
		func() (*ProfitLossReport, error) {
			return h.service.ProfitLoss(r.Context(), from, to)
		})
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cachedReport(h, w, r, "ledger:balance-sheet", asOf != nil,
		func() (*BalanceSheetReport, error) {
			return h.service.BalanceSheet(r.Context(), asOf)
		})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	cachedReport(h, w, r, "ledger:dashboard", false,
		func() (*DashboardReport, error) {
			return h.service.Dashboard(r.Context())
		})
}
