package attachments

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for document attachments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	maxBytes int64
	mw       auth.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, maxBytes int64, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, maxBytes: maxBytes, mw: mw}
}

// MountRoutes registers attachment routes. Any authenticated role may read;
// uploads and deletes require a writing role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/attachments", h.List)
	r.Get("/attachments/{id}/download", h.Download)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(auth.RoleAdmin, auth.RoleSales, auth.RoleFinance))
		r.Post("/attachments", h.Upload)
		r.Delete("/attachments/{id}", h.Delete)
	})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	entityType := r.FormValue("entity_type")
	entityID, err := strconv.ParseInt(r.FormValue("entity_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	defer file.Close()

	a, err := h.service.Upload(r.Context(), entityType, entityID,
		header.Filename, header.Size, file, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("upload attachment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID, err := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	list, err := h.service.ListForEntity(r.Context(), entityType, entityID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Attachment{}
	}
	httpx.OK(w, list)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, rc, err := h.service.Open(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.FileName+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(a.SizeBytes, 10))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream attachment", slog.Int64("id", id), slog.Any("error", err))
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, auth.ActorID(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}
