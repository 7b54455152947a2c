package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snipvault/snipvault/internal/platform/httpx"
)

// Handler exposes the audit log over HTTP.
type Handler struct {
	logger *slog.Logger
	reader *Reader
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, reader *Reader) *Handler {
	return &Handler{logger: logger, reader: reader}
}

// MountRoutes registers audit routes on the provided router. Callers are
// expected to have gated the router with the audit-read permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.reader.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("audit list", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	if entries == nil {
		entries = []ListEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}
