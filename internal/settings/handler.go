package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/snipvault/snipvault/internal/audit"
	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/shared"
)

// Auditor records settings mutations.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Handler exposes settings and feature flags to administrators.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	auditor   Auditor
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, store *Store, auditor Auditor) *Handler {
	return &Handler{logger: logger, store: store, auditor: auditor, validator: validator.New()}
}

// MountRoutes registers the admin settings routes. Callers gate reads with
// the settings-read permission and writes with settings-write.
func (h *Handler) MountRoutes(read, write chi.Router) {
	read.Get("/settings", h.listSettings)
	read.Get("/flags", h.listFlags)
	write.Put("/settings/{key}", h.putSetting)
	write.Put("/flags/{key}", h.putFlag)
}

func (h *Handler) listSettings(w http.ResponseWriter, r *http.Request) {
	var (
		items []Setting
		err   error
	)
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		items, err = h.store.GetByPrefix(r.Context(), prefix)
	} else {
		items, err = h.store.GetAll(r.Context())
	}
	if err != nil {
		h.logger.Error("list settings", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	if items == nil {
		items = []Setting{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"settings": items})
}

func (h *Handler) listFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := h.store.ListFlags(r.Context())
	if err != nil {
		h.logger.Error("list flags", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	if flags == nil {
		flags = []Flag{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"flags": flags})
}

type settingForm struct {
	Value string `json:"value" validate:"required,max=1024"`
}

func (h *Handler) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var form settingForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Value is required")
		return
	}
	updatedBy := actorName(r)
	stored, err := h.store.SetString(r.Context(), key, form.Value, updatedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordMutation(r, audit.ActionSettingUpdate, "setting", key, map[string]any{"value": stored.Value})
	httpx.JSON(w, http.StatusOK, map[string]any{"setting": stored})
}

type flagForm struct {
	Enabled     *bool  `json:"enabled" validate:"required"`
	Description string `json:"description" validate:"max=512"`
}

func (h *Handler) putFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var form flagForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Enabled is required")
		return
	}
	updatedBy := actorName(r)
	stored, err := h.store.SetFlag(r.Context(), key, *form.Enabled, form.Description, updatedBy)
	if err != nil {
		h.logger.Error("set flag", slog.String("key", key), slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	h.recordMutation(r, audit.ActionFlagUpdate, "flag", key, map[string]any{"enabled": stored.Enabled})
	httpx.JSON(w, http.StatusOK, map[string]any{"flag": stored})
}

func (h *Handler) recordMutation(r *http.Request, action, targetType, key string, metadata map[string]any) {
	if h.auditor == nil {
		return
	}
	entry := audit.Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   key,
		Metadata:   metadata,
	}
	if ident := shared.IdentityFromContext(r.Context()); ident != nil {
		actorID := ident.UserID
		entry.ActorID = &actorID
	}
	meta := audit.MetaFrom(r)
	entry.IPAddress = meta.IP
	entry.UserAgent = meta.UserAgent
	h.auditor.Record(r.Context(), entry)
}

func actorName(r *http.Request) string {
	if ident := shared.IdentityFromContext(r.Context()); ident != nil {
		return ident.Username
	}
	return "system"
}
