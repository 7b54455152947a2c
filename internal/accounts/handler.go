package accounts

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/snipvault/snipvault/internal/audit"
	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/shared"
)

// TokenIssuer mints a credential for a freshly authenticated user.
type TokenIssuer interface {
	Issue(u *User) (token string, expiresAt time.Time, err error)
}

// Handler wires HTTP endpoints for registration, login and admin account
// management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    TokenIssuer
	policy    PolicySource
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, tokens TokenIssuer, policy PolicySource) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		tokens:    tokens,
		policy:    policy,
		validator: validator.New(),
	}
}

// MountAuthRoutes registers the public authentication routes.
func (h *Handler) MountAuthRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
}

// MountAdminRoutes registers the admin account-management routes. Callers
// gate the router with the users-manage permission.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/{id}/approve", h.adminAction(h.approve))
	r.Post("/{id}/suspend", h.adminAction(h.suspend))
	r.Post("/{id}/unsuspend", h.adminAction(h.unsuspend))
	r.Post("/{id}/unlock", h.adminAction(h.unlock))
	r.Post("/{id}/reset-sessions", h.adminAction(h.resetSessions))
	r.Post("/{id}/force-password-reset", h.adminAction(h.forcePasswordReset))
	r.Put("/{id}/role", h.adminAction(h.setRole))
	r.Put("/{id}/status", h.adminAction(h.setStatus))
	r.Delete("/{id}", h.adminAction(h.delete))
}

type credentialsForm struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var form credentialsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Username or password does not meet requirements")
		return
	}
	user, err := h.service.Register(r.Context(), form.Username, form.Password, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if user.Status == StatusPending {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var form credentialsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if form.Username == "" || form.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	user, err := h.service.Login(r.Context(), form.Username, form.Password, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"user":      user.ToResponse(),
	})
}

// AuthConfig exposes the registration and community modes so clients can
// discover how to authenticate. Kept on the maintenance allow-list.
func (h *Handler) AuthConfig(w http.ResponseWriter, r *http.Request) {
	f := h.policy.Foundation(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"registrationMode": f.RegistrationMode,
		"communityEnabled": f.CommunityEnabled,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	users, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Internal(w)
		return
	}
	out := make([]Response, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

type adminActionFunc func(w http.ResponseWriter, r *http.Request, actorID, targetID int64)

// adminAction resolves the acting admin and the target ID before invoking
// the concrete mutation.
func (h *Handler) adminAction(fn adminActionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident := shared.IdentityFromContext(r.Context())
		if ident == nil {
			httpx.Unauthenticated(w)
			return
		}
		targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		fn(w, r, ident.UserID, targetID)
	}
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	user, err := h.service.Approve(r.Context(), actorID, targetID, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	user, err := h.service.Suspend(r.Context(), actorID, targetID, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) unsuspend(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	user, err := h.service.Unsuspend(r.Context(), actorID, targetID, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	if err := h.service.Unlock(r.Context(), actorID, targetID, audit.MetaFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func (h *Handler) resetSessions(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	if err := h.service.ResetSessions(r.Context(), actorID, targetID, audit.MetaFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "sessions reset"})
}

func (h *Handler) forcePasswordReset(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	var body struct {
		Force *bool `json:"force"`
	}
	force := true
	if err := httpx.DecodeJSON(r, &body); err == nil && body.Force != nil {
		force = *body.Force
	}
	user, err := h.service.ForcePasswordReset(r.Context(), actorID, targetID, force, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	var body struct {
		Role string `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil || body.Role == "" {
		httpx.Error(w, http.StatusBadRequest, "Role is required")
		return
	}
	user, err := h.service.SetRole(r.Context(), actorID, targetID, rbac.NormalizeRole(body.Role), audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	var body struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, ok := ParseStatus(body.Status)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "Status must be PENDING, ACTIVE or SUSPENDED")
		return
	}
	user, err := h.service.SetStatus(r.Context(), actorID, targetID, status, audit.MetaFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.ToResponse()})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, actorID, targetID int64) {
	if err := h.service.Delete(r.Context(), actorID, targetID, audit.MetaFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
