package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/snipvault/snipvault/internal/accounts"
	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/settings"
	"github.com/snipvault/snipvault/internal/shared"
)

// UserSource loads the durable user record backing a credential.
type UserSource interface {
	FindByID(ctx context.Context, id int64) (*accounts.User, error)
}

// ReaderSource supplies the singleton read-only identity for deployments
// with individual accounts disabled.
type ReaderSource interface {
	AnonymousReader(ctx context.Context) (*accounts.User, error)
}

// PolicySource supplies the community-mode switch.
type PolicySource interface {
	Foundation(ctx context.Context) settings.Foundation
}

// Authenticator resolves request identity from the Authorization header.
type Authenticator struct {
	Tokens  *TokenManager
	Users   UserSource
	Readers ReaderSource
	Policy  PolicySource
	Logger  *slog.Logger
}

// Middleware attaches the resolved identity to the request context. A
// request without a credential proceeds anonymously; downstream permission
// gates decide whether that is acceptable. A credential whose session
// version no longer matches the stored value is rejected distinctly so
// clients re-login instead of retrying.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !a.Policy.Foundation(ctx).CommunityEnabled {
			reader, err := a.Readers.AnonymousReader(ctx)
			if err != nil {
				if a.Logger != nil {
					a.Logger.Error("anonymous reader", slog.Any("error", err))
				}
				httpx.Internal(w)
				return
			}
			ident := &shared.Identity{
				UserID:    reader.ID,
				Username:  reader.Username,
				Role:      string(rbac.RoleReadOnly),
				Status:    string(reader.Status),
				Anonymous: true,
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(ctx, ident)))
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.Tokens.Parse(raw)
		if err != nil {
			httpx.Unauthenticated(w)
			return
		}
		user, err := a.Users.FindByID(ctx, claims.UserID)
		if err != nil {
			// A deleted account is indistinguishable from a bad token.
			httpx.Unauthenticated(w)
			return
		}
		if user.SessionVersion != claims.SessionVersion {
			httpx.SessionInvalidated(w)
			return
		}

		ident := &shared.Identity{
			UserID:         user.ID,
			Username:       user.Username,
			Role:           string(user.Role),
			Status:         string(user.Status),
			SessionVersion: user.SessionVersion,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(ctx, ident)))
	})
}

// PeekRole resolves the request's role without rejecting anything. Any
// resolution failure reads as the unprivileged default, so callers like the
// maintenance gate never learn whether a token was malformed or merely
// insufficient.
func (a *Authenticator) PeekRole(r *http.Request) rbac.Role {
	raw := bearerToken(r)
	if raw == "" {
		return rbac.RoleUser
	}
	claims, err := a.Tokens.Parse(raw)
	if err != nil {
		return rbac.RoleUser
	}
	user, err := a.Users.FindByID(r.Context(), claims.UserID)
	if err != nil || user.SessionVersion != claims.SessionVersion {
		return rbac.RoleUser
	}
	return user.Role
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
