package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipvault/snipvault/internal/shared"
)

func requestAs(role string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	if role == "" {
		return req
	}
	ident := &shared.Identity{UserID: 7, Username: "actor", Role: role, Status: "ACTIVE"}
	return req.WithContext(shared.ContextWithIdentity(req.Context(), ident))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireRejectsAnonymous(t *testing.T) {
	handler := Gate{}.Require(PermUsersManage)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Authentication required", body["error"])
}

func TestRequireRejectsInsufficientRole(t *testing.T) {
	handler := Gate{}.Require(PermUsersManage)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("USER"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Insufficient permissions", body["message"])
}

func TestRequirePassesGrantedRole(t *testing.T) {
	handler := Gate{}.Require(PermUsersManage)(okHandler())
	for _, role := range []string{"ADMIN", "SUPER_ADMIN"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs(role))
		assert.Equal(t, http.StatusNoContent, rec.Code, "role %s", role)
	}
}

func TestRequireNormalizesUnknownRole(t *testing.T) {
	handler := Gate{}.Require(PermSnippetWrite)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("mystery"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	handler = Gate{}.Require(PermUsersManage)(okHandler())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("mystery"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAny(t *testing.T) {
	handler := Gate{}.RequireAny(PermUsersManage, PermSnippetModerate)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("MODERATOR"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("READ_ONLY"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttachPermissions(t *testing.T) {
	var got []string
	handler := Gate{}.AttachPermissions(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PermissionsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("READ_ONLY"))
	assert.Contains(t, got, string(PermSnippetRead))
	assert.NotContains(t, got, string(PermSnippetWrite))

	// Anonymous requests pass through without a permission list.
	got = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, got)
}
