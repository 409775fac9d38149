package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/guildmarket/pkg/auth"
	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	token := mintTestToken(t, enums.MemberRoleAdmin)

	var captured struct {
		user string
		role enums.MemberRole
	}
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != "42" {
		t.Fatalf("expected user 42 got %q", captured.user)
	}
	if captured.role != enums.MemberRoleAdmin {
		t.Fatalf("expected role admin got %s", captured.role)
	}
}

func TestRequireRole(t *testing.T) {
	chain := func(role enums.MemberRole) *httptest.ResponseRecorder {
		handler := Auth(testJWT, nil)(RequireRole(nil, enums.MemberRoleAdmin)(okHandler()))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+mintTestToken(t, role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	if got := chain(enums.MemberRoleViewer).Code; got != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer got %d", got)
	}
	if got := chain(enums.MemberRoleAdmin).Code; got != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", got)
	}
}

func TestAuthRejectsOtherSchemes(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())
	for _, header := range []string{mintTestToken(t, enums.MemberRoleAdmin), "Basic abc", "Bearer   "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, resp.Code)
		}
	}
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	handler := RequireRole(nil, enums.MemberRoleAdmin, enums.MemberRoleViewer)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without claims got %d", resp.Code)
	}
}

func mintTestToken(t *testing.T, role enums.MemberRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{UserID: "42", Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
