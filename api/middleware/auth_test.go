package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.ActorRole, orgID *uuid.UUID) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		JTI:            uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, userID
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
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

func TestAuthRejectsSystemRole(t *testing.T) {
	token, _ := mintTestToken(t, testJWT, enums.ActorRoleSystem, nil)
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	orgID := uuid.New()
	token, userID := mintTestToken(t, testJWT, enums.ActorRoleSeller, &orgID)

	var captured auth.Actor
	var found bool
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, found = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !found {
		t.Fatalf("expected actor in context")
	}
	if captured.UserID != userID || captured.Role != enums.ActorRoleSeller {
		t.Fatalf("unexpected actor %+v", captured)
	}
	if captured.OrganizationID == nil || *captured.OrganizationID != orgID {
		t.Fatalf("expected organization %s got %v", orgID, captured.OrganizationID)
	}
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles(nil, enums.ActorRoleAdmin, enums.ActorRoleSystemAdmin)(okHandler())

	cases := []struct {
		name   string
		actor  *auth.Actor
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"customer", &auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer}, http.StatusForbidden},
		{"admin", &auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}, http.StatusOK},
		{"system admin", &auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleSystemAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts/generate", nil)
		if tc.actor != nil {
			req = req.WithContext(WithActor(req.Context(), *tc.actor))
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, resp.Code)
		}
	}
}
