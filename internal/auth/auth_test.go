package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

// --- token tests ---

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	tok, err := issuer.Issue("user-1", "jean@x.com", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	id, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("expected user id user-1, got %q", id.UserID)
	}
	if id.Email != "jean@x.com" {
		t.Errorf("expected email jean@x.com, got %q", id.Email)
	}
	if !id.IsAdmin() {
		t.Errorf("expected admin role, got %q", id.Role)
	}
}

func TestVerify_DefaultsRoleToUser(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	tok, err := issuer.Issue("user-2", "a@b.c", "")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	id, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if id.Role != RoleUser {
		t.Errorf("expected role %q, got %q", RoleUser, id.Role)
	}
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 7*24*time.Hour)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	tok, err := issuer.Issue("u1", "a@b.c", RoleUser)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	// Still valid just before the 7-day mark.
	issuer.now = func() time.Time { return issued.Add(7*24*time.Hour - time.Minute) }
	if _, err := issuer.Verify(tok); err != nil {
		t.Fatalf("expected token to be valid before expiry, got %v", err)
	}

	issuer.now = func() time.Time { return issued.Add(7*24*time.Hour + time.Minute) }
	_, err = issuer.Verify(tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewTokenIssuer("right-secret", time.Hour).Issue("u2", "a@b.c", RoleUser)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	_, err = NewTokenIssuer("wrong-secret", time.Hour).Verify(tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for bad signature, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	for _, tok := range []string{"", "not.a.jwt", "abc"} {
		if _, err := issuer.Verify(tok); err == nil {
			t.Errorf("expected error for malformed token %q", tok)
		}
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		UserID: "u3",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := NewTokenIssuer(testSecret, time.Hour).Verify(tok); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestVerify_RequiresExpiry(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u4"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := NewTokenIssuer(testSecret, time.Hour).Verify(tok); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestValidRole(t *testing.T) {
	if !ValidRole("user") || !ValidRole("admin") {
		t.Error("expected user and admin to be valid")
	}
	if ValidRole("root") || ValidRole("") {
		t.Error("expected unknown roles to be invalid")
	}
}

// --- context helpers ---

func TestIdentityContext_RoundTrip(t *testing.T) {
	id := &Identity{UserID: "u1", Email: "a@b.c", Role: RoleUser}
	got := IdentityFromContext(ContextWithIdentity(context.Background(), id))
	if got == nil || got.UserID != "u1" {
		t.Fatalf("expected identity u1 from context, got %+v", got)
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	if got := IdentityFromContext(context.Background()); got != nil {
		t.Errorf("expected nil from empty context, got %+v", got)
	}
}

// --- middleware tests ---

func TestAuthenticate_NeverRejects(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	valid, err := issuer.Issue("user-1", "a@b.c", RoleUser)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	tests := []struct {
		name         string
		authHeader   string
		wantIdentity bool
	}{
		{"valid token", "Bearer " + valid, true},
		{"lowercase scheme", "bearer " + valid, true},
		{"forged token", "Bearer " + valid + "x", false},
		{"missing header", "", false},
		{"wrong scheme", "Basic " + valid, false},
		{"bearer only", "Bearer", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Identity
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			Authenticate(issuer)(inner).ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rr.Code)
			}
			if (got != nil) != tt.wantIdentity {
				t.Errorf("identity present = %v, want %v", got != nil, tt.wantIdentity)
			}
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		identity   *Identity
		adminOnly  bool
		wantStatus int
		wantCode   string
	}{
		{"anonymous", nil, false, http.StatusUnauthorized, "unauthorized"},
		{"anonymous admin route", nil, true, http.StatusUnauthorized, "unauthorized"},
		{"user on any-identity route", &Identity{UserID: "u", Role: RoleUser}, false, http.StatusOK, ""},
		{"user on admin route", &Identity{UserID: "u", Role: RoleUser}, true, http.StatusForbidden, "forbidden"},
		{"admin on admin route", &Identity{UserID: "a", Role: RoleAdmin}, true, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/leads", nil)
			if tt.identity != nil {
				req = req.WithContext(ContextWithIdentity(req.Context(), tt.identity))
			}
			rr := httptest.NewRecorder()
			RequireIdentity(tt.adminOnly)(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantCode != "" {
				assertJSONError(t, rr, tt.wantCode)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"Bearer  abc ", "abc"},
		{"Token abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := ExtractBearerToken(req); got != tt.want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

// assertJSONError checks that the response body is the flat error envelope.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder, wantCode string) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Code != wantCode {
		t.Errorf("expected error code %q, got %q", wantCode, resp.Code)
	}
	if resp.Error == "" {
		t.Error("expected non-empty error message")
	}
}
