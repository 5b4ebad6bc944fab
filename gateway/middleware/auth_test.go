package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "savings-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(caller.Hex()))
	})
}

func TestAuthenticatorExtractsCaller(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "savings", Audience: "savingsd"}, nil)
	handler := auth.Middleware()(callerEcho())

	caller := ethcommon.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	token := signToken(t, jwt.MapClaims{
		"sub": caller.Hex(),
		"iss": "savings",
		"aud": "savingsd",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Body.String() != caller.Hex() {
		t.Fatalf("unexpected caller %q", res.Body.String())
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Audience: "savingsd"}, nil)
	handler := auth.Middleware()(callerEcho())

	cases := map[string]string{
		"missing": "",
		"expired": "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "0x00000000000000000000000000000000000c0ffe",
			"aud": "savingsd",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}),
		"bad subject": "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice", "aud": "savingsd"}),
		"zero subject": "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "0x0000000000000000000000000000000000000000",
			"aud": "savingsd",
		}),
		"wrong audience": "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "0x00000000000000000000000000000000000c0ffe",
			"aud": "other",
		}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
		})
	}
}

func TestAuthenticatorRequiresScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	handler := auth.Middleware("savings:admin")(callerEcho())
	token := signToken(t, jwt.MapClaims{
		"sub":   "0x00000000000000000000000000000000000c0ffe",
		"scope": "savings:read",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/pause", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledTrustsCallerHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	handler := auth.Middleware()(callerEcho())

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous request, got %d", res.Code)
	}

	req.Header.Set("X-Caller", "0x00000000000000000000000000000000000c0ffe")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Body.String() != ethcommon.HexToAddress("0x00000000000000000000000000000000000c0ffe").Hex() {
		t.Fatalf("expected header caller, got %q", res.Body.String())
	}
}
