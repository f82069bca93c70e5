package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	validator *OIDCValidator
	server    *httptest.Server
	fetches   *atomic.Int32
	key       *rsa.PrivateKey
	now       time.Time
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "scheduler-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	fetches := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	original := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = original })

	cache := NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now }))
	return &oidcFixture{
		validator: NewOIDCValidator(cache),
		server:    server,
		fetches:   fetches,
		key:       key,
		now:       now,
	}
}

func (f *oidcFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   "https://pos.example.com",
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@sauber.iam.gserviceaccount.com",
		"exp":   float64(f.now.Add(time.Hour).Unix()),
		"iat":   float64(f.now.Unix()),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "scheduler-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serveOIDC(mw func(http.Handler) http.Handler, token string, next http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/daily-export", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	mw(next).ServeHTTP(rec, req)
	return rec
}

func TestRequireOIDCAcceptsSchedulerToken(t *testing.T) {
	f := newOIDCFixture(t)
	mw := f.validator.RequireOIDC("https://pos.example.com", []string{"https://accounts.google.com"})

	rec := serveOIDC(mw, f.sign(t, nil), func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok || identity.Email != "scheduler@sauber.iam.gserviceaccount.com" {
			t.Fatalf("expected service identity, got %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	// keys are cached between requests
	serveOIDC(mw, f.sign(t, nil), func(w http.ResponseWriter, r *http.Request) {})
	if got := f.fetches.Load(); got != 1 {
		t.Fatalf("expected one jwks fetch, got %d", got)
	}
}

func TestRequireOIDCRejectsMismatches(t *testing.T) {
	f := newOIDCFixture(t)
	mw := f.validator.RequireOIDC("https://pos.example.com", []string{"https://accounts.google.com"})
	forbidden := func(http.ResponseWriter, *http.Request) { t.Fatalf("handler should not run") }

	cases := map[string]string{
		"audience": f.sign(t, func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" }),
		"issuer":   f.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }),
		"expired":  f.sign(t, func(c jwt.MapClaims) { c["exp"] = float64(f.now.Add(-time.Minute).Unix()) }),
		"missing":  "",
	}
	for name, token := range cases {
		if rec := serveOIDC(mw, token, forbidden); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireOIDCUnavailableWhenKeysUnreachable(t *testing.T) {
	f := newOIDCFixture(t)
	token := f.sign(t, nil)
	f.server.Close()

	mw := f.validator.RequireOIDC("https://pos.example.com", nil)
	rec := serveOIDC(mw, token, func(http.ResponseWriter, *http.Request) { t.Fatalf("handler should not run") })
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRequireOIDCWithoutAudienceIsUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	rec := serveOIDC(f.validator.RequireOIDC("", nil), f.sign(t, nil), func(http.ResponseWriter, *http.Request) {})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=19800, must-revalidate"); got != 19800*time.Second {
		t.Fatalf("unexpected max-age %s", got)
	}
	if got := maxAge("no-store"); got != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}
