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
	"github.com/golang-jwt/jwt/v4"
)

const (
	testAudience = "https://api.easykhana.test/internal"
	testIssuer   = "https://accounts.google.com"
	testKeyID    = "scheduler-key"
)

type oidcFixture struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	fetches *int32
}

func newOIDCFixture(t *testing.T) oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)
	return oidcFixture{key: key, server: server, fetches: &fetches}
}

func (f oidcFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func schedulerClaims(audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"aud":   audience,
		"iss":   testIssuer,
		"sub":   "scheduler",
		"email": "scheduler@easy-khana.iam.gserviceaccount.com",
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestRequireOIDC_AcceptsSchedulerToken(t *testing.T) {
	fixture := newOIDCFixture(t)
	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL), WithOIDCLogger(noopLogger{}), WithOIDCMetrics(metrics))
	guarded := validator.RequireOIDC(testAudience, []string{testIssuer})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok || identity.Subject != "scheduler" || identity.Issuer != testIssuer {
			t.Fatalf("unexpected service identity %+v", identity)
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/pending-payments/sweep", nil)
		req.Header.Set("Authorization", "Bearer "+fixture.sign(t, schedulerClaims(testAudience)))
		rr := httptest.NewRecorder()
		guarded.ServeHTTP(rr, req)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("call %d: expected 202, got %d: %s", i, rr.Code, rr.Body.String())
		}
	}
	if got := atomic.LoadInt32(fixture.fetches); got != 1 {
		t.Fatalf("expected keys fetched once, got %d", got)
	}
	if rec := metrics.last(); !rec.success || rec.kind != "oidc" {
		t.Fatalf("unexpected metric %+v", rec)
	}
}

func TestRequireOIDC_AudienceMismatch(t *testing.T) {
	fixture := newOIDCFixture(t)
	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL), WithOIDCLogger(noopLogger{}), WithOIDCMetrics(metrics))

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/pending-payments/sweep", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.sign(t, schedulerClaims("https://other.test")))
	rr := httptest.NewRecorder()
	validator.RequireOIDC(testAudience, []string{testIssuer})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || metrics.last().reason != "audience_mismatch" {
		t.Fatalf("expected audience rejection, got %d %+v", rr.Code, metrics.last())
	}
}

func TestRequireOIDC_IssuerMismatch(t *testing.T) {
	fixture := newOIDCFixture(t)
	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL), WithOIDCLogger(noopLogger{}), WithOIDCMetrics(metrics))

	claims := schedulerClaims(testAudience)
	claims["iss"] = "https://evil.test"
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/pending-payments/sweep", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.sign(t, claims))
	rr := httptest.NewRecorder()
	validator.RequireOIDC(testAudience, []string{testIssuer})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || metrics.last().reason != "issuer_mismatch" {
		t.Fatalf("expected issuer rejection, got %d %+v", rr.Code, metrics.last())
	}
}

func TestRequireOIDC_KeysUnavailable(t *testing.T) {
	fixture := newOIDCFixture(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)

	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(broken.URL), WithOIDCLogger(noopLogger{}), WithOIDCMetrics(metrics))

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/pending-payments/sweep", nil)
	req.Header.Set("Authorization", "Bearer "+fixture.sign(t, schedulerClaims(testAudience)))
	rr := httptest.NewRecorder()
	validator.RequireOIDC(testAudience, []string{testIssuer})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable || metrics.last().reason != "jwks_unavailable" {
		t.Fatalf("expected 503, got %d %+v", rr.Code, metrics.last())
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=120, must-revalidate"); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", got)
	}
	if got := maxAge("no-store"); got != 0 {
		t.Fatalf("expected 0, got %s", got)
	}
}
