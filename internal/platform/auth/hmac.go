package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"
	defaultClockSkew       = 5 * time.Minute
	defaultNonceTTL        = 5 * time.Minute
	maxSignedBodyBytes     = 1 << 20
)

// SecretProvider resolves shared webhook secrets by name.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc adapts a function to SecretProvider.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// NonceStore records nonces so a signed request cannot be replayed.
type NonceStore interface {
	// UseNonce returns false when the nonce was already used in scope and has not expired.
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local NonceStore.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	now    func() time.Time
	nonces map[string]time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{now: time.Now, nonces: make(map[string]time.Time)}
}

// UseNonce implements NonceStore.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.nonces {
		if !exp.After(now) {
			delete(s.nonces, k)
		}
	}
	if _, used := s.nonces[key]; used {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// HMACValidator verifies requests signed by the payment provider's webhook relay.
//
// The signature is HMAC-SHA256 over "METHOD\nPATH\nTIMESTAMP\nNONCE\nhex(sha256(body))",
// sent base64 or hex encoded.
type HMACValidator struct {
	provider SecretProvider
	nonces   NonceStore
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	clockSkew       time.Duration
	nonceTTL        time.Duration

	secretCache sync.Map
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator.
func NewHMACValidator(provider SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		provider:        provider,
		nonces:          nonces,
		logger:          log.Default(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics sets the metrics recorder.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) { v.metrics = metrics }
}

// WithHMACClock injects a clock.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders customises header names. Empty values keep the default.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACWindow sets the accepted clock skew and nonce retention.
func WithHMACWindow(clockSkew, nonceTTL time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if clockSkew > 0 {
			v.clockSkew = clockSkew
		}
		if nonceTTL > 0 {
			v.nonceTTL = nonceTTL
		}
	}
}

// RequireHMAC rejects requests without a valid signature made with the named secret.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	secretName = strings.TrimSpace(secretName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			reject := func(status int, reason, code, message string) {
				v.record(ctx, false, reason, start)
				respondAuthError(w, status, code, message)
			}

			secret, err := v.loadSecret(ctx, secretName)
			if err != nil {
				v.logger.Printf("auth: hmac secret %q unavailable: %v", secretName, err)
				reject(http.StatusServiceUnavailable, "secret_unavailable", "verification_unavailable", "signature verification unavailable")
				return
			}

			signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
			timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
			nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
			if signatureValue == "" || timestampValue == "" || nonce == "" {
				reject(http.StatusUnauthorized, "headers_missing", "signature_missing", "signature headers missing")
				return
			}

			timestamp, err := parseSignatureTimestamp(timestampValue)
			if err != nil {
				reject(http.StatusUnauthorized, "timestamp_invalid", "timestamp_invalid", "signature timestamp invalid")
				return
			}
			if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
				reject(http.StatusUnauthorized, "timestamp_skew", "timestamp_skew", "signature timestamp outside allowed window")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				reject(http.StatusBadRequest, "body_unreadable", "invalid_body", "unable to read body for signature verification")
				return
			}

			signature, err := decodeSignature(signatureValue)
			if err != nil {
				reject(http.StatusUnauthorized, "signature_invalid", "signature_invalid", "signature encoding invalid")
				return
			}
			if !hmac.Equal(signature, computeHMAC(secret, canonicalString(r, body, timestampValue, nonce))) {
				reject(http.StatusUnauthorized, "signature_mismatch", "signature_mismatch", "signature verification failed")
				return
			}

			if v.nonces == nil {
				reject(http.StatusServiceUnavailable, "nonce_store_unavailable", "verification_unavailable", "nonce store unavailable")
				return
			}
			fresh, err := v.nonces.UseNonce(ctx, secretName, nonce, v.now().Add(v.nonceTTL))
			if err != nil {
				v.logger.Printf("auth: nonce store error: %v", err)
				reject(http.StatusServiceUnavailable, "nonce_store_error", "verification_unavailable", "nonce storage error")
				return
			}
			if !fresh {
				reject(http.StatusUnauthorized, "nonce_replay", "nonce_replay", "duplicate signature nonce")
				return
			}

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r)
		})
	}
}

func (v *HMACValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "hmac", success, reason, v.now().Sub(start))
}

func (v *HMACValidator) loadSecret(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, errors.New("auth: secret name not configured")
	}
	if cached, ok := v.secretCache.Load(name); ok {
		return cached.([]byte), nil
	}
	if v.provider == nil {
		return nil, errors.New("auth: secret provider not configured")
	}
	raw, err := v.provider.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, errors.New("auth: secret is empty")
	}
	secret := []byte(raw)
	v.secretCache.Store(name, secret)
	return secret, nil
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func canonicalString(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	sum := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(r.Method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(sum[:]),
	}, "\n"))
}

func computeHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
