package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "ek-dev"}),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "ek-dev" || cfg.PubSub.ProjectID != "ek-dev" || cfg.Secrets.ProjectID != "ek-dev" {
		t.Errorf("expected project ids to default to firebase project, got %+v %+v %+v", cfg.Firestore, cfg.PubSub, cfg.Secrets)
	}
	if cfg.Khalti.BaseURL != defaultKhaltiBaseURL || cfg.Khalti.Timeout != 10*time.Second {
		t.Errorf("unexpected khalti defaults %+v", cfg.Khalti)
	}
	if cfg.Checkout.PendingTTL != 30*time.Minute || cfg.Checkout.SweepInterval != 10*time.Minute {
		t.Errorf("unexpected checkout defaults %+v", cfg.Checkout)
	}
	if cfg.Checkout.PendingBackend != "firestore" {
		t.Errorf("expected firestore pending backend, got %s", cfg.Checkout.PendingBackend)
	}
	if cfg.PubSub.NotificationsTopic != defaultNotificationsTopic {
		t.Errorf("unexpected topic %s", cfg.PubSub.NotificationsTopic)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.HMAC.SignatureHeader != defaultHMACSignatureHeader {
		t.Errorf("unexpected signature header %s", cfg.Security.HMAC.SignatureHeader)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Errorf("expected default storefront origin, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Storage.ReceiptsBucket != "" {
		t.Errorf("expected archive disabled by default, got %s", cfg.Storage.ReceiptsBucket)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"API_FIREBASE_PROJECT_ID":        "ek-prod",
		"API_FIRESTORE_PROJECT_ID":       "ek-orders",
		"API_STORAGE_RECEIPTS_BUCKET":    "ek-receipts",
		"API_PUBSUB_NOTIFICATIONS_TOPIC": "mail",
		"API_KHALTI_BASE_URL":            "https://khalti.com/api/v2/",
		"API_KHALTI_SECRET_KEY":          "secret://khalti/key",
		"API_KHALTI_TIMEOUT":             "5s",
		"API_CHECKOUT_PENDING_TTL":       "15m",
		"API_CHECKOUT_SWEEP_INTERVAL":    "1m",
		"API_CHECKOUT_PENDING_BACKEND":   "Memory",
		"API_SECURITY_ENVIRONMENT":       "PROD",
		"API_SECURITY_OIDC_AUDIENCE":     "https://api.easykhana.test/internal",
		"API_SECURITY_OIDC_ISSUERS":      "https://accounts.google.com, https://cloud.google.com/iap",
		"API_SECURITY_HMAC_SECRETS":      "Payments=sm://hmac/payments,ops=plain",
		"API_SECURITY_HMAC_CLOCK_SKEW":   "3m",
		"API_CORS_ALLOWED_ORIGINS":       "https://easykhana.com, https://admin.easykhana.com",
	}
	secrets := map[string]string{
		"secret://khalti/key":    "live-secret-key",
		"secret://hmac/payments": "webhook-secret",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver), WithRequiredSecrets("Khalti.SecretKey"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "ek-orders" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Khalti.BaseURL != "https://khalti.com/api/v2" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Khalti.BaseURL)
	}
	if cfg.Khalti.SecretKey != "live-secret-key" {
		t.Errorf("expected resolved khalti key, got %s", cfg.Khalti.SecretKey)
	}
	if cfg.Checkout.PendingBackend != "memory" || cfg.Checkout.PendingTTL != 15*time.Minute {
		t.Errorf("unexpected checkout config %+v", cfg.Checkout)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.HMAC.Secrets["payments"] != "webhook-secret" || cfg.Security.HMAC.Secrets["ops"] != "plain" {
		t.Errorf("unexpected hmac secrets %v", cfg.Security.HMAC.Secrets)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 || len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("unexpected lists %v %v", cfg.Security.OIDC.Issuers, cfg.CORS.AllowedOrigins)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "# local\nexport API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=\"ek-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" || cfg.Firebase.ProjectID != "ek-dot" {
		t.Fatalf("unexpected dotenv values %+v %+v", cfg.Server, cfg.Firebase)
	}
}

func TestLoadMapOverridesDotEnv(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	if err := os.WriteFile(envPath, []byte("API_FIREBASE_PROJECT_ID=dot\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	value, err := Lookup("API_FIREBASE_PROJECT_ID", WithEnvFile(envPath), WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "override"}))
	if err != nil || value != "override" {
		t.Fatalf("expected override, got %q err %v", value, err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"API_CHECKOUT_PENDING_BACKEND": "redis",
	}), WithoutSystemEnv(), WithEnvFile(""))

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
	fields := validation.Fields()
	if len(fields) != 2 || fields[0] != "Firebase.ProjectID" || fields[1] != "Checkout.PendingBackend" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ek-dev",
		"API_KHALTI_SECRET_KEY":   "secret://missing",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" || !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("unexpected secret error %v", secretErr)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "ek-dev"}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Khalti.SecretKey", "Khalti.SecretKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Khalti.SecretKey" {
		t.Fatalf("unexpected missing names %v", names)
	}
}
