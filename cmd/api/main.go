package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/easy-khana/api/internal/di"
	"github.com/easy-khana/api/internal/handlers"
	"github.com/easy-khana/api/internal/platform/auth"
	"github.com/easy-khana/api/internal/platform/config"
	"github.com/easy-khana/api/internal/platform/observability"
	"github.com/easy-khana/api/internal/platform/requestctx"
	"github.com/easy-khana/api/internal/platform/secrets"
	"github.com/easy-khana/api/internal/services"
)

// paymentWebhookSecret names the HMAC secret guarding the payment webhook.
const paymentWebhookSecret = "payments"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Khalti.SecretKey"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Logger:  logger,
		Secrets: fetcher,
		Build:   buildInfo(cfg, startedAt),
	})
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	container.Sweeper.Start(sweepCtx)

	checkoutHandlers := handlers.NewCheckoutHandlers(container.Authenticator, container.Services.Checkout)
	orderHandlers := handlers.NewOrderHandlers(container.Authenticator, container.Services.Orders)
	maintenanceHandlers := handlers.NewMaintenanceHandlers(container.Services.System)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.RequestLoggerMiddleware(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCORSOrigins(cfg.CORS.AllowedOrigins...),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithWebhookRoutes(orderHandlers.WebhookRoutes),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(logger.Named("auth"), cfg)),
	}
	if hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg); hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	} else {
		logger.Warn("payment webhook is not signature-protected: no payments hmac secret configured")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("easy-khana api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	stopSweeps()
	if err := container.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}
}

func buildInfo(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secretsByName := make(map[string]string, len(cfg.Security.HMAC.Secrets))
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secretsByName[strings.ToLower(key)] = value
	}
	if _, ok := secretsByName[paymentWebhookSecret]; !ok {
		return nil
	}

	validator := auth.NewHMACValidator(staticSecretProvider{secrets: secretsByName}, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACWindow(cfg.Security.HMAC.ClockSkew, cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(paymentWebhookSecret)
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// newSecretFetcher bootstraps Secret Manager before the full configuration is loaded.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, err := config.Lookup(key)
		if err != nil {
			logger.Warn("secrets: bootstrap lookup failed", zap.String("key", key), zap.Error(err))
			return ""
		}
		return value
	}

	projectID := lookup("API_SECRETS_PROJECT_ID")
	if projectID == "" {
		projectID = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectID != "" {
		opts = append(opts, secrets.WithProject(projectID))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
