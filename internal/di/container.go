package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/easy-khana/api/internal/payments"
	"github.com/easy-khana/api/internal/platform/auth"
	"github.com/easy-khana/api/internal/platform/config"
	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/platform/jobs"
	"github.com/easy-khana/api/internal/platform/observability"
	"github.com/easy-khana/api/internal/platform/pending"
	"github.com/easy-khana/api/internal/platform/secrets"
	platformstorage "github.com/easy-khana/api/internal/platform/storage"
	"github.com/easy-khana/api/internal/repositories"
	firestoreRepo "github.com/easy-khana/api/internal/repositories/firestore"
	"github.com/easy-khana/api/internal/services"
)

const (
	pendingBackendMemory    = "memory"
	pendingBackendFirestore = "firestore"

	secretHealthReference = "secret://api-healthz"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout services.CheckoutService
	Orders   services.OrderService
	Counters services.CounterService
	System   services.SystemService
}

// Deps carries process-level collaborators created before the container.
type Deps struct {
	Logger  *zap.Logger
	Secrets *secrets.Fetcher
	Build   services.BuildInfo
	Clock   func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Services      Services
	Authenticator *auth.Authenticator
	Sweeper       *pending.Sweeper
	Notifications *services.NotificationDispatcher

	logger    *zap.Logger
	firestore *pfirestore.Provider
	notifier  *jobs.PubSubNotifier
	pubsub    *pubsub.Client
	storage   *gcs.Client
}

// NewContainer constructs the runtime dependencies from configuration. Cloud clients are created
// here and released by Close.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Container{
		Config:    cfg,
		logger:    logger,
		firestore: pfirestore.NewProvider(cfg.Firestore),
	}
	if err := c.build(ctx, cfg, deps, clock); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(closeCtx)
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, cfg config.Config, deps Deps, clock func() time.Time) error {
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return fmt.Errorf("build firebase verifier: %w", err)
	}
	c.Authenticator = auth.NewAuthenticator(verifier)

	orders, err := firestoreRepo.NewOrderRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("build order repository: %w", err)
	}
	counters, err := firestoreRepo.NewCounterRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("build counter repository: %w", err)
	}
	carts, err := firestoreRepo.NewCartRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("build cart repository: %w", err)
	}
	catalog, err := firestoreRepo.NewMealKitRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("build meal kit repository: %w", err)
	}
	users, err := firestoreRepo.NewUserRepository(c.firestore)
	if err != nil {
		return fmt.Errorf("build user repository: %w", err)
	}

	store, err := c.pendingStore(cfg.Checkout.PendingBackend)
	if err != nil {
		return err
	}
	c.Sweeper = pending.NewSweeper(store, pending.SweeperOptions{
		Interval:  cfg.Checkout.SweepInterval,
		BatchSize: cfg.Checkout.SweepBatchSize,
		Clock:     clock,
		Logger:    observability.EventLogger(c.logger.Named("pending")),
	})

	gateway, err := payments.NewKhaltiClient(payments.KhaltiConfig{
		BaseURL:   cfg.Khalti.BaseURL,
		SecretKey: cfg.Khalti.SecretKey,
		Timeout:   cfg.Khalti.Timeout,
		Logger:    observability.EventLogger(c.logger.Named("khalti")),
	})
	if err != nil {
		return fmt.Errorf("build khalti client: %w", err)
	}

	var notifier services.Notifier
	if topic := strings.TrimSpace(cfg.PubSub.NotificationsTopic); topic != "" && cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, c.clientOptions(cfg)...)
		if err != nil {
			return fmt.Errorf("build pubsub client: %w", err)
		}
		c.pubsub = client
		c.notifier, err = jobs.NewPubSubNotifier(client.Topic(topic))
		if err != nil {
			return fmt.Errorf("build pubsub notifier: %w", err)
		}
		notifier = c.notifier
	} else {
		c.logger.Warn("notifications disabled: pubsub topic not configured")
	}
	c.Notifications = services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Notifier: notifier,
		Users:    users,
		Logger:   observability.EventLogger(c.logger.Named("notifications")),
	})

	var receipts services.ReceiptArchiver
	if bucket := strings.TrimSpace(cfg.Storage.ReceiptsBucket); bucket != "" {
		client, err := gcs.NewClient(ctx, c.clientOptions(cfg)...)
		if err != nil {
			return fmt.Errorf("build storage client: %w", err)
		}
		c.storage = client
		writer, err := platformstorage.NewGCSWriter(client)
		if err != nil {
			return fmt.Errorf("build storage writer: %w", err)
		}
		archive, err := platformstorage.NewReceiptArchive(writer, bucket)
		if err != nil {
			return fmt.Errorf("build receipt archive: %w", err)
		}
		receipts = archive
	}

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{Repository: counters})
	if err != nil {
		return fmt.Errorf("build counter service: %w", err)
	}
	c.Services.Counters = counterSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:          carts,
		Catalog:        catalog,
		Orders:         orders,
		Counters:       counterSvc,
		Pending:        store,
		Gateway:        gateway,
		Notifications:  c.Notifications,
		Receipts:       receipts,
		PendingTTL:     cfg.Checkout.PendingTTL,
		GatewayTimeout: cfg.Khalti.Timeout,
		Clock:          clock,
		Logger:         observability.EventLogger(c.logger.Named("checkout")),
	})
	if err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}
	c.Services.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: orders,
		Clock:  clock,
		Logger: observability.EventLogger(c.logger.Named("orders")),
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orderSvc

	healthRepo, err := repositories.NewDependencyHealthRepository(c.healthChecks(deps.Secrets), repositories.WithDependencyClock(clock))
	if err != nil {
		return fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Sweeper:          c.Sweeper,
		Clock:            clock,
		Build:            deps.Build,
	})
	if err != nil {
		return fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = systemSvc
	return nil
}

func (c *Container) pendingStore(backend string) (pending.Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case pendingBackendMemory:
		c.logger.Warn("pending payments held in memory; staged checkouts are lost on restart")
		return pending.NewMemoryStore(), nil
	case "", pendingBackendFirestore:
		store, err := pending.NewFirestoreStore(c.firestore)
		if err != nil {
			return nil, fmt.Errorf("build pending payment store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown pending payment backend %q", backend)
	}
}

func (c *Container) clientOptions(cfg config.Config) []option.ClientOption {
	if cfg.Firebase.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.Firebase.CredentialsFile)}
}

func (c *Container) healthChecks(fetcher *secrets.Fetcher) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   c.firestore.Ping,
		},
	}
	if c.pubsub != nil && c.notifier != nil {
		topic := c.pubsub.Topic(c.Config.PubSub.NotificationsTopic)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("notification topic does not exist")
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrNotFound) {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

// Close stops the sweeper, drains notifications and releases cloud clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	if c.Notifications != nil {
		done := make(chan struct{})
		go func() {
			c.Notifications.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn("notifications still in flight at shutdown")
		}
	}
	if c.notifier != nil {
		c.notifier.Stop()
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
	}
	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if c.firestore != nil {
		if err := c.firestore.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close firestore: %w", err))
		}
	}
	return errors.Join(errs...)
}
