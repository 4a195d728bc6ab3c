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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/electrocart/api/internal/events"
	"github.com/electrocart/api/internal/handlers"
	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/platform/config"
	pfirestore "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/idempotency"
	"github.com/electrocart/api/internal/platform/observability"
	"github.com/electrocart/api/internal/platform/storage"
	firestoreRepo "github.com/electrocart/api/internal/repositories/firestore"
	"github.com/electrocart/api/internal/services"
)

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
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	var publisher events.OrderEventPublisher
	if topicID := strings.TrimSpace(cfg.Events.Topic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()

		publisher, err = events.NewPubSubPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		logger.Info("order event publishing enabled", zap.String("topic", topicID))
	} else {
		logger.Info("order event publishing disabled")
	}

	productRepo := firestoreRepo.NewProductRepository(firestoreProvider)
	categoryRepo := firestoreRepo.NewCategoryRepository(firestoreProvider)
	orderRepo := firestoreRepo.NewOrderRepository(firestoreProvider)
	inventoryRepo := firestoreRepo.NewInventoryRepository(firestoreProvider)
	cartRepo := firestoreRepo.NewCartRepository(firestoreProvider)
	userRepo := firestoreRepo.NewUserRepository(firestoreProvider)

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   productRepo,
		Categories: categoryRepo,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:    cartRepo,
		Products: productRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       cartRepo,
		Orders:      orderRepo,
		Products:    productRepo,
		Publisher:   publisher,
		Metrics:     metrics,
		ShippingFee: cfg.Checkout.ShippingFee,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Inventory: inventoryRepo,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	userService, err := services.NewUserService(services.UserServiceDeps{
		Users:  userRepo,
		Claims: verifier,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise user service", zap.Error(err))
	}

	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService,
		handlers.WithCheckoutRetryGuard(idempotency.Middleware(idempotency.NewFirestoreStore(firestoreClient))))
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	meHandlers := handlers.NewMeHandlers(authenticator, userService)
	var adminCatalogOpts []handlers.AdminCatalogOption
	if cfg.Storage.Bucket != "" {
		signer, err := storage.NewServiceAccountSignerFromFile(cfg.Storage.SignerKeyFile)
		if err != nil {
			logger.Fatal("failed to load storage signer key", zap.Error(err))
		}
		gcsClient, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()

		imageStore, err := storage.NewImageStore(cfg.Storage.Bucket, signer, gcsClient)
		if err != nil {
			logger.Fatal("failed to initialise image store", zap.Error(err))
		}
		adminCatalogOpts = append(adminCatalogOpts, handlers.WithProductImageSigner(imageStore))
		logger.Info("product image uploads enabled", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		logger.Info("product image uploads disabled")
	}

	adminOrderHandlers := handlers.NewAdminOrderHandlers(orderService)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(catalogService, adminCatalogOpts...)
	adminUserHandlers := handlers.NewAdminUserHandlers(userService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     strings.TrimSpace(os.Getenv("API_BUILD_VERSION")),
			CommitSHA:   strings.TrimSpace(os.Getenv("API_BUILD_COMMIT")),
			Environment: strings.TrimSpace(os.Getenv("API_ENVIRONMENT")),
			StartedAt:   startedAt,
		}),
		handlers.WithHealthProbe("firestore", firestoreProbe(firestoreClient)),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleAdmin)),
		handlers.WithAdminRoutes(func(r chi.Router) {
			adminOrderHandlers.Routes(r)
			adminCatalogHandlers.Routes(r)
			adminUserHandlers.Routes(r)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed, forcing close", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Error("server close error", zap.Error(err))
			}
		}
	}

	logger.Info("server stopped")
}

// firestoreProbe reads at most one document to confirm the database is
// reachable without touching any collection state.
func firestoreProbe(client *firestore.Client) handlers.ReadinessProbe {
	return func(ctx context.Context) error {
		iter := client.Collection("products").Limit(1).Documents(ctx)
		defer iter.Stop()
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}
