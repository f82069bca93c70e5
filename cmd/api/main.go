package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/sauber-detailing/pos-api/internal/handlers"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/config"
	pfirestore "github.com/sauber-detailing/pos-api/internal/platform/firestore"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/platform/idempotency"
	"github.com/sauber-detailing/pos-api/internal/platform/jobs"
	"github.com/sauber-detailing/pos-api/internal/platform/observability"
	"github.com/sauber-detailing/pos-api/internal/platform/secrets"
	pstorage "github.com/sauber-detailing/pos-api/internal/platform/storage"
	"github.com/sauber-detailing/pos-api/internal/repositories"
	firestoreRepo "github.com/sauber-detailing/pos-api/internal/repositories/firestore"
	"github.com/sauber-detailing/pos-api/internal/services"
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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
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
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	location := cfg.Reports.Location()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := gcs.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	objectWriter, err := pstorage.NewWriter(storageClient)
	if err != nil {
		logger.Fatal("failed to initialise storage writer", zap.Error(err))
	}
	urlSigner := newURLSigner(logger.Named("storage"), cfg.Storage)

	serviceRepo, err := firestoreRepo.NewServiceRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise service repository", zap.Error(err))
	}
	customerRepo, err := firestoreRepo.NewCustomerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise customer repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	staffRepo, err := firestoreRepo.NewStaffRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise staff repository", zap.Error(err))
	}

	firebaseClient, err := auth.NewFirebaseClient(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth", zap.Error(err))
	}

	orderEvents, stopEvents := newOrderEventPublisher(ctx, logger.Named("pubsub"), cfg.PubSub)
	defer stopEvents()

	orderMetrics, err := observability.NewOrderMetrics(nil)
	if err != nil {
		logger.Warn("order metrics unavailable", zap.Error(err))
	}
	var metrics services.OrderMetrics
	if orderMetrics != nil {
		metrics = orderMetrics
	}

	staffService, err := services.NewStaffService(services.StaffServiceDeps{
		Staff:    staffRepo,
		Accounts: firebaseClient,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("staff")),
	})
	if err != nil {
		logger.Fatal("failed to initialise staff service", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseClient, auth.WithProfileLoader(staffService))

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Services:     serviceRepo,
		Orders:       orderRepo,
		URLs:         urlSigner,
		ImagesBucket: cfg.Storage.ImagesBucket,
		Clock:        time.Now,
		Logger:       eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	customerService, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: customerRepo,
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("customers")),
	})
	if err != nil {
		logger.Fatal("failed to initialise customer service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  orderRepo,
		Clock:   time.Now,
		Events:  orderEvents,
		Metrics: metrics,
		Logger:  eventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	drafts := services.NewDraftStore(func() *services.OrderComposer {
		return services.NewOrderComposer(orderService, nil, time.Now)
	}, cfg.Drafts.TTL, time.Now)
	composerService, err := services.NewComposerService(services.ComposerServiceDeps{
		Drafts:  drafts,
		Catalog: serviceRepo,
		Logger:  eventLogger(logger.Named("composer")),
	})
	if err != nil {
		logger.Fatal("failed to initialise composer service", zap.Error(err))
	}

	reportService, err := services.NewReportService(services.ReportServiceDeps{
		Orders:            orderService,
		Location:          location,
		RecentOrderWindow: cfg.Reports.RecentOrderWindow,
		Writer:            objectWriter,
		URLs:              urlSigner,
		ExportsBucket:     cfg.Storage.ExportsBucket,
		Clock:             time.Now,
		Logger:            eventLogger(logger.Named("reports")),
	})
	if err != nil {
		logger.Fatal("failed to initialise report service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreProvider, objectWriter, cfg.Storage, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider, "")
	idempotencyGuard := idempotency.Guard(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		idempotency.Janitor(janitorCtx, idempotencyStore, cfg.Idempotency.CleanupInterval,
			cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)
	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	customerHandlers := handlers.NewCustomerHandlers(customerService,
		handlers.WithCustomerLocation(location),
		handlers.WithSuggestRateLimit(cfg.RateLimits.SuggestPerMinute, time.Now),
	)
	draftHandlers := handlers.NewDraftHandlers(composerService, handlers.WithDraftSubmitGuard(idempotencyGuard))
	orderHandlers := handlers.NewOrderHandlers(orderService,
		handlers.WithOrderCreateGuard(idempotencyGuard),
		handlers.WithOrderLocation(location),
	)
	reportHandlers := handlers.NewReportHandlers(reportService, handlers.WithReportLocation(location))
	staffHandlers := handlers.NewStaffHandlers(staffService)
	internalHandlers := handlers.NewInternalHandlers(idempotencyStore, reportService)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithStaffMiddlewares(authenticator.Authenticate(), handlers.SessionMiddleware),
		handlers.WithMeRoutes(handlers.NewMeHandlers(staffService).Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCustomerRoutes(customerHandlers.Routes),
		handlers.WithDraftRoutes(draftHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithReportRoutes(reportHandlers.Routes),
		handlers.WithStaffRoutes(staffHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	} else {
		opts = append(opts, handlers.WithInternalMiddlewares(denyAll))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("sauber pos api listening",
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJanitor()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if n := drafts.Len(); n > 0 {
		logger.Info("discarding unsubmitted drafts", zap.Int("drafts", n))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// eventLogger adapts zap to the services' structured event hook.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallback := lookup("API_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallback),
		secrets.WithLogger(logger.Named("secrets")),
	}
	if credentials := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets a deployed environment cannot start without. Local
// runs tolerate a missing signer and simply disable signed URLs.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"])) {
	case "", "local", "test":
		return nil
	default:
		return []string{"Storage.SignerCredentials"}
	}
}

func newURLSigner(logger *zap.Logger, cfg config.StorageConfig) services.URLSigner {
	key := strings.TrimSpace(cfg.SignerCredentials)
	if key == "" {
		logger.Warn("storage signer credentials not configured; signed urls disabled")
		return nil
	}
	signer, err := pstorage.NewKeySigner([]byte(key))
	if err != nil {
		logger.Fatal("failed to parse storage signer credentials", zap.Error(err))
	}
	client, err := pstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}
	return client
}

// newOrderEventPublisher returns nil when no topic is configured. The returned stop function
// flushes pending messages and closes the client.
func newOrderEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.PubSubConfig) (services.OrderEventPublisher, func()) {
	topicName := strings.TrimSpace(cfg.OrderEventsTopic)
	if topicName == "" {
		logger.Info("order events disabled")
		return nil, func() {}
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Warn("pubsub unavailable; order events disabled", zap.Error(err))
		return nil, func() {}
	}
	publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(topicName))
	if err != nil {
		_ = client.Close()
		logger.Warn("order event publisher unavailable", zap.Error(err))
		return nil, func() {}
	}
	return publisher, func() {
		publisher.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

func newSystemService(provider *pfirestore.Provider, writer *pstorage.Writer, cfg config.StorageConfig, build services.BuildInfo) (services.SystemService, error) {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	for name, bucket := range map[string]string{"imagesBucket": cfg.ImagesBucket, "exportsBucket": cfg.ExportsBucket} {
		if strings.TrimSpace(bucket) == "" {
			continue
		}
		b := bucket
		checks = append(checks, repositories.DependencyCheck{
			Name:    name,
			Timeout: time.Second,
			Check:   func(ctx context.Context) error { return writer.Ping(ctx, b) },
		})
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_disabled", "internal endpoints are not configured", http.StatusForbidden))
	})
}
