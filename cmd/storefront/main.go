package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/domain"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/postgres"
	"github.com/fjod/storefront/internal/profile"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/summary"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const memoryCacheTTL = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()
	zap.ReplaceGlobals(lg)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, "storefront", cfg.OTLPEndpoint)
	if err != nil {
		lg.Fatal("Failed to init tracing", zap.Error(err))
	}

	// Catalog (SQLite)
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		lg.Fatal("Failed to open catalog", zap.Error(err))
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		lg.Fatal("Failed to run catalog migrations", zap.Error(err))
	}

	// Carts (MongoDB)
	mongoDB, err := cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		lg.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	cartRepo := cart.NewMongoRepository(mongoDB)
	if err := cart.EnsureIndexes(ctx, cartRepo); err != nil {
		lg.Fatal("Failed to create cart indexes", zap.Error(err))
	}
	lg.Info("Connected to MongoDB", zap.String("uri", cfg.MongoURI))

	// Profiles, payment configuration, checkout attempts (PostgreSQL)
	creds := &postgres.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.PGMigrationsPath,
	}
	db, err := postgres.Open(creds)
	if err != nil {
		lg.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.RunMigrations(db, creds); err != nil {
		lg.Fatal("Failed to run migrations", zap.Error(err))
	}
	lg.Info("Database migrations completed")

	// Caches
	var redisClient *redis.Client
	var gens cache.Generations = cache.NewMemoryGenerations()
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			lg.Fatal("Redis connection failed", zap.Error(err))
		}
		gens = cache.NewRedisGenerations(redisClient)
		lg.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	} else {
		lg.Warn("REDIS_ADDR not set, caching in process memory")
	}
	gens = cache.NewRecoveringGenerations(gens, lg)

	// Services
	catalogSvc := catalog.NewService(catalogRepo, newCache[[]domain.Product](redisClient, gens, "catalog", lg), lg)
	cartSvc := cart.NewService(cartRepo, catalogSvc, newCache[[]domain.CartLine](redisClient, gens, "cart", lg), lg)
	summarySvc := summary.NewService(cartSvc, catalogSvc, newCache[domain.OrderSummary](redisClient, gens, "summary", lg), lg)
	profiles := profile.NewGate(profile.NewPostgresRepository(db), newCache[profile.Record](redisClient, gens, "profile", lg), lg)

	paymentConfigs := payment.NewConfigRepository(db)
	payments := payment.NewConfiguration(paymentConfigs, lg)
	provider := payment.NewStripeProvider(paymentConfigs, cfg.StripeAPIURL, lg)

	checkoutRepo := checkout.NewPostgresRepository(db)
	checkoutSvc := checkout.NewService(
		checkoutRepo,
		summarySvc,
		catalogSvc,
		profiles,
		provider,
		payments,
		checkout.Settings{PublicBaseURL: cfg.PublicBaseURL, Currency: cfg.Currency},
		lg,
	)

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup

	outbox := publisher.NewOutboxPoller(checkoutRepo, lg, cfg.KafkaBrokers...)
	cartConsumer := poller.NewPoller(cartSvc, lg, cfg.KafkaBrokers...)
	workers.Add(2)
	go func() {
		defer workers.Done()
		outbox.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		cartConsumer.Run(workerCtx)
	}()

	// HTTP
	router := h.NewRouter(h.Handlers{
		Products: h.NewProductHandler(catalogSvc, cfg.RequestTimeout, lg),
		Cart:     h.NewCartHandler(cartSvc, summarySvc, cfg.RequestTimeout, lg),
		Profile:  h.NewProfileHandler(profiles, cfg.RequestTimeout, lg),
		Checkout: h.NewCheckoutHandler(checkoutSvc, payments, cfg.RequestTimeout, lg),
	}, []byte(cfg.JWTSecret), lg)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// gRPC health
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		lg.Fatal("Failed to listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("storefront", healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	go func() {
		lg.Info("gRPC health server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			lg.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("Shutting down storefront...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()

	stopWorkers()
	workers.Wait()
	outbox.Close()
	cartConsumer.Close()

	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		lg.Error("MongoDB disconnect failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Error("Tracing shutdown failed", zap.Error(err))
	}
	lg.Info("Storefront stopped")
}

// newCache picks the Redis store when a client is configured and falls back to
// process memory otherwise. All caches share gens so one bump reaches every
// dependent entry.
func newCache[T any](client *redis.Client, gens cache.Generations, prefix string, lg *zap.Logger) *cache.Versioned[T] {
	if client != nil {
		return cache.NewVersioned[T](cache.NewRedisStore[T](client, prefix), gens, lg)
	}
	return cache.NewVersioned[T](cache.NewMemoryStore[T](memoryCacheTTL), gens, lg)
}
