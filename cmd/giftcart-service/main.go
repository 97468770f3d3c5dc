package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/cart"
	"github.com/fjod/go_cart/giftcart-service/internal/config"
	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/fjod/go_cart/giftcart-service/internal/eligibility"
	cartgrpc "github.com/fjod/go_cart/giftcart-service/internal/grpc"
	h "github.com/fjod/go_cart/giftcart-service/internal/http"
	"github.com/fjod/go_cart/giftcart-service/internal/obs"
	"github.com/fjod/go_cart/giftcart-service/internal/poller"
	"github.com/fjod/go_cart/giftcart-service/internal/reconciler"
	"github.com/fjod/go_cart/giftcart-service/internal/repository"
	"github.com/fjod/go_cart/giftcart-service/internal/wishlist"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.Load()
	logger := obs.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	obs.InitPropagation()

	if err := run(cfg, logger); err != nil {
		logger.Error("giftcart service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cartStore := cart.NewStore(
		repository.NewListStore[domain.CartItem](kv, cfg.CartKey, logger),
		logger.With("component", "cart"),
	)
	wishlistStore := wishlist.NewStore(
		repository.NewListStore[domain.WishlistItem](kv, cfg.WishlistKey, logger),
		logger.With("component", "wishlist"),
	)

	healthServer := cartgrpc.NewHealthServer(logger.With("component", "grpc"))
	cartStore.Load(ctx)
	wishlistStore.Load(ctx)
	healthServer.SetServing(true)

	checker := eligibility.NewClient(eligibility.Config{
		Endpoint:         cfg.EligibilityURL,
		Timeout:          cfg.EligibilityTimeout,
		FailureThreshold: cfg.EligibilityMaxFailures,
		OpenTimeout:      cfg.EligibilityOpenTimeout,
	}, logger.With("component", "eligibility"))
	gifts := reconciler.New(cartStore, checker, cfg.GiftDebounce, logger.With("component", "reconciler"))

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Ready:          cartStore.Loaded,
	}, h.NewCartHandler(cartStore, gifts), h.NewWishlistHandler(wishlistStore), logger.With("component", "http"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gifts.Run(gctx)
	})

	g.Go(func() error {
		return healthServer.Serve(gctx, lis)
	})

	g.Go(func() error {
		logger.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		consumer := poller.NewPoller(poller.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
			OwnerID: cfg.CartOwnerID,
		}, cartStore, logger.With("component", "poller"))
		g.Go(func() error {
			defer consumer.Close()
			consumer.Run(gctx)
			return nil
		})
	} else {
		logger.Info("KAFKA_BROKERS not set, checkout consumer disabled")
	}

	err = g.Wait()
	logger.Info("giftcart service stopped", "gift_stats", gifts.Stats())
	return err
}

// openStore connects the configured storage backend and returns a function
// releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.KVStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
		return repository.NewRedisStore(client, "giftcart", cfg.RedisTTL), func() { client.Close() }, nil

	case config.BackendMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		store := repository.NewMongoStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			logger.Warn("failed to create mongo indexes", "error", err)
		}
		logger.Info("connected to mongodb", "database", cfg.MongoDBName)
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		}, nil

	case config.BackendSQLite:
		store, err := repository.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLitePath)
		return store, func() { store.Close() }, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, cart will not survive restarts")
		return repository.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
