package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/tenana/wallet-service/internal/api"
	"github.com/tenana/wallet-service/internal/config"
	"github.com/tenana/wallet-service/internal/handler"
	"github.com/tenana/wallet-service/internal/infrastructure/auth"
	"github.com/tenana/wallet-service/internal/infrastructure/kafka"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/observability"
	"github.com/tenana/wallet-service/internal/repository"
	"github.com/tenana/wallet-service/internal/repository/memory"
	core "github.com/tenana/wallet-service/internal/repository/postgres"
	service "github.com/tenana/wallet-service/internal/services"
	"golang.org/x/sync/errgroup"
)

type repositories struct {
	ledger   repository.LedgerRepository
	deposits repository.DepositRepository
	orders   repository.OrderRepository
	products repository.ProductRepository
	users    repository.UserRepository
	stats    repository.StatsRepository
	close    func() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	// Инициализируем логи, метрики, трейсы
	shutdownTracing, metricsHandler := observability.Setup(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Error("failed to shut down tracer", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, redisClient)
	defer consumer.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	roles := auth.NewRoleCache(redisClient, repos.users, cfg.AdminRoleCacheTTL)

	walletSvc := service.NewWalletService(repos.ledger, repos.deposits, repos.orders, repos.products,
		redisClient, producer, cfg.KafkaTopic, cfg.BalanceCacheTTL, cfg.MaxDepositAmount)
	adminSvc := service.NewAdminService(repos.ledger, repos.deposits, repos.orders, repos.stats,
		redisClient, producer, cfg.KafkaTopic)
	authSvc := service.NewAuthService(repos.users, redisClient, tokens, roles, cfg.AdminEmail)

	h := handler.NewHandler(walletSvc, adminSvc, authSvc)
	router := api.SetupRouter(h, redisClient, tokens, roles, nil)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		return listen(server)
	})
	g.Go(func() error {
		slog.Info("starting metrics server", "addr", cfg.MetricsAddr)
		return listen(metricsServer)
	})
	g.Go(func() error {
		return consumer.Consume(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.StorageDriver {
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore()
		products := memory.DefaultCatalog()
		if cfg.ProductsFile != "" {
			var err error
			if products, err = memory.LoadCatalog(cfg.ProductsFile); err != nil {
				return nil, err
			}
		}
		store.SeedCatalog(products)
		for _, p := range products {
			slog.Info("catalog product", "product_id", p.ID, "title", p.Title, "price", p.Price.String())
		}
		return &repositories{
			ledger:   store.Ledger(),
			deposits: store.Deposits(),
			orders:   store.Orders(),
			products: store.Products(),
			users:    store.Users(),
			stats:    store.Stats(),
			close:    func() error { return nil },
		}, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		slog.Info("connected to Postgres")
		return &repositories{
			ledger:   core.NewPostgresLedgerRepository(db),
			deposits: core.NewPostgresDepositRepository(db),
			orders:   core.NewPostgresOrderRepository(db),
			products: core.NewPostgresProductRepository(db),
			users:    core.NewPostgresUserRepository(db),
			stats:    core.NewPostgresStatsRepository(db),
			close:    db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
