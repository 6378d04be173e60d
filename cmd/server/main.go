package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/ridehail/internal/config"
	"github.com/example/ridehail/internal/dispatch"
	httpapi "github.com/example/ridehail/internal/http"
	"github.com/example/ridehail/internal/ingest"
	"github.com/example/ridehail/internal/location"
	"github.com/example/ridehail/internal/logging"
	"github.com/example/ridehail/internal/payments"
	"github.com/example/ridehail/internal/pricing"
	"github.com/example/ridehail/internal/relay"
	"github.com/example/ridehail/internal/ride"
	"github.com/example/ridehail/internal/settlement"
	"github.com/example/ridehail/internal/storage"
	"github.com/example/ridehail/internal/wallet"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// Stores: Postgres when configured, in-memory for local runs.
	var (
		rideStore   storage.RideStore
		walletStore storage.WalletStore
	)
	if cfg.PGDSN != "" {
		db, err := storage.Open(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if cfg.RunMigrations {
			b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
			if err != nil {
				logger.Error("migration read failed", "error", err)
				os.Exit(1)
			}
			if _, err := db.Exec(string(b)); err != nil {
				logger.Error("migration exec failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migration applied", "file", "001_init.sql")
		}
		rideStore = storage.NewPostgresRideStore(db)
		walletStore = storage.NewPostgresWalletStore(db)
	} else {
		logger.Warn("PG_DSN not set, using in-memory stores")
		rideStore = storage.NewMemoryRideStore()
		walletStore = storage.NewMemoryWalletStore()
	}

	var locStore location.Store
	if cfg.RedisAddr != "" {
		locStore = location.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		locStore = location.NewMemoryStore()
	}

	var producer *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic, cfg.KafkaEventTopic)
		defer producer.Close()
	}

	var pay *payments.Client
	if cfg.StripeAPIKey != "" {
		pay = payments.NewClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.Currency)
	}

	var push relay.Pusher
	if cfg.PushEndpoint != "" {
		push = dispatch.NewHTTPPush(cfg.PushEndpoint, cfg.PushKey)
	}

	var router pricing.Router
	if cfg.RoutingEndpoint != "" {
		router = pricing.NewRouteClient(cfg.RoutingEndpoint)
	}
	quoter := pricing.NewQuoter(pricing.DefaultFares(), router, pricing.NewCache(cfg.QuoteCacheTTL))

	hub := dispatch.NewHub(logger)
	rel := relay.New(hub, push, rideStore, locStore, logger)
	ledger := wallet.NewLedger(walletStore, rel, logger)
	trigger := settlement.NewTrigger(ledger, rideStore, logger)
	machine := ride.NewMachine(rideStore, rel, logger, trigger)
	coordinator := ride.NewCoordinator(machine)

	var events ride.EventPublisher
	if producer != nil {
		events = producer
	}
	rides := ride.NewService(rideStore, machine, coordinator, rel, quoter, events, logger)

	srv := httpapi.NewServer(rides, ledger, hub, rel, pay, producer, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ridehail api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped cleanly")
}
