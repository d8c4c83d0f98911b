package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/khaledhegab/ets-backend-final/internal/config"
	"github.com/khaledhegab/ets-backend-final/internal/dispatch"
	"github.com/khaledhegab/ets-backend-final/internal/fares"
	httpapi "github.com/khaledhegab/ets-backend-final/internal/http"
	"github.com/khaledhegab/ets-backend-final/internal/ingest"
	"github.com/khaledhegab/ets-backend-final/internal/ledger"
	"github.com/khaledhegab/ets-backend-final/internal/logging"
	"github.com/khaledhegab/ets-backend-final/internal/payments"
	"github.com/khaledhegab/ets-backend-final/internal/recharge"
	"github.com/khaledhegab/ets-backend-final/internal/routes"
	"github.com/khaledhegab/ets-backend-final/internal/stations"
	"github.com/khaledhegab/ets-backend-final/internal/storage"
	"github.com/khaledhegab/ets-backend-final/internal/token"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	graph := routes.NewGraph(routes.NetworkLines())

	codec, err := token.NewCodec(cfg.TripKeySecret)
	if err != nil {
		logger.Error("token codec init", "error", err)
		os.Exit(1)
	}

	var (
		accounts     storage.AccountStore
		transactions storage.TransactionStore
		trips        storage.TripStore
		prices       fares.PriceProvider
		directory    stations.Directory
		locator      stations.Locator
	)

	if cfg.PGDSN != "" {
		db, err := storage.OpenPostgres(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration failed", "error", err)
					os.Exit(1)
				}
				logger.Info("migration applied", "file", "001_create_schema.sql")
			} else {
				logger.Warn("migration file missing", "error", err)
			}
		}

		accounts = &storage.PostgresAccounts{DB: db}
		transactions = &storage.PostgresTransactions{DB: db}
		trips = &storage.PostgresTrips{DB: db}
		prices = fares.NewCachedPrices(&storage.PostgresPrices{DB: db}, cfg.PriceCacheTTL)
		gates := &storage.PostgresGates{DB: db}
		directory = gates

		if cfg.RedisAddr != "" {
			locator, err = loadRedisLocator(cfg, gates, logger)
			if err != nil {
				logger.Error("station locator init", "error", err)
				os.Exit(1)
			}
		} else {
			mem := stations.NewMemoryDirectory()
			all, err := gates.AllStations(context.Background())
			if err != nil {
				logger.Error("load stations", "error", err)
				os.Exit(1)
			}
			for _, st := range all {
				mem.AddStation(st)
			}
			locator = mem
		}
	} else {
		logger.Warn("PG_DSN not set; using in-memory stores")
		accounts = storage.NewMemoryAccounts()
		transactions = storage.NewMemoryTransactions()
		trips = storage.NewMemoryTrips()
		prices = fares.StaticPrices{
			fares.TierSameStation: 300,
			fares.TierShort:       500,
			fares.TierMedium:      700,
			fares.TierLong:        1000,
			fares.TierExtended:    1500,
		}
		mem := stations.NewMemoryDirectory()
		directory = mem
		locator = mem
	}

	var events ledger.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = producer
	}

	var alerts ledger.AlertNotifier
	if cfg.OpsAlertEndpoint != "" {
		alerts = dispatch.NewOpsNotifier(cfg.OpsAlertEndpoint, logger)
	}

	led := &ledger.Ledger{
		Accounts:     accounts,
		Transactions: transactions,
		Trips:        trips,
		Prices:       prices,
		Graph:        graph,
		Tokens:       codec,
		Events:       events,
		Alerts:       alerts,
		Logger:       logger,
		TokenTTL:     cfg.TokenTTL,
	}

	processor := &recharge.Processor{
		Accounts:     accounts,
		Transactions: transactions,
		Verifier:     &recharge.HMACVerifier{Secret: []byte(cfg.WebhookSecret)},
		Logger:       logger,
	}

	var stripeClient *payments.StripeClient
	if cfg.StripeAPIKey != "" {
		stripeClient = payments.NewStripeClient(cfg.StripeAPIKey, cfg.StripeCurrency)
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Ledger:       led,
		Recharge:     processor,
		Planner:      &stations.Planner{Locator: locator, Graph: graph},
		Gates:        directory,
		Stripe:       stripeClient,
		Feed:         dispatch.NewStationFeed(),
		StationToken: cfg.StationAuthToken,
		Logger:       logger,
	})

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
		logger.Info("fare service listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func loadRedisLocator(cfg config.ServerConfig, gates *storage.PostgresGates, logger *slog.Logger) (stations.Locator, error) {
	locator := stations.NewRedisLocator(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	all, err := gates.AllStations(context.Background())
	if err != nil {
		return nil, err
	}
	if err := locator.Load(context.Background(), all); err != nil {
		return nil, err
	}
	logger.Info("station geo index loaded", "stations", len(all))
	return locator, nil
}
