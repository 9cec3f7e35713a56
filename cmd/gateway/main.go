package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/quantumpay/gateway/internal/alert"
	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/chain"
	"github.com/quantumpay/gateway/internal/confidential"
	"github.com/quantumpay/gateway/internal/config"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/events"
	"github.com/quantumpay/gateway/internal/fees"
	"github.com/quantumpay/gateway/internal/fraud"
	"github.com/quantumpay/gateway/internal/idempotency"
	"github.com/quantumpay/gateway/internal/payment/pinet"
	"github.com/quantumpay/gateway/internal/pipeline"
	"github.com/quantumpay/gateway/internal/rng"
	"github.com/quantumpay/gateway/internal/server"
	"github.com/quantumpay/gateway/internal/settlement"
	"github.com/quantumpay/gateway/internal/tracing"
	"github.com/quantumpay/gateway/internal/txid"
	"github.com/quantumpay/gateway/internal/venue"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "quantumpay-gateway", cfg.Tracing.OTLPEndpoint, cfg.Tracing.Insecure)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	auditLog, err := audit.Open(cfg.Log.FilePath, logger)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	registry, err := config.LoadChainRegistry(cfg.Chains.RegistryPath)
	if err != nil {
		return fmt.Errorf("load chain registry: %w", err)
	}
	signer, err := chain.NewKeySigner(cfg.Chains.SigningKey)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	submitter := chain.NewSubmitter(registry, signer,
		cfg.Chains.ReceiptInterval, cfg.Chains.ReceiptTimeout, auditLog, logger)

	source := newRandomSource(cfg, auditLog, logger)
	txids := txid.NewGenerator(source, auditLog)
	screener := fraud.NewFailOpen(newScreener(cfg, source), auditLog, logger)

	quoters := make([]venue.Quoter, 0, len(cfg.Venues.Names))
	for _, name := range cfg.Venues.Names {
		quoters = append(quoters, venue.NewHTTPQuoter(
			name, cfg.Venues.BaseURLs[name], cfg.Venues.APIKey,
			cfg.Venues.RatePerSec, cfg.Venues.RateBurst, logger))
	}
	collector := venue.NewCollector(quoters, cfg.Venues.QuoteTimeout, logger)
	optimizer := venue.NewOptimizer(logger)

	exchange := settlement.NewExchangeClient(cfg.Venues.BaseURLs,
		cfg.Venues.APIKey, cfg.Venues.APISecret, auditLog, logger)
	pinetClient := pinet.NewHTTPClient(cfg.PiNetwork.BaseURL, cfg.PiNetwork.APIKey,
		cfg.PiNetwork.NetworkName, auditLog, logger)
	executor := settlement.NewExecutor(exchange, exchange, submitter, registry,
		pinetClient, auditLog, logger)

	allocator := fees.NewAllocator(cfg.Fees.Rate, cfg.Chains.TreasuryAddress,
		model.ChainEthereum, collector, optimizer, submitter, registry, auditLog, logger)

	store, closeStore, err := newIdempotencyStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("init idempotency store: %w", err)
	}
	defer closeStore()

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	alerter := newAlerter(cfg, logger)
	codec := confidential.NewPaillierCodec(auditLog, logger)

	orchestrator := pipeline.NewOrchestrator(txids, screener, collector, optimizer,
		codec, executor, allocator, store, publisher, alerter, auditLog, logger)

	srv := server.New(fmt.Sprintf(":%d", cfg.Server.Port), orchestrator,
		cfg.Server.APIKey, cfg.Server.WebhookSecret, auditLog, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("gateway started",
		"port", cfg.Server.Port,
		"venues", cfg.Venues.Names,
		"chains", registry.Chains(),
		"fraud_engine", cfg.Fraud.Engine,
	)
	auditLog.Event("Gateway", "gateway started on port %d", cfg.Server.Port)

	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newRandomSource(cfg *config.Config, auditLog *audit.Logger, logger *slog.Logger) rng.Source {
	if cfg.Quantum.APIKey == "" {
		logger.Info("no quantum rng configured, using local CSPRNG")
		return rng.LocalSource{}
	}
	return rng.NewQuantumSource(cfg.Quantum.URL, cfg.Quantum.APIKey,
		cfg.Quantum.Timeout, auditLog, logger)
}

func newScreener(cfg *config.Config, source rng.Source) fraud.Screener {
	if cfg.Fraud.Engine == "model" {
		return fraud.NewModelScreener(fraud.NewLogisticModel(), source)
	}
	return fraud.NewRuleScreener(source)
}

func newIdempotencyStore(cfg *config.Config, logger *slog.Logger) (idempotency.Store, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Info("no redis configured, idempotency is per-process")
		return idempotency.NewMemoryStore(), func() {}, nil
	}
	store, err := idempotency.NewRedisStore(cfg.Redis.URL, idempotencyTTL)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured, completion events stay in-process")
		return events.NewMemoryPublisher(), func() {}
	}
	p := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	return p, func() { _ = p.Close() }
}

func newAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}
