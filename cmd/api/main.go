package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tindahub/marketplace-backend/api/routes"
	"github.com/tindahub/marketplace-backend/internal/activitylog"
	"github.com/tindahub/marketplace-backend/internal/cart"
	"github.com/tindahub/marketplace-backend/internal/checkout"
	"github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/internal/payments"
	"github.com/tindahub/marketplace-backend/internal/payouts"
	"github.com/tindahub/marketplace-backend/internal/refunds"
	"github.com/tindahub/marketplace-backend/internal/vouchers"
	gatewaywebhook "github.com/tindahub/marketplace-backend/internal/webhooks/gateway"
	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/metrics"
	"github.com/tindahub/marketplace-backend/pkg/migrate"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)
	payoutMetrics := metrics.NewPayoutMetrics(registry)

	gormDB := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	activity, err := activitylog.NewRecorder(activitylog.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create activity recorder", err)
		os.Exit(1)
	}

	voucherService, err := vouchers.NewService(vouchers.NewRepository(gormDB), outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.NewRepository(gormDB), dbClient, outboxSvc, voucherService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	refundService, err := refunds.NewService(refunds.NewRepository(gormDB), dbClient, outboxSvc, orderService, voucherService, activity, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create refund service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(gormDB), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.NewRepository(gormDB), dbClient, voucherService, outboxSvc, cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	payoutRepo := payouts.NewRepository(gormDB)
	documents, closeDocuments := payouts.DocumentsFromConfig(context.Background(), cfg, payoutRepo, payoutMetrics, logg)
	defer closeDocuments()
	payoutService, err := payouts.NewService(payoutRepo, dbClient, outboxSvc, activity, documents, payoutMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	processor, err := payments.NewProcessor(payments.NewRepository(gormDB), dbClient, orderService, activity, webhookMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment processor", err)
		os.Exit(1)
	}

	verifier, err := gatewaywebhook.NewVerifier(cfg.Gateway)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway signature verifier", err)
		os.Exit(1)
	}
	guard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Gateway.IdempotencyTTL, "gateway-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry, routes.Services{
			Cart:     cartService,
			Checkout: checkoutService,
			Orders:   orderService,
			Refunds:  refundService,
			Vouchers: voucherService,
			Payouts:  payoutService,
			Payments: processor,
		}, verifier, guard),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
