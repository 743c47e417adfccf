package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tindahub/marketplace-backend/api/controllers"
	cartcontrollers "github.com/tindahub/marketplace-backend/api/controllers/cart"
	checkoutcontrollers "github.com/tindahub/marketplace-backend/api/controllers/checkout"
	ordercontrollers "github.com/tindahub/marketplace-backend/api/controllers/orders"
	payoutcontrollers "github.com/tindahub/marketplace-backend/api/controllers/payouts"
	refundcontrollers "github.com/tindahub/marketplace-backend/api/controllers/refunds"
	vouchercontrollers "github.com/tindahub/marketplace-backend/api/controllers/vouchers"
	webhookcontrollers "github.com/tindahub/marketplace-backend/api/controllers/webhooks"
	"github.com/tindahub/marketplace-backend/api/middleware"
	"github.com/tindahub/marketplace-backend/internal/cart"
	"github.com/tindahub/marketplace-backend/internal/checkout"
	"github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/internal/payouts"
	"github.com/tindahub/marketplace-backend/internal/refunds"
	"github.com/tindahub/marketplace-backend/internal/vouchers"
	gatewaywebhook "github.com/tindahub/marketplace-backend/internal/webhooks/gateway"
	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/redis"
)

// RedisStore is the part of the redis client the HTTP layer uses for replay,
// throttling and readiness.
type RedisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services groups the domain services mounted by the router.
type Services struct {
	Cart     cart.Service
	Checkout checkout.Service
	Orders   orders.Service
	Refunds  refunds.Service
	Vouchers vouchers.Service
	Payouts  payouts.Service
	Payments webhookcontrollers.PaymentEventHandler
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisStore,
	gatherer prometheus.Gatherer,
	svcs Services,
	gatewayVerifier *gatewaywebhook.Verifier,
	gatewayGuard *gatewaywebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.Window,
		cfg.RateLimit.CheckoutPerIP,
		cfg.RateLimit.CheckoutPerUser,
	)
	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.RateLimit.Window,
		cfg.RateLimit.WebhookPerIP,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, redisClient, logg)).
			Post("/gateway", webhookcontrollers.GatewayWebhook(svcs.Payments, gatewayVerifier, gatewayGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(svcs.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(svcs.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(svcs.Cart, logg))
		})
		r.With(middleware.RateLimit(checkoutPolicy, redisClient, logg)).
			Post("/checkout", checkoutcontrollers.PlaceOrder(svcs.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svcs.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svcs.Orders, logg))
			r.Get("/{orderId}/history", ordercontrollers.History(svcs.Orders, logg))
			// ownership and seller-or-admin rules live in the service
			r.Patch("/{orderId}", ordercontrollers.Update(svcs.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(svcs.Orders, logg))
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", refundcontrollers.List(svcs.Refunds, logg))
			r.Post("/", refundcontrollers.Create(svcs.Refunds, logg))
			r.Get("/{requestId}", refundcontrollers.Detail(svcs.Refunds, logg))
		})

		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/", vouchercontrollers.List(svcs.Vouchers, logg))
			r.Post("/", vouchercontrollers.Create(svcs.Vouchers, logg))
			r.Post("/validate", vouchercontrollers.Validate(svcs.Vouchers, logg))
			r.Get("/{voucherId}", vouchercontrollers.Detail(svcs.Vouchers, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/invoices", payoutcontrollers.ListInvoices(svcs.Payouts, logg))
			r.Get("/invoices/{invoiceId}", payoutcontrollers.InvoiceDetail(svcs.Payouts, logg))
			r.Get("/adjustments", payoutcontrollers.ListAdjustments(svcs.Payouts, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRoleSystemAdmin))

			r.Post("/refunds/{requestId}/approve", refundcontrollers.Approve(svcs.Refunds, logg))
			r.Post("/refunds/{requestId}/reject", refundcontrollers.Reject(svcs.Refunds, logg))

			r.Route("/payouts", func(r chi.Router) {
				r.Post("/generate", payoutcontrollers.Generate(svcs.Payouts, logg))
				r.Post("/invoices/{invoiceId}/mark-paid", payoutcontrollers.MarkPaid(svcs.Payouts, logg))
				r.Post("/invoices/{invoiceId}/revert", payoutcontrollers.Revert(svcs.Payouts, logg))
				r.Post("/adjustments", payoutcontrollers.CreateAdjustment(svcs.Payouts, logg))
				r.Get("/settings", payoutcontrollers.GetSettings(svcs.Payouts, logg))
				r.Put("/settings", payoutcontrollers.UpdateSettings(svcs.Payouts, logg))
			})
			r.Put("/organizations/{organizationId}/platform-fee", payoutcontrollers.UpdatePlatformFee(svcs.Payouts, logg))
		})
	})

	return r
}
