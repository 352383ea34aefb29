package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fueldrop-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/fueldrop-backend/api/controllers/orders"
	"github.com/angelmondragon/fueldrop-backend/api/middleware"
	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/fueldrop-backend/pkg/redis"
)

// RateLimiter counts requests in fixed windows.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps are the services and stores the router dispatches to.
type Deps struct {
	Orders      ordercontrollers.OrderService
	Dispatch    ordercontrollers.Dispatcher
	Payments    controllers.PaymentProcessor
	Wallets     controllers.WalletReader
	Drivers     controllers.AvailabilitySetter
	Realtime    controllers.SocketServer
	Idempotency pkgredis.IdempotencyStore
	RateLimiter RateLimiter
	Ready       map[string]controllers.Pinger
	Metrics     http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.ActorLimit, true)
	locationPolicy := middleware.NewRateLimitPolicy("location", time.Minute, cfg.RateLimit.LocationPerMin, false)

	customer := middleware.RequireRole(logg, enums.ActorRoleCustomer)
	driver := middleware.RequireRole(logg, enums.ActorRoleDriver)
	station := middleware.RequireRole(logg, enums.ActorRoleStation)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, cfg.RateLimit.IdempotencyTTL, logg))
		r.Use(middleware.RateLimit(apiPolicy, deps.RateLimiter, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(customer).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.With(driver).Get("/available", ordercontrollers.Available(deps.Dispatch, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.Patch("/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.With(driver).Post("/accept", ordercontrollers.Accept(deps.Dispatch, logg))
				r.With(station).Post("/assign", ordercontrollers.Assign(deps.Dispatch, logg))
				r.With(driver, middleware.RateLimit(locationPolicy, deps.RateLimiter, logg)).
					Post("/driver-location", ordercontrollers.DriverLocation(deps.Orders, logg))
			})
		})

		r.With(customer).Post("/payments/process", controllers.ProcessPayment(deps.Payments, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.Wallet(deps.Wallets, logg))
			r.Get("/transactions", controllers.WalletTransactions(deps.Wallets, logg))
		})

		r.With(driver).Post("/drivers/me/availability", controllers.DriverAvailability(deps.Drivers, logg))

		r.Get("/ws", controllers.RealtimeSocket(deps.Realtime, logg))
	})

	return r
}
