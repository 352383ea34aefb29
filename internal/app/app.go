package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fueldrop-backend/internal/dispatch"
	"github.com/angelmondragon/fueldrop-backend/internal/drivers"
	"github.com/angelmondragon/fueldrop-backend/internal/ledger"
	"github.com/angelmondragon/fueldrop-backend/internal/loadshedding"
	"github.com/angelmondragon/fueldrop-backend/internal/orders"
	"github.com/angelmondragon/fueldrop-backend/internal/payments"
	"github.com/angelmondragon/fueldrop-backend/internal/pricing"
	"github.com/angelmondragon/fueldrop-backend/internal/realtime"
	"github.com/angelmondragon/fueldrop-backend/internal/stations"
	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	"github.com/angelmondragon/fueldrop-backend/pkg/db"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/metrics"
	"github.com/angelmondragon/fueldrop-backend/pkg/redis"
	"github.com/angelmondragon/fueldrop-backend/pkg/retry"
	"github.com/angelmondragon/fueldrop-backend/pkg/square"
)

// Services is the wired application graph shared by the api and cron binaries.
type Services struct {
	Orders   orders.Service
	Dispatch dispatch.Service
	Payments payments.Service
	Ledger   ledger.Service
	Drivers  drivers.Service
	Endpoint *realtime.Endpoint
	// Relay is set when events fan out across instances through redis.
	Relay *realtime.RedisRelay
}

// Build wires every domain service on top of the shared database and redis clients.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*Services, error) {
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(realtime.HubOptions{
		SendBuffer:    cfg.Realtime.SendBuffer,
		FanoutWorkers: cfg.Realtime.FanoutWorkers,
		Logger:        logg,
		Metrics:       metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer),
	})

	out := &Services{}
	var publisher realtime.Publisher = hub
	if cfg.FeatureFlags.RedisRelay {
		relay, err := realtime.NewRedisRelay(redisClient, hub, cfg.Realtime.Channel, logg)
		if err != nil {
			return nil, err
		}
		publisher = relay
		out.Relay = relay
	}

	cutover, err := cfg.Pricing.VATCutoverDate()
	if err != nil {
		return nil, err
	}
	engine, err := pricing.NewEngine(pricing.Config{
		VATCutover:        cutover,
		BaseDeliveryFee:   cfg.Pricing.BaseDeliveryFee,
		MinimumOrderValue: cfg.Pricing.MinimumOrderValue,
		AffluentAreas:     cfg.Pricing.AffluentAreas,
		StressedAreas:     cfg.Pricing.StressedAreas,
	})
	if err != nil {
		return nil, err
	}

	stationSvc, err := stations.NewService(stations.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return nil, err
	}
	driverSvc, err := drivers.NewService(drivers.NewRepository(dbClient.DB()), publisher, logg)
	if err != nil {
		return nil, err
	}

	stages, err := loadSheddingProvider(cfg.LoadShedding, redisClient, logg)
	if err != nil {
		return nil, err
	}

	providers, err := paymentProviders(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	policy := retry.Policy{Attempts: cfg.Payments.MaxAttempts, Timeout: cfg.Payments.Timeout}
	refunder, err := payments.NewRefunder(providers, policy, cfg.Payments.Currency, orderMetrics, logg)
	if err != nil {
		return nil, err
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:         orderRepo,
		Tx:           dbClient,
		Numbers:      orders.SequenceNumbers{},
		Pricing:      engine,
		Stations:     stationSvc,
		Ledger:       ledgerSvc,
		Drivers:      driverSvc,
		LoadShedding: stages,
		Refunder:     refunder,
		Publisher:    publisher,
		Metrics:      orderMetrics,
		Config:       cfg.Orders,
		AllowEFT:     cfg.FeatureFlags.AllowEFT,
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}

	dispatchSvc, err := dispatch.NewService(dispatch.Params{
		Repo:      orderRepo,
		Tx:        dbClient,
		Orders:    orderSvc,
		Drivers:   driverSvc,
		Publisher: publisher,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	paymentSvc, err := payments.NewService(payments.Options{
		Orders:    orderSvc,
		Providers: providers,
		Refunder:  refunder,
		Policy:    policy,
		Currency:  cfg.Payments.Currency,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := realtime.NewEndpoint(hub, orderSvc, cfg.Realtime, cfg.App.CORSOrigins, logg)
	if err != nil {
		return nil, err
	}

	out.Orders = orderSvc
	out.Dispatch = dispatchSvc
	out.Payments = paymentSvc
	out.Ledger = ledgerSvc
	out.Drivers = driverSvc
	out.Endpoint = endpoint
	return out, nil
}

// paymentProviders registers Square for cards when credentials are present
// and the bank-reference provider for EFT.
func paymentProviders(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Providers, error) {
	providers := payments.Providers{}
	if cfg.FeatureFlags.AllowEFT {
		providers[enums.PaymentMethodEFT] = payments.EFTProvider{}
	}
	if cfg.Square.AccessToken == "" {
		if cfg.App.IsProd() {
			return nil, fmt.Errorf("square credentials required in production")
		}
		logg.Warn(ctx, "square credentials missing, card payments disabled")
		return providers, nil
	}
	client, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, fmt.Errorf("square client: %w", err)
	}
	card, err := payments.NewSquareProvider(client)
	if err != nil {
		return nil, err
	}
	providers[enums.PaymentMethodCard] = card
	return providers, nil
}

func loadSheddingProvider(cfg config.LoadSheddingConfig, cache *redis.Client, logg *logger.Logger) (*loadshedding.Provider, error) {
	if cfg.BaseURL == "" {
		return loadshedding.NewProvider(nil, cache, cfg, logg), nil
	}
	client, err := loadshedding.NewClient(cfg.BaseURL, cfg.APIToken, loadshedding.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("load-shedding client: %w", err)
	}
	return loadshedding.NewProvider(client, cache, cfg, logg), nil
}
