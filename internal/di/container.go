package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulsefit/api/internal/payments"
	"github.com/pulsefit/api/internal/platform/config"
	"github.com/pulsefit/api/internal/repositories"
	"github.com/pulsefit/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart    services.CartService
	Payment services.PaymentService
	Plans   services.PlanService
	Billing services.BillingService
	System  services.SystemService
}

// Container wires repositories, services, and gateway infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Gateway      payments.Gateway
	Services     Services
}

// ContainerOption customises container construction.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	gateway payments.Gateway
	events  services.SettlementEventPublisher
	logger  func(ctx context.Context, event string, fields map[string]any)
	version string
}

// WithGateway supplies a pre-built payment gateway, overriding the Stripe
// client assembled from configuration.
func WithGateway(gateway payments.Gateway) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.gateway = gateway
	}
}

// WithEventPublisher wires the settlement event publisher used after confirmations.
func WithEventPublisher(events services.SettlementEventPublisher) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.events = events
	}
}

// WithLogger sets the structured event logger shared by the services.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// WithVersion records the build version reported by health endpoints.
func WithVersion(version string) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.version = version
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore registry; tests can supply in-memory registries and a stub gateway.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	var cc containerConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cc)
		}
	}

	gateway := cc.gateway
	if gateway == nil {
		var err error
		gateway, err = payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: cc.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe gateway: %w", err)
		}
	}

	svc, err := buildServices(cfg, reg, gateway, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Gateway:      gateway,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, gateway payments.Gateway, cc containerConfig) (Services, error) {
	var svc Services

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Pricer:   services.NewPricingEngine(),
		Clock:    time.Now,
		Logger:   cc.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:                  reg.Payments(),
		Carts:                     reg.Carts(),
		Subscriptions:             reg.Subscriptions(),
		Products:                  reg.Products(),
		Users:                     reg.Users(),
		Entitlements:              reg.Entitlements(),
		Gateway:                   gateway,
		Events:                    cc.events,
		Clock:                     time.Now,
		Logger:                    cc.logger,
		Currency:                  cfg.Billing.Currency,
		GatewayTimeout:            cfg.Billing.GatewayTimeout,
		EnablePerUserEntitlements: cfg.Features.EnablePerUserEntitlements,
		EnableTestPayments:        cfg.Features.EnableTestPayments,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payment = paymentSvc

	planSvc, err := services.NewPlanService(services.PlanServiceDeps{
		Subscriptions: reg.Subscriptions(),
		Clock:         time.Now,
		Logger:        cc.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build plan service: %w", err)
	}
	svc.Plans = planSvc

	billingSvc, err := services.NewBillingService(services.BillingServiceDeps{
		Payments:                  reg.Payments(),
		Entitlements:              reg.Entitlements(),
		Clock:                     time.Now,
		Logger:                    cc.logger,
		EnablePerUserEntitlements: cfg.Features.EnablePerUserEntitlements,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build billing service: %w", err)
	}
	svc.Billing = billingSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build: services.BuildInfo{
				Version:     cc.version,
				Environment: cfg.Security.Environment,
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
