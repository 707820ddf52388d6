package main

import (
	"context"
	"fmt"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/client"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/config"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/handler"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/server"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/worker"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/idgen"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// core holds what every command needs: the database and the services that
// only depend on it.
type core struct {
	db        *gorm.DB
	publisher event.Publisher

	cartRepo           repository.CartRepository
	orderRepo          repository.OrderRepository
	referenceRepo      repository.ReferenceRepository
	ledgerRepo         repository.LedgerRepository
	paymentAttemptRepo repository.PaymentAttemptRepository

	settings service.SettingsService
	ledger   service.LedgerService
	unlock   service.UnlockService
}

func newCore(cfg *config.Config) (*core, error) {
	db, err := client.InitDBClient(cfg)
	if err != nil {
		return nil, err
	}

	publisher := event.NewNopPublisher()
	if cfg.RabbitMQ.URL != "" {
		publisher, err = event.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, err
		}
	} else {
		log.L.Warn("RABBITMQ_URL not set, domain events are dropped")
	}

	c := &core{
		db:                 db,
		publisher:          publisher,
		cartRepo:           repository.NewCartRepository(db),
		orderRepo:          repository.NewOrderRepository(db),
		referenceRepo:      repository.NewReferenceRepository(db),
		ledgerRepo:         repository.NewLedgerRepository(db),
		paymentAttemptRepo: repository.NewPaymentAttemptRepository(db),
	}
	c.settings = service.NewSettingsService(repository.NewSettingsRepository(db), cfg.Compliance.HomeJurisdiction)
	c.ledger = service.NewLedgerService(db, c.ledgerRepo)
	c.unlock = service.NewUnlockService(db, c.ledgerRepo, c.ledger, c.settings)
	return c, nil
}

func (c *core) Close() {
	c.publisher.Close()
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// app is the full HTTP application.
type app struct {
	*core
	rdb    *redis.Client
	server *server.Server
	worker *worker.UnlockWorker
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	c, err := newCore(cfg)
	if err != nil {
		return nil, err
	}

	codes, err := idgen.New(cfg.IDGen.NodeID, cfg.IDGen.Salt)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("id generator: %w", err)
	}

	rdb, err := client.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		c.Close()
		return nil, err
	}
	gateway := client.NewPaypalGateway(&cfg.Paypal, client.NewRedisSessionStore(rdb, cfg.Paypal.SessionTTL))

	compliance := service.NewComplianceService(c.referenceRepo, c.settings)
	composer := service.NewComposerService(c.db, c.cartRepo, c.orderRepo, c.referenceRepo, c.settings, codes, c.publisher)
	cartService := service.NewCartService(c.db, c.cartRepo, c.referenceRepo)
	checkoutService := service.NewCheckoutService(
		c.db,
		gateway,
		composer,
		compliance,
		c.ledger,
		c.settings,
		c.orderRepo,
		c.paymentAttemptRepo,
		repository.NewWebhookEventRepository(c.db),
		codes,
		c.publisher,
		cfg.Platform.UserID,
	)
	orderService := service.NewOrderService(c.db, c.orderRepo, c.paymentAttemptRepo, c.ledgerRepo, c.ledger, c.publisher)
	payoutService := service.NewPayoutService(c.db, repository.NewPayoutRepository(c.db), c.ledger, c.publisher)
	invoiceService := service.NewInvoiceService(repository.NewInvoiceRepository(c.db), c.orderRepo, c.referenceRepo, c.settings, cfg.Platform.Name)

	srv := server.NewServer(&server.Handlers{
		Cart:     handler.NewCartHandler(cartService),
		Checkout: handler.NewCheckoutHandler(checkoutService, cfg.BaseURL),
		Order:    handler.NewOrderHandler(orderService),
		Wallet:   handler.NewWalletHandler(c.ledger, payoutService),
		Invoice:  handler.NewInvoiceHandler(invoiceService, orderService),
		Settings: handler.NewSettingsHandler(c.settings, c.unlock),
	}, []byte(cfg.Jwt.Secret))

	log.L.Info("application wired",
		zap.String("environment", cfg.Environment.Name),
		zap.String("paypal", cfg.Paypal.BaseApiURL),
		zap.Bool("unlock_worker", cfg.Unlock.Enabled),
	)

	return &app{
		core:   c,
		rdb:    rdb,
		server: srv,
		worker: worker.NewUnlockWorker(c.unlock, cfg.Unlock.Interval),
	}, nil
}

func (a *app) Close() {
	if err := a.rdb.Close(); err != nil {
		log.L.Warn("close redis", zap.Error(err))
	}
	a.core.Close()
}
