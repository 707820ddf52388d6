package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testPlatformUserID uint64 = 1
	testBuyerID        uint64 = 100
	vendorA            uint64 = 201
	vendorB            uint64 = 202
)

type fixture struct {
	db          *gorm.DB
	gateway     *fakeGateway
	events      *event.Recorder
	ledgerRepo  repository.LedgerRepository
	invoiceRepo repository.InvoiceRepository

	settings   SettingsService
	ledger     LedgerService
	composer   ComposerService
	compliance ComplianceService
	checkout   CheckoutService
	orders     OrderService
	unlock     UnlockService
	payouts    PayoutService
	invoices   InvoiceService
	carts      CartService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection: transactions queue behind each other like row locks would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))

	codes, err := idgen.New(1, "test-salt")
	require.NoError(t, err)

	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	paymentAttemptRepo := repository.NewPaymentAttemptRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	f := &fixture{
		db:          db,
		gateway:     newFakeGateway(),
		events:      event.NewRecorder(),
		ledgerRepo:  ledgerRepo,
		invoiceRepo: invoiceRepo,
	}
	f.settings = NewSettingsService(settingsRepo, "UAE")
	f.ledger = NewLedgerService(db, ledgerRepo)
	f.compliance = NewComplianceService(referenceRepo, f.settings)
	f.composer = NewComposerService(db, cartRepo, orderRepo, referenceRepo, f.settings, codes, f.events)
	f.checkout = NewCheckoutService(db, f.gateway, f.composer, f.compliance, f.ledger, f.settings,
		orderRepo, paymentAttemptRepo, webhookEventRepo, codes, f.events, testPlatformUserID)
	f.orders = NewOrderService(db, orderRepo, paymentAttemptRepo, ledgerRepo, f.ledger, f.events)
	f.unlock = NewUnlockService(db, ledgerRepo, f.ledger, f.settings)
	f.payouts = NewPayoutService(db, payoutRepo, f.ledger, f.events)
	f.invoices = NewInvoiceService(invoiceRepo, orderRepo, referenceRepo, f.settings, "Marketplace Platform")
	f.carts = NewCartService(db, cartRepo, referenceRepo)

	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func u64(v uint64) *uint64 {
	return &v
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func (f *fixture) vendor(t *testing.T, userID uint64, country string, commission *decimal.Decimal) *model.Vendor {
	t.Helper()
	v := &model.Vendor{
		UserID:            userID,
		CompanyName:       fmt.Sprintf("Vendor %d", userID),
		Country:           country,
		CommissionPercent: commission,
	}
	require.NoError(t, f.db.Create(v).Error)
	return v
}

func (f *fixture) category(t *testing.T, parentID *uint64, controlled bool) *model.Category {
	t.Helper()
	c := &model.Category{Name: uuid.NewString()[:8], ParentID: parentID, Controlled: controlled}
	require.NoError(t, f.db.Create(c).Error)
	return c
}

type productOpt func(p *model.Product)

func withCategory(id uint64) productOpt {
	return func(p *model.Product) { p.CategoryID = &id }
}

func withCommission(pct string) productOpt {
	return func(p *model.Product) { p.CommissionPercent = decPtr(pct) }
}

func withPacking(amount string) productOpt {
	return func(p *model.Product) { p.PackingCharge = dec(amount) }
}

func (f *fixture) product(t *testing.T, vendorID *uint64, price string, opts ...productOpt) *model.Product {
	t.Helper()
	p := &model.Product{
		VendorID:      vendorID,
		Name:          "Product " + uuid.NewString()[:6],
		SKU:           uuid.NewString()[:10],
		BasePrice:     dec(price),
		PackingCharge: decimal.Zero,
		Currency:      "USD",
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) address(t *testing.T, userID uint64, country string) *model.Address {
	t.Helper()
	a := &model.Address{UserID: userID, Name: "Buyer", Line1: "1 Test Street", City: "Test", Country: country}
	require.NoError(t, f.db.Create(a).Error)
	return a
}

type line struct {
	product  *model.Product
	quantity int32
}

func (f *fixture) cart(t *testing.T, userID uint64, lines ...line) *model.Cart {
	t.Helper()
	c := &model.Cart{UserID: &userID, Status: model.CartStatusActive}
	require.NoError(t, f.db.Create(c).Error)
	for _, l := range lines {
		require.NoError(t, f.db.Create(&model.CartItem{CartID: c.ID, ProductID: l.product.ID, Quantity: l.quantity}).Error)
	}
	return c
}

func (f *fixture) countOrders(t *testing.T, groupID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Order{}).Where("order_group_id = ?", groupID).Count(&n).Error)
	return n
}

func (f *fixture) balance(t *testing.T, userID uint64) *Balance {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// fakeGateway is an in-memory hosted checkout.
type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	sessions  map[string]*GatewaySession
	requests  []CreateSessionRequest
	verifyErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]*GatewaySession)}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CreateSessionRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := fmt.Sprintf("SESSION-%d", g.seq)
	g.sessions[id] = &GatewaySession{
		ID:          id,
		Status:      "CREATED",
		AmountTotal: req.Total,
		Currency:    req.Currency,
		Metadata:    req.Metadata,
		Raw:         []byte(fmt.Sprintf(`{"id":%q,"status":"CREATED"}`, id)),
	}
	g.requests = append(g.requests, req)
	return &CheckoutSession{ID: id, RedirectURL: "https://pay.example.test/" + id}, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, sessionID string) (*GatewaySession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (g *fakeGateway) VerifyWebhookSignature(context.Context, http.Header, []byte) error {
	return g.verifyErr
}

func (g *fakeGateway) pay(t *testing.T, sessionID string) {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	require.True(t, ok, "unknown session %s", sessionID)
	session.Paid = true
	session.Status = "COMPLETED"
	session.PaymentIntent = "CAPTURE-" + sessionID
	session.PayerEmail = "buyer@example.test"
	session.Raw = []byte(fmt.Sprintf(`{"id":%q,"status":"COMPLETED"}`, sessionID))
}
