package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"giftspa/server/internal/models"
	"giftspa/server/internal/testutil"
)

// fakeFulfiller считает вызовы выпуска сертификата
type fakeFulfiller struct {
	calls int32
	err   error
}

func (f *fakeFulfiller) Fulfill(ctx context.Context, orderID string) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func (f *fakeFulfiller) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

// recordingSink собирает опубликованные события
type recordingSink struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type testEnv struct {
	db           *gorm.DB
	company      *models.Company
	events       *EventPublisher
	certificates *CertificateService
	payments     *PaymentService
	orders       *OrderService
	fulfiller    *fakeFulfiller
	gateway      *OneVisionClient
}

// newTestEnv собирает сервисы на SQLite. Если fulfiller == nil, используется fakeFulfiller
func newTestEnv(t *testing.T, gatewayURL string, fulfiller Fulfiller) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	company := testutil.CreateCompany(t, db, "Spa Алматы")

	if gatewayURL == "" {
		gatewayURL = "http://127.0.0.1:1"
	}
	env := &testEnv{
		db:      db,
		company: company,
		events:  NewEventPublisher(),
		gateway: NewOneVisionClient(gatewayURL),
	}
	if fulfiller == nil {
		env.fulfiller = &fakeFulfiller{}
		fulfiller = env.fulfiller
	}
	env.certificates = NewCertificateService(db, env.events)
	env.payments = NewPaymentService(db, env.gateway, fulfiller, env.events, "https://api.example.kz", "https://spa.example.kz")
	env.orders = NewOrderService(db, NewClientService(db), env.certificates, NewUtmService(db), env.payments, env.events, 180)
	return env
}

func giftOrderInput(companyID string) CreateOrderInput {
	return CreateOrderInput{
		CompanyID:      companyID,
		Type:           models.CertificateTypeGift,
		Amount:         25000,
		RecipientName:  "Айгерим",
		SenderName:     "Дамир",
		Client:         ClientInput{FirstName: "Дамир", Email: "Damir@Example.kz", Phone: "+7 701 123 45 67"},
		DeliveryMethod: models.DeliveryDownload,
	}
}

// createOrder заказ через витринный сценарий (платеж pending)
func (e *testEnv) createOrder(t *testing.T, in CreateOrderInput) *CreatedOrder {
	t.Helper()
	created, err := e.orders.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return created
}

func newJSONServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}
