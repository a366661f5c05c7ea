package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
	"giftspa/server/internal/testutil"
)

const testJWTSecret = "test-jwt-secret"

type testServer struct {
	db       *gorm.DB
	company  *models.Company
	router   *gin.Engine
	auth     *services.AuthService
	hub      *Hub
	gateway  *services.OneVisionClient
	payments *services.PaymentService
	certs    *services.CertificateService
}

// newTestServer полный роутер на SQLite с заглушкой OneVision, которая подписывает ответы
// секретом тестового филиала
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	company := testutil.CreateCompany(t, db, "Spa Алматы")

	signer := services.NewOneVisionClient("")
	ov := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope services.OneVisionEnvelope
		_ = json.NewDecoder(r.Body).Decode(&envelope)
		var req map[string]interface{}
		_ = services.DecodePayload(envelope.Data, &req)
		resp, _ := signer.SignPayload(map[string]interface{}{
			"payment_id":       "pv-" + req["order_id"].(string),
			"payment_page_url": "https://pay.onevision.kz/p/1",
			"payment_status":   "new",
		}, testutil.TestSecret)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ov.Close)

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	storage, err := services.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}

	events := services.NewEventPublisher(hub)
	auth := services.NewAuthService(db, testJWTSecret)
	certs := services.NewCertificateService(db, events)
	fulfillment := services.NewFulfillmentService(db, services.NewCertificateRenderer(""), storage, nil, nil, events)
	gateway := services.NewOneVisionClient(ov.URL)
	payments := services.NewPaymentService(db, gateway, fulfillment, events, "https://api.example.kz", "https://spa.example.kz")
	utm := services.NewUtmService(db)
	orders := services.NewOrderService(db, services.NewClientService(db), certs, utm, payments, events, 180)

	router := NewRouter(RouterDeps{
		DB:            db,
		Orders:        orders,
		Payments:      payments,
		Certificates:  certs,
		Storage:       storage,
		Auth:          auth,
		Catalog:       services.NewCatalogCache(db, nil),
		Utm:           utm,
		Hub:           hub,
		PublicBaseURL: "https://api.example.kz",
		FrontendURL:   "https://spa.example.kz",
	})

	return &testServer{
		db:       db,
		company:  company,
		router:   router,
		auth:     auth,
		hub:      hub,
		gateway:  gateway,
		payments: payments,
		certs:    certs,
	}
}

// do выполняет запрос через роутер. body сериализуется в JSON, если не nil
func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// token выпускает JWT для нового пользователя админки
func (s *testServer) token(t *testing.T, email, role, companyID string) string {
	t.Helper()
	user := testutil.CreateAdmin(t, s.db, email, "password-123", role, companyID)
	token, _, err := s.auth.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return token
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func storefrontOrder(companyID string) map[string]interface{} {
	return map[string]interface{}{
		"companyId":      companyID,
		"type":           "gift",
		"amount":         25000,
		"recipientName":  "Айгерим",
		"deliveryMethod": "download",
		"client": map[string]interface{}{
			"firstName": "Дамир",
			"email":     "damir@example.kz",
			"phone":     "+7 701 123 45 67",
		},
	}
}
