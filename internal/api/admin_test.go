package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"

	"giftspa/server/internal/models"
	"giftspa/server/internal/testutil"
	"giftspa/server/internal/utils"
)

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateAdmin(t, s.db, "manager@spa.kz", "password-123", models.RoleManager, s.company.ID)

	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "manager@spa.kz", "password": "wrong-password",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d, want 401", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "Manager@Spa.kz", "password": "password-123",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeJSON(t, w, &login)

	w = s.do(t, http.MethodGet, "/api/auth/me", nil, login.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("me: status %d", w.Code)
	}
	var me map[string]string
	decodeJSON(t, w, &me)
	if me["role"] != models.RoleManager || me["companyId"] != s.company.ID {
		t.Errorf("unexpected profile: %v", me)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status %d, want %d", w.Code, tt.want)
			}
		})
	}

	manager := s.token(t, "m@spa.kz", models.RoleManager, s.company.ID)
	if w := s.do(t, http.MethodPost, "/api/admin/catalog/invalidate", nil, manager); w.Code != http.StatusForbidden {
		t.Errorf("manager invalidating catalog: status %d, want 403", w.Code)
	}
	admin := s.token(t, "a@spa.kz", models.RoleAdmin, "")
	if w := s.do(t, http.MethodPost, "/api/admin/catalog/invalidate", nil, admin); w.Code != http.StatusOK {
		t.Errorf("admin invalidating catalog: status %d, want 200", w.Code)
	}
}

func TestAdminOrders_ListAndExport(t *testing.T) {
	s := newTestServer(t)
	other := testutil.CreateCompany(t, s.db, "Spa Астана")

	for _, companyID := range []string{s.company.ID, s.company.ID, other.ID} {
		if w := s.do(t, http.MethodPost, "/api/orders", storefrontOrder(companyID), ""); w.Code != http.StatusCreated {
			t.Fatalf("create order: status %d, body %s", w.Code, w.Body.String())
		}
	}

	manager := s.token(t, "m@spa.kz", models.RoleManager, other.ID)
	w := s.do(t, http.MethodGet, "/api/admin/orders", nil, manager)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var list struct {
		Orders []models.Order `json:"orders"`
		Total  int64          `json:"total"`
		Limit  int            `json:"limit"`
	}
	decodeJSON(t, w, &list)
	if list.Total != 1 || len(list.Orders) != 1 || list.Orders[0].CompanyID != other.ID {
		t.Errorf("manager list: total %d, orders %d", list.Total, len(list.Orders))
	}
	if list.Limit != 100 {
		t.Errorf("default limit = %d, want 100", list.Limit)
	}

	w = s.do(t, http.MethodGet, "/api/admin/orders?companyId="+s.company.ID, nil, manager)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign company filter: status %d, want 403", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/admin/orders?from=yesterday", nil, manager)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date: status %d, want 400", w.Code)
	}

	admin := s.token(t, "a@spa.kz", models.RoleAdmin, "")
	today := time.Now().UTC().Format("2006-01-02")
	w = s.do(t, http.MethodGet, "/api/admin/orders?from="+today+"&to="+today, nil, admin)
	decodeJSON(t, w, &list)
	if list.Total != 3 {
		t.Errorf("admin list for today: total %d, want 3", list.Total)
	}

	w = s.do(t, http.MethodGet, "/api/admin/orders/export", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("export: status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Заказы")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("export rows = %d, want header + 3", len(rows))
	}
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateProcedure(t, s.db, s.company.ID, "Массаж", 20000, 10)

	w := s.do(t, http.MethodGet, "/api/companies", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("companies: status %d", w.Code)
	}
	var companies struct {
		Companies []models.Company `json:"companies"`
	}
	decodeJSON(t, w, &companies)
	if len(companies.Companies) != 1 {
		t.Fatalf("companies = %d, want 1", len(companies.Companies))
	}
	if strings.Contains(w.Body.String(), testutil.TestSecret) {
		t.Errorf("company payload leaks OneVision secret")
	}

	w = s.do(t, http.MethodGet, "/api/companies/"+s.company.ID+"/services", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("services: status %d", w.Code)
	}
	var catalog struct {
		Services []map[string]interface{} `json:"services"`
	}
	decodeJSON(t, w, &catalog)
	if len(catalog.Services) != 1 || catalog.Services[0]["final_price"].(float64) != 18000 {
		t.Errorf("unexpected services: %v", catalog.Services)
	}

	if w := s.do(t, http.MethodGet, "/api/companies/unknown/services", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown company: status %d, want 404", w.Code)
	}
}

func TestRecordUtmVisit(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/utm/visits", map[string]string{
		"visitorId":    "v-1",
		"utm_source":   "instagram",
		"utm_campaign": "march8",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	if n := testutil.Count(t, s.db, &models.UtmVisit{}); n != 1 {
		t.Errorf("visits = %d, want 1", n)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]interface{}
	decodeJSON(t, w, &body)
	if body["database"] != "ok" {
		t.Errorf("database = %v", body["database"])
	}
	if body["redis"] != "disabled" {
		t.Errorf("redis = %v, want disabled", body["redis"])
	}
}

func TestHealth_RedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	router := NewRouter(RouterDeps{DB: testutil.NewTestDB(t), Redis: utils.NewRedisClient(client)})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	// Без Redis сервис продолжает работать
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	var body map[string]interface{}
	decodeJSON(t, w, &body)
	if body["redis"] != "unavailable" {
		t.Errorf("redis = %v, want unavailable", body["redis"])
	}
}

func TestQueryTokenOnlyForWebSocket(t *testing.T) {
	s := newTestServer(t)
	manager := s.token(t, "m@spa.kz", models.RoleManager, s.company.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders?token="+manager, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("token in query on REST route: status %d, want 401", w.Code)
	}

	if w := s.do(t, http.MethodGet, "/api/admin/orders", nil, manager); w.Code != http.StatusOK {
		t.Errorf("Bearer header: status %d, want 200", w.Code)
	}
}

func TestAdminWebSocket_CompanyScope(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.token(t, "m@spa.kz", models.RoleManager, s.company.ID)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/ws?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.GetClientsCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.hub.GetClientsCount() != 1 {
		t.Fatalf("clients = %d, want 1", s.hub.GetClientsCount())
	}

	s.hub.BroadcastEvent("another-company", []byte(`{"type":"foreign"}`))
	s.hub.BroadcastEvent(s.company.ID, []byte(`{"type":"order.created"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var event map[string]string
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("bad message %q: %v", msg, err)
	}
	if event["type"] != "order.created" {
		t.Errorf("got event %q, foreign company event must be filtered", event["type"])
	}
}

func TestAdminWebSocket_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}
}
