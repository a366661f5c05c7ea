package api

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
	"giftspa/server/internal/testutil"
)

type createOrderResponse struct {
	Order          models.Order       `json:"order"`
	Certificate    models.Certificate `json:"certificate"`
	Payment        models.Payment     `json:"payment"`
	PaymentPageURL string             `json:"paymentPageUrl"`
}

func TestOrderFlow_DownloadAfterPayment(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", storefrontOrder(s.company.ID), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: status %d, body %s", w.Code, w.Body.String())
	}
	var created createOrderResponse
	decodeJSON(t, w, &created)
	if created.PaymentPageURL != "https://pay.onevision.kz/p/1" {
		t.Errorf("paymentPageUrl = %q", created.PaymentPageURL)
	}
	if created.Order.PaymentStatus != models.OrderPaymentPending {
		t.Errorf("payment_status = %s, want pending", created.Order.PaymentStatus)
	}

	download := "/api/certificates/" + created.Certificate.ID + "/download"
	if w := s.do(t, http.MethodGet, download, nil, ""); w.Code != http.StatusForbidden {
		t.Fatalf("download before payment: status %d, want 403", w.Code)
	}

	envelope, err := s.gateway.SignPayload(map[string]interface{}{
		"payment_id":     "pv-" + created.Order.ID,
		"order_id":       created.Order.ID,
		"payment_status": "withdraw",
	}, testutil.TestSecret)
	if err != nil {
		t.Fatalf("SignPayload failed: %v", err)
	}
	w = s.do(t, http.MethodPost, "/api/payments/onevision/callback", envelope, "")
	if w.Code != http.StatusOK {
		t.Fatalf("callback: status %d, body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, download, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("download after payment: status %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("body is not a PDF")
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, created.Certificate.Code) {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestOneVisionCallback_BadSignature(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", storefrontOrder(s.company.ID), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: status %d", w.Code)
	}
	var created createOrderResponse
	decodeJSON(t, w, &created)

	envelope, _ := s.gateway.SignPayload(map[string]interface{}{
		"order_id":       created.Order.ID,
		"payment_status": "withdraw",
	}, "not-the-secret")
	w = s.do(t, http.MethodPost, "/api/payments/onevision/callback", envelope, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", w.Code)
	}

	var payment models.Payment
	s.db.First(&payment, "id = ?", created.Payment.ID)
	if payment.Status != models.PaymentStatusPending {
		t.Errorf("payment status = %s, want pending", payment.Status)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		mutate func(body map[string]interface{})
		want   int
	}{
		{"missing company", func(b map[string]interface{}) { delete(b, "companyId") }, http.StatusBadRequest},
		{"bad type", func(b map[string]interface{}) { b["type"] = "voucher" }, http.StatusBadRequest},
		{"bad phone", func(b map[string]interface{}) {
			b["client"] = map[string]interface{}{"firstName": "A", "phone": "12"}
		}, http.StatusBadRequest},
		{"procedure without services", func(b map[string]interface{}) { b["type"] = "procedure" }, http.StatusBadRequest},
		{"unknown company", func(b map[string]interface{}) { b["companyId"] = "nope" }, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := storefrontOrder(s.company.ID)
			tt.mutate(body)
			if w := s.do(t, http.MethodPost, "/api/orders", body, ""); w.Code != tt.want {
				t.Errorf("status %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
	if n := testutil.Count(t, s.db, &models.Order{}); n != 0 {
		t.Errorf("orders = %d, want 0", n)
	}
}

func TestConfirmPayment_Admin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", storefrontOrder(s.company.ID), "")
	var created createOrderResponse
	decodeJSON(t, w, &created)

	path := "/api/payments/" + created.Payment.ID + "/confirm"
	if w := s.do(t, http.MethodPost, path, nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status %d, want 401", w.Code)
	}

	token := s.token(t, "admin@spa.kz", models.RoleAdmin, "")
	w = s.do(t, http.MethodPost, path, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: status %d, body %s", w.Code, w.Body.String())
	}
	var confirmation services.PaymentConfirmation
	decodeJSON(t, w, &confirmation)
	if confirmation.Status != models.PaymentStatusPaid || confirmation.OrderStatus != models.OrderStatusFulfilled {
		t.Errorf("unexpected confirmation: %+v", confirmation)
	}
}
