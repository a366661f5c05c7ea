package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"giftspa/server/internal/models"
)

type fulfillmentEnv struct {
	*testEnv
	storage     *FileStorage
	fulfillment *FulfillmentService
}

func newFulfillmentEnv(t *testing.T, emailURL, whatsappURL string) *fulfillmentEnv {
	t.Helper()
	env := newTestEnv(t, "", nil)
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	var email *EmailClient
	if emailURL != "" {
		email = NewEmailClient(emailURL, "key-1", "spa@example.kz")
	}
	var whatsapp *WhatsAppClient
	if whatsappURL != "" {
		whatsapp = NewWhatsAppClient(whatsappURL)
	}
	return &fulfillmentEnv{
		testEnv:     env,
		storage:     storage,
		fulfillment: NewFulfillmentService(env.db, NewCertificateRenderer(""), storage, email, whatsapp, env.events),
	}
}

// paidOrder создает заказ и отмечает платеж оплаченным (fakeFulfiller ничего не выпускает)
func (e *fulfillmentEnv) paidOrder(t *testing.T, in CreateOrderInput) *CreatedOrder {
	t.Helper()
	created := e.createOrder(t, in)
	if _, err := e.payments.MarkPaymentAsPaid(context.Background(), created.PaymentID, "provider"); err != nil {
		t.Fatalf("MarkPaymentAsPaid failed: %v", err)
	}
	return created
}

func (e *fulfillmentEnv) loadOrder(t *testing.T, id string) models.Order {
	t.Helper()
	var order models.Order
	if err := e.db.Preload("Certificate").First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	return order
}

func TestFulfill_Download(t *testing.T) {
	env := newFulfillmentEnv(t, "", "")
	created := env.paidOrder(t, giftOrderInput(env.company.ID))

	if err := env.fulfillment.Fulfill(context.Background(), created.Order.ID); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	order := env.loadOrder(t, created.Order.ID)
	if order.Status != models.OrderStatusFulfilled {
		t.Errorf("order status = %s, want fulfilled", order.Status)
	}
	wantPath := "certificates/" + created.Certificate.ID + ".pdf"
	if order.Certificate == nil || order.Certificate.FileURL != wantPath {
		t.Fatalf("certificate file_url = %+v, want %s", order.Certificate, wantPath)
	}

	pdf, err := env.storage.Read(wantPath)
	if err != nil {
		t.Fatalf("failed to read stored pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("stored file is not a PDF")
	}

	var fulfilled int64
	env.db.Model(&models.OrderEvent{}).Where("order_id = ? AND type = ?", order.ID, models.EventCertificateFulfilled).Count(&fulfilled)
	if fulfilled != 1 {
		t.Errorf("certificate.fulfilled events = %d, want 1", fulfilled)
	}
}

func TestFulfill_Unpaid(t *testing.T) {
	env := newFulfillmentEnv(t, "", "")
	created := env.createOrder(t, giftOrderInput(env.company.ID))

	err := env.fulfillment.Fulfill(context.Background(), created.Order.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if order := env.loadOrder(t, created.Order.ID); order.Status != models.OrderStatusCreated || order.Certificate.FileURL != "" {
		t.Errorf("unpaid order must stay untouched: status=%s file=%q", order.Status, order.Certificate.FileURL)
	}
}

func TestFulfill_EmailAttachment(t *testing.T) {
	var mu sync.Mutex
	var got emailRequest
	srv := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("unexpected Authorization: %q", r.Header.Get("Authorization"))
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad email body: %v", err)
		}
		w.Write([]byte(`{"id":"mail-1"}`))
	})
	env := newFulfillmentEnv(t, srv.URL, "")

	in := giftOrderInput(env.company.ID)
	in.DeliveryMethod = models.DeliveryEmail
	created := env.paidOrder(t, in)

	if err := env.fulfillment.Fulfill(context.Background(), created.Order.ID); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got.To) != 1 || got.To[0] != "damir@example.kz" {
		t.Errorf("To = %v", got.To)
	}
	if !strings.Contains(got.Subject, created.Certificate.Code) {
		t.Errorf("subject %q has no certificate code", got.Subject)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(got.Attachments))
	}
	content, err := base64.StdEncoding.DecodeString(got.Attachments[0].Content)
	if err != nil {
		t.Fatalf("attachment is not base64: %v", err)
	}
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		t.Errorf("attachment is not a PDF")
	}
	if got.Attachments[0].Filename != created.Certificate.Code+".pdf" {
		t.Errorf("Filename = %q", got.Attachments[0].Filename)
	}
}

func TestFulfill_DeliveryFailureIsNotFatal(t *testing.T) {
	srv := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox unavailable", http.StatusInternalServerError)
	})
	env := newFulfillmentEnv(t, srv.URL, "")

	in := giftOrderInput(env.company.ID)
	in.DeliveryMethod = models.DeliveryEmail
	created := env.paidOrder(t, in)

	if err := env.fulfillment.Fulfill(context.Background(), created.Order.ID); err != nil {
		t.Fatalf("delivery failure must not fail Fulfill: %v", err)
	}
	order := env.loadOrder(t, created.Order.ID)
	if order.Status != models.OrderStatusFulfilled || order.PaymentStatus != models.OrderPaymentPaid {
		t.Errorf("order = %s/%s, want fulfilled/paid", order.Status, order.PaymentStatus)
	}
}

func TestFulfill_WhatsAppSendsTextAndFileIndependently(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if strings.Contains(r.URL.Path, "/sendMessage/") {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart: %v", err)
		} else if r.FormValue("chatId") != "77011234567@c.us" {
			t.Errorf("chatId = %q", r.FormValue("chatId"))
		}
		w.Write([]byte(`{"idMessage":"m-1"}`))
	})
	env := newFulfillmentEnv(t, "", srv.URL)
	env.db.Model(env.company).Updates(map[string]interface{}{
		"whatsapp_instance_id": "1101",
		"whatsapp_token":       "tok",
	})

	in := giftOrderInput(env.company.ID)
	in.DeliveryMethod = models.DeliveryWhatsApp
	created := env.paidOrder(t, in)

	if err := env.fulfillment.Fulfill(context.Background(), created.Order.ID); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/waInstance1101/sendMessage/tok", "/waInstance1101/sendFileByUpload/tok"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}

func TestFulfill_WhatsAppNotConnected(t *testing.T) {
	srv := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected WhatsApp request to %s", r.URL.Path)
	})
	env := newFulfillmentEnv(t, "", srv.URL)

	in := giftOrderInput(env.company.ID)
	in.DeliveryMethod = models.DeliveryWhatsApp
	created := env.paidOrder(t, in)

	if err := env.fulfillment.Fulfill(context.Background(), created.Order.ID); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}
	if order := env.loadOrder(t, created.Order.ID); order.Status != models.OrderStatusFulfilled {
		t.Errorf("status = %s, want fulfilled", order.Status)
	}
}
