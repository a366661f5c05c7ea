package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
)

const (
	vectorData = "eyJhbW91bnQiOjEwMDAsIm9yZGVyX2lkIjoiby0xIn0="
	vectorSign = "b706f5e0ed42aa156ff7218ea830ab39178c575ad5e7cc41a7d9d98a845067aadb90631aa6a5274d2d6c5bec9a64640bad46f87882c7376badcf3f9975c83e30"
)

func TestSignPayload_KnownVector(t *testing.T) {
	client := NewOneVisionClient("http://localhost")

	envelope, err := client.SignPayload(map[string]interface{}{"amount": 1000, "order_id": "o-1"}, "secret-1")
	if err != nil {
		t.Fatalf("SignPayload failed: %v", err)
	}
	if envelope.Data != vectorData {
		t.Errorf("Data = %q, want %q", envelope.Data, vectorData)
	}
	if envelope.Sign != vectorSign {
		t.Errorf("Sign = %q, want %q", envelope.Sign, vectorSign)
	}

	// Повторная подпись дает тот же результат
	again, _ := client.SignPayload(map[string]interface{}{"order_id": "o-1", "amount": 1000}, "secret-1")
	if again.Sign != envelope.Sign {
		t.Error("signature is not deterministic")
	}
}

func TestVerifySignature(t *testing.T) {
	client := NewOneVisionClient("http://localhost")

	if !client.VerifySignature(vectorData, vectorSign, "secret-1") {
		t.Error("valid signature rejected")
	}
	if !client.VerifySignature(vectorData, strings.ToUpper(vectorSign), "secret-1") {
		t.Error("upper-case hex signature rejected")
	}
	if client.VerifySignature(vectorData, vectorSign, "other-secret") {
		t.Error("signature with wrong secret accepted")
	}
	if client.VerifySignature(vectorData+"x", vectorSign, "secret-1") {
		t.Error("signature over modified data accepted")
	}
}

func TestCreatePayment(t *testing.T) {
	client := NewOneVisionClient("http://placeholder")
	var gotAuth string
	var gotRequest OneVisionPaymentRequest

	srv := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment/create" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")

		var env OneVisionEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !client.VerifySignature(env.Data, env.Sign, "secret-1") {
			http.Error(w, "bad sign", http.StatusUnauthorized)
			return
		}
		_ = DecodePayload(env.Data, &gotRequest)

		resp, _ := client.SignPayload(map[string]interface{}{
			"payment_id":       "pv-42",
			"payment_page_url": "https://pay.onevision.kz/p/pv-42",
			"payment_status":   "new",
		}, "secret-1")
		_ = json.NewEncoder(w).Encode(resp)
	})
	client.baseURL = srv.URL

	result, err := client.CreatePayment(context.Background(),
		OneVisionCredentials{APIKey: "api-key-1", Secret: "secret-1", MerchantID: "m-1", ServiceID: "s-1"},
		OneVisionPaymentRequest{Amount: 48000, Currency: "KZT", OrderID: "o-1", PaymentType: "pay", PaymentMethod: "ecom"})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	if result.PaymentID != "pv-42" || result.PaymentPageURL != "https://pay.onevision.kz/p/pv-42" || result.Status != "new" {
		t.Errorf("unexpected result: %+v", result)
	}
	wantAuth := "Bearer " + base64.StdEncoding.EncodeToString([]byte("api-key-1"))
	if gotAuth != wantAuth {
		t.Errorf("Authorization = %q, want %q", gotAuth, wantAuth)
	}
	if gotRequest.MerchantID != "m-1" || gotRequest.ServiceID != "s-1" || gotRequest.Amount != 48000 {
		t.Errorf("unexpected request: %+v", gotRequest)
	}
}

func TestCreatePayment_BadResponseSignature(t *testing.T) {
	client := NewOneVisionClient("http://placeholder")
	srv := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp, _ := client.SignPayload(map[string]interface{}{
			"payment_id":       "pv-1",
			"payment_page_url": "https://pay/pv-1",
		}, "attacker-secret")
		_ = json.NewEncoder(w).Encode(resp)
	})
	client.baseURL = srv.URL

	_, err := client.CreatePayment(context.Background(),
		OneVisionCredentials{APIKey: "k", Secret: "secret-1", MerchantID: "m"},
		OneVisionPaymentRequest{Amount: 1000, OrderID: "o-1"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestCreatePayment_MissingCredentials(t *testing.T) {
	client := NewOneVisionClient("http://127.0.0.1:1")
	_, err := client.CreatePayment(context.Background(), OneVisionCredentials{}, OneVisionPaymentRequest{})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		status string
		want   PaymentOutcome
		known  bool
	}{
		{"withdraw", OutcomePaid, true},
		{"CLEARING", OutcomePaid, true},
		{"canceled", OutcomeFailed, true},
		{"error", OutcomeFailed, true},
		{"new", OutcomeProcessing, true},
		{"something-else", OutcomeProcessing, false},
	}
	for _, tt := range tests {
		got, known := MapProviderStatus(tt.status)
		if got != tt.want || known != tt.known {
			t.Errorf("MapProviderStatus(%q) = %s, %v; want %s, %v", tt.status, got, known, tt.want, tt.known)
		}
	}
}
