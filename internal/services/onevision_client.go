package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// OneVisionCredentials ключи филиала в OneVision
type OneVisionCredentials struct {
	APIKey     string
	Secret     string
	MerchantID string
	ServiceID  string
}

// OneVisionPaymentRequest тело запроса "create payment" до кодирования в base64
type OneVisionPaymentRequest struct {
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	OrderID         string `json:"order_id"`
	Description     string `json:"description"`
	PaymentType     string `json:"payment_type"`
	PaymentMethod   string `json:"payment_method"`
	MerchantID      string `json:"merchant_id"`
	ServiceID       string `json:"service_id,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	SuccessURL      string `json:"success_url"`
	FailureURL      string `json:"failure_url"`
	CallbackURL     string `json:"callback_url"`
	PaymentLifetime int    `json:"payment_lifetime,omitempty"`
	Lang            string `json:"lang,omitempty"`
}

// OneVisionEnvelope подписанный конверт: {data: base64(JSON), sign: hex(HMAC-SHA512)}
type OneVisionEnvelope struct {
	Data string `json:"data"`
	Sign string `json:"sign"`
}

// OneVisionPaymentResult разобранный и проверенный ответ шлюза
type OneVisionPaymentResult struct {
	PaymentID      string
	PaymentPageURL string
	Status         string
	Request        map[string]interface{}
	Response       map[string]interface{}
}

// OneVisionClient клиент платежного шлюза OneVision
type OneVisionClient struct {
	baseURL string
	client  *http.Client
}

// NewOneVisionClient создает новый клиент OneVision
func NewOneVisionClient(baseURL string) *OneVisionClient {
	baseURL = strings.TrimRight(baseURL, "/")
	log.Printf("✅ OneVision: используется API endpoint: %s", baseURL)
	return &OneVisionClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Sign считает hex(HMAC-SHA512(secret, data)), где data уже base64(JSON)
func (c *OneVisionClient) Sign(data string, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время
func (c *OneVisionClient) VerifySignature(data, sign, secret string) bool {
	expected := c.Sign(data, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(sign))))
}

// EncodePayload base64(JSON(payload))
func EncodePayload(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePayload разбирает base64(JSON) в dest
func DecodePayload(data string, dest interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return fmt.Errorf("ошибка декодирования base64: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("ошибка парсинга JSON: %w", err)
	}
	return nil
}

// SignPayload кодирует и подписывает payload секретом филиала
func (c *OneVisionClient) SignPayload(payload interface{}, secret string) (*OneVisionEnvelope, error) {
	data, err := EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса OneVision: %w", err)
	}
	return &OneVisionEnvelope{Data: data, Sign: c.Sign(data, secret)}, nil
}

// CreatePayment открывает платежную сессию и возвращает ссылку на платежную страницу.
// Подпись ответа проверяется до того, как доверять payment_id
func (c *OneVisionClient) CreatePayment(ctx context.Context, creds OneVisionCredentials, req OneVisionPaymentRequest) (*OneVisionPaymentResult, error) {
	if creds.APIKey == "" || creds.Secret == "" || creds.MerchantID == "" {
		return nil, fmt.Errorf("у филиала не настроены ключи OneVision: %w", ErrUpstream)
	}
	req.MerchantID = creds.MerchantID
	if req.ServiceID == "" {
		req.ServiceID = creds.ServiceID
	}

	envelope, err := c.SignPayload(req, creds.Secret)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации конверта OneVision: %w", err)
	}

	url := c.baseURL + "/payment/create"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+base64.StdEncoding.EncodeToString([]byte(creds.APIKey)))

	log.Printf("📡 OneVision: создание платежа для заказа %s (%d %s)", req.OrderID, req.Amount, req.Currency)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к OneVision: %v: %w", err, ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа OneVision: %v: %w", err, ErrUpstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("OneVision вернул статус %d: %s: %w", resp.StatusCode, truncate(string(respBody), 500), ErrUpstream)
	}

	var respEnvelope OneVisionEnvelope
	if err := json.Unmarshal(respBody, &respEnvelope); err != nil || respEnvelope.Data == "" {
		return nil, fmt.Errorf("некорректный ответ OneVision: %s: %w", truncate(string(respBody), 500), ErrUpstream)
	}
	if !c.VerifySignature(respEnvelope.Data, respEnvelope.Sign, creds.Secret) {
		return nil, fmt.Errorf("подпись ответа OneVision не совпадает: %w", ErrUpstream)
	}

	var data map[string]interface{}
	if err := DecodePayload(respEnvelope.Data, &data); err != nil {
		return nil, fmt.Errorf("ответ OneVision: %v: %w", err, ErrUpstream)
	}

	result := &OneVisionPaymentResult{
		PaymentID:      stringField(data, "payment_id", "id"),
		PaymentPageURL: stringField(data, "payment_page_url", "payment_url"),
		Status:         stringField(data, "payment_status", "status"),
		Response:       data,
	}
	_ = DecodePayload(envelope.Data, &result.Request)

	if result.PaymentPageURL == "" {
		return nil, fmt.Errorf("OneVision не вернул payment_page_url: %w", ErrUpstream)
	}
	return result, nil
}

// stringField достает первое непустое строковое (или числовое) поле из карты
func stringField(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
