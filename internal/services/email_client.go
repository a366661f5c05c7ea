package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmailAttachment вложение письма
type EmailAttachment struct {
	Filename string
	Content  []byte
}

// EmailMessage письмо через транзакционный API
type EmailMessage struct {
	To          string
	Subject     string
	HTML        string
	Attachments []EmailAttachment
}

// EmailClient клиент транзакционной почты (HTTP API в формате Resend)
type EmailClient struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewEmailClient создает клиент. Пустой apiKey или from = отправка выключена
func NewEmailClient(apiURL, apiKey, from string) *EmailClient {
	return &EmailClient{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// Configured проверяет, настроена ли почта
func (c *EmailClient) Configured() bool {
	return c != nil && c.apiURL != "" && c.apiKey != "" && c.from != ""
}

type emailRequest struct {
	From        string              `json:"from"`
	To          []string            `json:"to"`
	Subject     string              `json:"subject"`
	HTML        string              `json:"html"`
	Attachments []emailAttachmentJS `json:"attachments,omitempty"`
}

type emailAttachmentJS struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Send отправляет письмо, без повторов
func (c *EmailClient) Send(ctx context.Context, msg EmailMessage) error {
	if !c.Configured() {
		return fmt.Errorf("почта не настроена")
	}
	req := emailRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, emailAttachmentJS{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ошибка сериализации письма: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ошибка отправки письма: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("почтовый API вернул статус %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
