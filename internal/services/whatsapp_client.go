package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhatsAppInstance учетные данные инстанса филиала
type WhatsAppInstance struct {
	ID    string
	Token string
}

// WhatsAppClient клиент WhatsApp API (формат Green-API: /waInstance{id}/{method}/{token})
type WhatsAppClient struct {
	baseURL string
	client  *http.Client
}

// NewWhatsAppClient создает новый клиент WhatsApp
func NewWhatsAppClient(baseURL string) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ChatID из телефона: 77011234567@c.us
func ChatID(phone string) string {
	return NormalizePhone(phone) + "@c.us"
}

func (c *WhatsAppClient) methodURL(inst WhatsAppInstance, method string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, inst.ID, method, inst.Token)
}

// SendMessage отправляет текстовое сообщение
func (c *WhatsAppClient) SendMessage(ctx context.Context, inst WhatsAppInstance, phone, text string) error {
	body, err := json.Marshal(map[string]string{
		"chatId":  ChatID(phone),
		"message": text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(inst, "sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// SendFile загружает файл и отправляет его в чат
func (c *WhatsAppClient) SendFile(ctx context.Context, inst WhatsAppInstance, phone, fileName, caption string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chatId", ChatID(phone)); err != nil {
		return err
	}
	if err := w.WriteField("fileName", fileName); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(inst, "sendFileByUpload"), &buf)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

func (c *WhatsAppClient) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса к WhatsApp API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("WhatsApp API вернул статус %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
