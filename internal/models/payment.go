package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing" // Промежуточный статус шлюза, без перехода заказа
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// PaymentProvider платежный провайдер
type PaymentProvider string

const (
	PaymentProviderOneVision PaymentProvider = "onevision"
	PaymentProviderManual    PaymentProvider = "manual" // Подтверждение администратором
)

// PaymentHistoryEntry одна запись истории обмена со шлюзом
type PaymentHistoryEntry struct {
	Kind           string                 `json:"kind"` // request | response | callback | confirm | error
	At             time.Time              `json:"at"`
	ProviderStatus string                 `json:"provider_status,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// PaymentMetadata произвольные данные провайдера, копятся по мере обмена
type PaymentMetadata struct {
	ProviderPaymentID  string                `json:"provider_payment_id,omitempty"`
	LastProviderStatus string                `json:"last_provider_status,omitempty"`
	ConfirmedBy        string                `json:"confirmed_by,omitempty"`
	History            []PaymentHistoryEntry `json:"history,omitempty"`
}

// Payment расчет по заказу. pending -> paid ровно один раз
type Payment struct {
	ID             string                              `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID        string                              `json:"order_id" gorm:"type:uuid;not null;index"`
	Amount         int64                               `json:"amount" gorm:"not null"`
	Currency       string                              `json:"currency" gorm:"type:varchar(8);not null;default:'KZT'"`
	Status         PaymentStatus                       `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Provider       PaymentProvider                     `json:"provider" gorm:"type:varchar(30);not null"`
	TransactionID  string                              `json:"transaction_id" gorm:"type:varchar(100);index"` // ID платежа у провайдера
	PaymentPageURL string                              `json:"payment_page_url" gorm:"type:text"`
	PaidAt         *time.Time                          `json:"paid_at"`
	Metadata       datatypes.JSONType[PaymentMetadata] `json:"metadata"`
	CreatedAt      time.Time                           `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time                           `json:"updated_at" gorm:"autoUpdateTime"`

	Order *Order `json:"order,omitempty" gorm:"foreignKey:OrderID;references:ID"`
}

// TableName указывает имя таблицы
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate генерирует UUID
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	return nil
}

// IsPaid проверяет, проведен ли платеж
func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// AppendHistory добавляет запись в историю метаданных
func (p *Payment) AppendHistory(entry PaymentHistoryEntry) {
	meta := p.Metadata.Data()
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	meta.History = append(meta.History, entry)
	if entry.ProviderStatus != "" {
		meta.LastProviderStatus = entry.ProviderStatus
	}
	p.Metadata = datatypes.NewJSONType(meta)
}

// SetProviderPaymentID сохраняет ID платежа провайдера и в колонку, и в метаданные
func (p *Payment) SetProviderPaymentID(id string) {
	meta := p.Metadata.Data()
	meta.ProviderPaymentID = id
	p.Metadata = datatypes.NewJSONType(meta)
	p.TransactionID = id
}
