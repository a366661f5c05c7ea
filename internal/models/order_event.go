package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Типы событий заказа (журнал аудита + поток в Kafka/WebSocket)
const (
	EventOrderCreated         = "order.created"
	EventPaymentInitiated     = "payment.initiated"
	EventPaymentProcessing    = "payment.processing"
	EventPaymentPaid          = "payment.paid"
	EventPaymentFailed        = "payment.failed"
	EventCertificateFulfilled = "certificate.fulfilled"
	EventCertificateRedeemed  = "certificate.redeemed"
)

// OrderEvent запись журнала событий заказа
type OrderEvent struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID   string         `json:"order_id" gorm:"type:uuid;not null;index"`
	CompanyID string         `json:"company_id" gorm:"type:uuid;index"`
	Type      string         `json:"type" gorm:"type:varchar(50);not null;index"`
	Actor     string         `json:"actor" gorm:"type:varchar(255)"` // customer | provider | admin:<email> | system
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (OrderEvent) TableName() string {
	return "order_events"
}

// BeforeCreate генерирует UUID
func (e *OrderEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
