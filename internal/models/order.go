package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusArchived  OrderStatus = "archived"
)

// OrderPaymentStatus платежный статус заказа. Меняется только платежной подсистемой
type OrderPaymentStatus string

const (
	OrderPaymentPending OrderPaymentStatus = "pending"
	OrderPaymentPaid    OrderPaymentStatus = "paid"
	OrderPaymentFailed  OrderPaymentStatus = "failed"
)

// DeliveryMethod способ доставки сертификата
type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryWhatsApp DeliveryMethod = "whatsapp"
	DeliveryDownload DeliveryMethod = "download"
)

// Valid проверяет, что способ доставки известен
func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryEmail, DeliveryWhatsApp, DeliveryDownload:
		return true
	}
	return false
}

// Order покупка одного сертификата
type Order struct {
	ID              string             `json:"id" gorm:"type:uuid;primaryKey"`
	OrderNumber     string             `json:"order_number" gorm:"type:varchar(32);uniqueIndex;not null"`
	ClientID        string             `json:"client_id" gorm:"type:uuid;not null;index"`
	CertificateID   string             `json:"certificate_id" gorm:"type:uuid;not null;uniqueIndex"`
	CompanyID       string             `json:"company_id" gorm:"type:uuid;not null;index"`
	TotalAmount     int64              `json:"total_amount" gorm:"not null"`
	Currency        string             `json:"currency" gorm:"type:varchar(8);not null;default:'KZT'"`
	Status          OrderStatus        `json:"status" gorm:"type:varchar(20);not null;default:'created';index"`
	PaymentStatus   OrderPaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null;default:'pending';index"`
	DeliveryMethod  DeliveryMethod     `json:"delivery_method" gorm:"type:varchar(20);not null"`
	DeliveryContact string             `json:"delivery_contact" gorm:"type:varchar(255)"`
	UtmTagID        *string            `json:"utm_tag_id" gorm:"type:uuid;index"`
	VisitorID       string             `json:"visitor_id,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt       time.Time          `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt       time.Time          `json:"updated_at" gorm:"autoUpdateTime"`

	Client      *Client      `json:"client,omitempty" gorm:"foreignKey:ClientID;references:ID"`
	Certificate *Certificate `json:"certificate,omitempty" gorm:"foreignKey:CertificateID;references:ID"`
	Company     *Company     `json:"company,omitempty" gorm:"foreignKey:CompanyID;references:ID"`
	UtmTag      *UtmTag      `json:"utm_tag,omitempty" gorm:"foreignKey:UtmTagID;references:ID"`
}

// TableName указывает имя таблицы
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate генерирует UUID и статусы по умолчанию
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = OrderStatusCreated
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = OrderPaymentPending
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	return nil
}

// IsPaid проверяет, подтверждена ли оплата
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == OrderPaymentPaid
}
