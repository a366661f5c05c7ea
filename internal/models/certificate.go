package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CertificateType тип сертификата
type CertificateType string

const (
	CertificateTypeGift      CertificateType = "gift"      // Номинал в тенге
	CertificateTypeProcedure CertificateType = "procedure" // Набор процедур
	CertificateTypeOther     CertificateType = "other"
)

// Valid проверяет, что тип известен
func (t CertificateType) Valid() bool {
	switch t {
	case CertificateTypeGift, CertificateTypeProcedure, CertificateTypeOther:
		return true
	}
	return false
}

// CertificateStatus статус сертификата
type CertificateStatus string

const (
	CertificateStatusActive CertificateStatus = "active"
	CertificateStatusUsed   CertificateStatus = "used"
)

// DefaultCurrency валюта по умолчанию (тенге)
const DefaultCurrency = "KZT"

// CertificateServiceLine строка расшифровки процедурного сертификата
type CertificateServiceLine struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`
	DiscountPercent int    `json:"discount_percent"`
	FinalPrice      int64  `json:"final_price"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// Certificate подарочный сертификат. Code уникален и не меняется после выдачи
type Certificate struct {
	ID             string                                       `json:"id" gorm:"type:uuid;primaryKey"`
	Code           string                                       `json:"code" gorm:"type:varchar(32);uniqueIndex;not null"`
	Name           string                                       `json:"name" gorm:"type:varchar(255)"`
	CompanyID      string                                       `json:"company_id" gorm:"type:uuid;not null;index"`
	Type           CertificateType                              `json:"type" gorm:"type:varchar(20);not null"`
	Price          int64                                        `json:"price" gorm:"not null"`
	Services       datatypes.JSONType[[]CertificateServiceLine] `json:"services"`
	TemplateID     *string                                      `json:"template_id" gorm:"type:uuid;index"`
	SenderName     string                                       `json:"sender_name" gorm:"type:varchar(255)"`
	RecipientName  string                                       `json:"recipient_name" gorm:"type:varchar(255)"`
	RecipientEmail string                                       `json:"recipient_email" gorm:"type:varchar(255)"`
	Message        string                                       `json:"message" gorm:"type:text"`
	StartDate      time.Time                                    `json:"start_date" gorm:"not null"`
	FinishDate     time.Time                                    `json:"finish_date" gorm:"not null"`
	Status         CertificateStatus                            `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`
	FileURL        string                                       `json:"file_url" gorm:"type:text"`
	Currency       string                                       `json:"currency" gorm:"type:varchar(8);not null;default:'KZT'"`
	RedeemedAt     *time.Time                                   `json:"redeemed_at"`
	CreatedAt      time.Time                                    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time                                    `json:"updated_at" gorm:"autoUpdateTime"`

	Company  *Company  `json:"company,omitempty" gorm:"foreignKey:CompanyID;references:ID"`
	Template *Template `json:"template,omitempty" gorm:"foreignKey:TemplateID;references:ID"`
}

// TableName указывает имя таблицы
func (Certificate) TableName() string {
	return "certificates"
}

// BeforeCreate генерирует UUID и статус по умолчанию
func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = CertificateStatusActive
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	return nil
}

// IsValidAt проверяет, попадает ли момент в окно действия сертификата
func (c *Certificate) IsValidAt(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.FinishDate)
}
