package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompanyStatus статус филиала
type CompanyStatus string

const (
	CompanyStatusActive   CompanyStatus = "active"
	CompanyStatusInactive CompanyStatus = "inactive"
)

// Company представляет филиал спа (арендатор: процедуры, шаблоны, ключи платежного шлюза)
type Company struct {
	ID        string `json:"id" gorm:"type:uuid;primaryKey"`
	Label     string `json:"label" gorm:"type:varchar(255);not null"`
	Address   string `json:"address" gorm:"type:text"`
	Phone     string `json:"phone" gorm:"type:varchar(50)"`
	LegalName string `json:"legal_name" gorm:"type:varchar(255)"`
	BIN       string `json:"bin" gorm:"column:bin;type:varchar(20)"` // БИН юрлица

	// Учетные данные OneVision (не отдаются наружу)
	OneVisionMerchantID string `json:"-" gorm:"column:onevision_merchant_id;type:varchar(100)"`
	OneVisionAPIKey     string `json:"-" gorm:"column:onevision_api_key;type:varchar(255)"`
	OneVisionSecret     string `json:"-" gorm:"column:onevision_secret;type:varchar(255)"`
	OneVisionServiceID  string `json:"-" gorm:"column:onevision_service_id;type:varchar(100)"`

	// Инстанс WhatsApp API филиала
	WhatsAppInstanceID string `json:"-" gorm:"column:whatsapp_instance_id;type:varchar(100)"`
	WhatsAppToken      string `json:"-" gorm:"column:whatsapp_token;type:varchar(255)"`

	Status    CompanyStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`
	CreatedAt time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Company) TableName() string {
	return "companies"
}

// BeforeCreate генерирует UUID
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = CompanyStatusActive
	}
	return nil
}

// IsActive проверяет, принимает ли филиал заказы
func (c *Company) IsActive() bool {
	return c.Status == CompanyStatusActive
}

// HasPaymentCredentials проверяет, заполнены ли ключи OneVision
func (c *Company) HasPaymentCredentials() bool {
	return c.OneVisionAPIKey != "" && c.OneVisionSecret != "" && c.OneVisionMerchantID != ""
}

// HasWhatsApp проверяет, подключен ли WhatsApp у филиала
func (c *Company) HasWhatsApp() bool {
	return c.WhatsAppInstanceID != "" && c.WhatsAppToken != ""
}

// CompanyAlias связывает старый ID филиала (после слияния) с актуальным
type CompanyAlias struct {
	AliasID   string    `json:"alias_id" gorm:"type:uuid;primaryKey"`
	CompanyID string    `json:"company_id" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (CompanyAlias) TableName() string {
	return "company_aliases"
}
