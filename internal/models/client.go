package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client покупатель сертификата. Ищется по email или телефону, не удаляется
type Client struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey"`
	FirstName        string    `json:"first_name" gorm:"type:varchar(100)"`
	LastName         string    `json:"last_name" gorm:"type:varchar(100)"`
	Email            *string   `json:"email" gorm:"type:varchar(255);index"`
	Phone            *string   `json:"phone" gorm:"type:varchar(30);index"`
	MarketingConsent bool      `json:"marketing_consent" gorm:"not null;default:false"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Client) TableName() string {
	return "clients"
}

// BeforeCreate генерирует UUID
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// FullName возвращает имя и фамилию через пробел
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}
