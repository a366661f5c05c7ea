package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SpaProcedure услуга филиала. Удаление мягкое: is_active = false
type SpaProcedure struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey"`
	CompanyID       string    `json:"company_id" gorm:"type:uuid;not null;index"`
	Name            string    `json:"name" gorm:"type:varchar(255);not null"`
	Price           int64     `json:"price" gorm:"not null"`
	DiscountPercent int       `json:"discount_percent" gorm:"not null;default:0"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null;default:60"`
	IsActive        bool      `json:"is_active" gorm:"default:true;index"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (SpaProcedure) TableName() string {
	return "spa_procedures"
}

// BeforeCreate генерирует UUID
func (p *SpaProcedure) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
