package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UtmTag метка рекламной кампании
type UtmTag struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Source    string    `json:"source" gorm:"type:varchar(100);uniqueIndex:idx_utm_tags_key"`
	Medium    string    `json:"medium" gorm:"type:varchar(100);uniqueIndex:idx_utm_tags_key"`
	Campaign  string    `json:"campaign" gorm:"type:varchar(255);uniqueIndex:idx_utm_tags_key"`
	Content   string    `json:"content" gorm:"type:varchar(255);uniqueIndex:idx_utm_tags_key"`
	Term      string    `json:"term" gorm:"type:varchar(255);uniqueIndex:idx_utm_tags_key"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName указывает имя таблицы
func (UtmTag) TableName() string {
	return "utm_tags"
}

// BeforeCreate генерирует UUID
func (t *UtmTag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// UtmVisit визит посетителя с меткой
type UtmVisit struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	VisitorID  string    `json:"visitor_id" gorm:"type:varchar(64);not null;index"`
	UtmTagID   string    `json:"utm_tag_id" gorm:"type:uuid;not null;index"`
	LandingURL string    `json:"landing_url" gorm:"type:text"`
	Referrer   string    `json:"referrer" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (UtmVisit) TableName() string {
	return "utm_visits"
}

// BeforeCreate генерирует UUID
func (v *UtmVisit) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}
