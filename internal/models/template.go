package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Template дизайн сертификата
type Template struct {
	ID            string     `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string     `json:"name" gorm:"type:varchar(255);not null"`
	BackgroundURL string     `json:"background_url" gorm:"type:text"` // http(s) URL или путь на диске
	PreviewURL    string     `json:"preview_url" gorm:"type:text"`
	Font          string     `json:"font" gorm:"type:varchar(100)"`
	TextColor     string     `json:"text_color" gorm:"type:varchar(20)"` // #RRGGBB
	CompanyIDs    StringList `json:"company_ids"`                        // Пусто = виден во всех филиалах
	IsActive      bool       `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Template) TableName() string {
	return "templates"
}

// BeforeCreate генерирует UUID
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// VisibleFor проверяет, доступен ли шаблон филиалу
func (t *Template) VisibleFor(companyID string) bool {
	return len(t.CompanyIDs) == 0 || t.CompanyIDs.Contains(companyID)
}
