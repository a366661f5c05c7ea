package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Роли администраторов
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleManager    = "manager" // Ограничен своим филиалом
)

// IsGlobalRole роли без ограничения по филиалу
func IsGlobalRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// AdminUser пользователь админки
type AdminUser struct {
	ID           string         `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string         `json:"-" gorm:"type:varchar(255);not null"` // Хеш пароля (не возвращается в JSON)
	Role         string         `json:"role" gorm:"type:varchar(20);not null"`
	CompanyID    *string        `json:"company_id" gorm:"type:uuid;index"`
	IsActive     bool           `json:"is_active" gorm:"default:true"`
	LastLoginAt  *time.Time     `json:"last_login_at"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName указывает имя таблицы
func (AdminUser) TableName() string {
	return "admin_users"
}

// BeforeCreate генерирует UUID
func (u *AdminUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
