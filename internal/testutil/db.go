// Package testutil общие хелперы для тестов: SQLite база и фикстуры
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"giftspa/server/internal/models"
)

// NewTestDB открывает SQLite во временном каталоге теста и применяет миграции.
// Одно соединение: транзакции выполняются строго по очереди
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "giftspa.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Учетные данные OneVision тестового филиала
const (
	TestMerchantID = "merchant-1"
	TestAPIKey     = "api-key-1"
	TestSecret     = "secret-1"
	TestServiceID  = "service-1"
)

// CreateCompany активный филиал с ключами OneVision
func CreateCompany(t *testing.T, db *gorm.DB, label string) *models.Company {
	t.Helper()
	company := &models.Company{
		Label:               label,
		Address:             "Алматы, ул. Абая 1",
		OneVisionMerchantID: TestMerchantID,
		OneVisionAPIKey:     TestAPIKey,
		OneVisionSecret:     TestSecret,
		OneVisionServiceID:  TestServiceID,
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create company: %v", err)
	}
	return company
}

// CreateProcedure услуга филиала
func CreateProcedure(t *testing.T, db *gorm.DB, companyID, name string, price int64, discount int) *models.SpaProcedure {
	t.Helper()
	procedure := &models.SpaProcedure{
		CompanyID:       companyID,
		Name:            name,
		Price:           price,
		DiscountPercent: discount,
		DurationMinutes: 60,
		IsActive:        true,
	}
	if err := db.Create(procedure).Error; err != nil {
		t.Fatalf("failed to create procedure: %v", err)
	}
	return procedure
}

// CreateAdmin пользователь админки. companyID пустой для глобальных ролей
func CreateAdmin(t *testing.T, db *gorm.DB, email, password, role, companyID string) *models.AdminUser {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := &models.AdminUser{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if companyID != "" {
		user.CompanyID = &companyID
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}
	return user
}

// Count количество строк модели
func Count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	return n
}
