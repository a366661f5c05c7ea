package services

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"giftspa/server/internal/models"
)

// ClientInput контактные данные покупателя
type ClientInput struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email" binding:"omitempty,email"`
	Phone            string `json:"phone" binding:"omitempty,phone"`
	MarketingConsent bool   `json:"marketingConsent"`
}

// ClientService ищет и создает покупателей
type ClientService struct {
	db *gorm.DB
}

// NewClientService создает новый сервис клиентов
func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{db: db}
}

// NormalizeEmail приводит email к нижнему регистру
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone оставляет только цифры, казахстанский префикс 8 заменяется на 7
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	return digits
}

// FindOrCreate находит клиента по email ИЛИ телефону, иначе создает нового.
// Вызывается внутри транзакции заказа, поэтому принимает tx
func (s *ClientService) FindOrCreate(tx *gorm.DB, in ClientInput) (*models.Client, error) {
	email := NormalizeEmail(in.Email)
	phone := NormalizePhone(in.Phone)
	if email == "" && phone == "" {
		return nil, validationErrorf("укажите email или телефон покупателя")
	}

	query := tx.Model(&models.Client{})
	switch {
	case email != "" && phone != "":
		query = query.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		query = query.Where("phone = ?", phone)
	}

	var existing []models.Client
	if err := query.Order("created_at ASC").Limit(1).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("ошибка поиска клиента: %w", err)
	}

	if len(existing) == 0 {
		client := &models.Client{
			FirstName:        strings.TrimSpace(in.FirstName),
			LastName:         strings.TrimSpace(in.LastName),
			MarketingConsent: in.MarketingConsent,
		}
		if email != "" {
			client.Email = &email
		}
		if phone != "" {
			client.Phone = &phone
		}
		if err := tx.Create(client).Error; err != nil {
			return nil, fmt.Errorf("ошибка создания клиента: %w", err)
		}
		return client, nil
	}

	// Дополняем недостающие контакты, имена не перетираем
	client := existing[0]
	updates := map[string]interface{}{}
	if client.Email == nil && email != "" {
		client.Email = &email
		updates["email"] = email
	}
	if client.Phone == nil && phone != "" {
		client.Phone = &phone
		updates["phone"] = phone
	}
	if client.FirstName == "" && in.FirstName != "" {
		client.FirstName = strings.TrimSpace(in.FirstName)
		updates["first_name"] = client.FirstName
	}
	if client.LastName == "" && in.LastName != "" {
		client.LastName = strings.TrimSpace(in.LastName)
		updates["last_name"] = client.LastName
	}
	if in.MarketingConsent && !client.MarketingConsent {
		client.MarketingConsent = true
		updates["marketing_consent"] = true
	}
	if len(updates) > 0 {
		if err := tx.Model(&client).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("ошибка обновления клиента: %w", err)
		}
	}
	return &client, nil
}
