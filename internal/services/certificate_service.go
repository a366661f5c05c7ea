package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftspa/server/internal/models"
)

// Без 0/O и 1/I, чтобы код можно было продиктовать по телефону
const certificateCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 5

// GenerateCertificateCode генерирует код вида SPA-XXXX-XXXX
func GenerateCertificateCode() (string, error) {
	buf := make([]byte, 8)
	limit := big.NewInt(int64(len(certificateCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = certificateCodeAlphabet[n.Int64()]
	}
	return "SPA-" + string(buf[:4]) + "-" + string(buf[4:]), nil
}

// NormalizeCertificateCode приводит введенный кассиром код к каноническому виду
func NormalizeCertificateCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CertificateCheck результат проверки сертификата на кассе
type CertificateCheck struct {
	ID            string                   `json:"id"`
	Code          string                   `json:"code"`
	Name          string                   `json:"name"`
	Type          models.CertificateType   `json:"type"`
	Status        models.CertificateStatus `json:"status"`
	CompanyID     string                   `json:"company_id"`
	Price         int64                    `json:"price"`
	Currency      string                   `json:"currency"`
	RecipientName string                   `json:"recipient_name"`
	StartDate     time.Time                `json:"start_date"`
	FinishDate    time.Time                `json:"finish_date"`
	Paid          bool                     `json:"paid"`
	Redeemable    bool                     `json:"redeemable"`
	RedeemedAt    *time.Time               `json:"redeemed_at,omitempty"`
}

// CertificateService выпуск и погашение сертификатов
type CertificateService struct {
	db     *gorm.DB
	events *EventPublisher
}

// NewCertificateService создает новый сервис сертификатов
func NewCertificateService(db *gorm.DB, events *EventPublisher) *CertificateService {
	return &CertificateService{db: db, events: events}
}

// Issue присваивает сертификату свежий уникальный код и сохраняет его в tx
func (s *CertificateService) Issue(tx *gorm.DB, cert *models.Certificate) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateCertificateCode()
		if err != nil {
			return fmt.Errorf("ошибка генерации кода сертификата: %w", err)
		}
		var count int64
		if err := tx.Model(&models.Certificate{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return fmt.Errorf("ошибка проверки кода сертификата: %w", err)
		}
		if count > 0 {
			continue
		}
		cert.Code = code
		if err := tx.Create(cert).Error; err != nil {
			return fmt.Errorf("ошибка создания сертификата: %w", err)
		}
		return nil
	}
	return fmt.Errorf("не удалось сгенерировать уникальный код сертификата за %d попыток", maxCodeAttempts)
}

// GetWithOrder загружает сертификат и его заказ
func (s *CertificateService) GetWithOrder(ctx context.Context, id string) (*models.Certificate, *models.Order, error) {
	var cert models.Certificate
	if err := s.db.WithContext(ctx).First(&cert, "id = ?", id).Error; err != nil {
		return nil, nil, notFound(err, "сертификат")
	}
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "certificate_id = ?", cert.ID).Error; err != nil {
		return nil, nil, notFound(err, "заказ сертификата")
	}
	return &cert, &order, nil
}

// Check возвращает состояние сертификата по коду
func (s *CertificateService) Check(ctx context.Context, code string, actor Actor) (*CertificateCheck, error) {
	var cert models.Certificate
	if err := s.db.WithContext(ctx).First(&cert, "code = ?", NormalizeCertificateCode(code)).Error; err != nil {
		return nil, notFound(err, "сертификат")
	}
	if !actor.CanAccessCompany(cert.CompanyID) {
		return nil, fmt.Errorf("сертификат другого филиала: %w", ErrForbidden)
	}
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "certificate_id = ?", cert.ID).Error; err != nil {
		return nil, notFound(err, "заказ сертификата")
	}
	return buildCheck(&cert, &order, time.Now().UTC()), nil
}

// Redeem погашает сертификат: active -> used под блокировкой строки
func (s *CertificateService) Redeem(ctx context.Context, code string, actor Actor) (*CertificateCheck, error) {
	var result *CertificateCheck
	var event *models.OrderEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cert models.Certificate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cert, "code = ?", NormalizeCertificateCode(code)).Error; err != nil {
			return notFound(err, "сертификат")
		}
		if !actor.CanAccessCompany(cert.CompanyID) {
			return fmt.Errorf("сертификат другого филиала: %w", ErrForbidden)
		}

		var order models.Order
		if err := tx.First(&order, "certificate_id = ?", cert.ID).Error; err != nil {
			return notFound(err, "заказ сертификата")
		}
		if !order.IsPaid() {
			return fmt.Errorf("сертификат %s не оплачен: %w", cert.Code, ErrForbidden)
		}
		if cert.Status == models.CertificateStatusUsed {
			return validationErrorf("сертификат %s уже использован", cert.Code)
		}

		now := time.Now().UTC()
		if !cert.IsValidAt(now) {
			return validationErrorf("срок действия сертификата %s истек или еще не начался", cert.Code)
		}

		cert.Status = models.CertificateStatusUsed
		cert.RedeemedAt = &now
		if err := tx.Model(&cert).Select("status", "redeemed_at").Updates(&cert).Error; err != nil {
			return fmt.Errorf("ошибка погашения сертификата: %w", err)
		}

		var err error
		event, err = recordEvent(tx, order.ID, order.CompanyID, models.EventCertificateRedeemed, actor.Label(),
			map[string]interface{}{"certificate_id": cert.ID, "code": cert.Code})
		if err != nil {
			return err
		}
		result = buildCheck(&cert, &order, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(*event)
	return result, nil
}

func buildCheck(cert *models.Certificate, order *models.Order, now time.Time) *CertificateCheck {
	paid := order.IsPaid()
	return &CertificateCheck{
		ID:            cert.ID,
		Code:          cert.Code,
		Name:          cert.Name,
		Type:          cert.Type,
		Status:        cert.Status,
		CompanyID:     cert.CompanyID,
		Price:         cert.Price,
		Currency:      cert.Currency,
		RecipientName: cert.RecipientName,
		StartDate:     cert.StartDate,
		FinishDate:    cert.FinishDate,
		Paid:          paid,
		Redeemable:    paid && cert.Status == models.CertificateStatusActive && cert.IsValidAt(now),
		RedeemedAt:    cert.RedeemedAt,
	}
}
