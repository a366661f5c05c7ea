package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"giftspa/server/internal/models"
)

const maxOrderNumberAttempts = 5

// CreateOrderInput заявка на покупку сертификата
type CreateOrderInput struct {
	CompanyID       string                 `json:"companyId" binding:"required"`
	Type            models.CertificateType `json:"type" binding:"required,certtype"`
	Amount          int64                  `json:"amount" binding:"gte=0"`
	ServiceIDs      []string               `json:"services"`
	TemplateID      string                 `json:"templateId"`
	Name            string                 `json:"name" binding:"max=255"`
	SenderName      string                 `json:"senderName" binding:"max=255"`
	RecipientName   string                 `json:"recipientName" binding:"max=255"`
	RecipientEmail  string                 `json:"recipientEmail" binding:"omitempty,email"`
	Message         string                 `json:"message" binding:"max=1000"`
	Client          ClientInput            `json:"client"`
	DeliveryMethod  models.DeliveryMethod  `json:"deliveryMethod" binding:"required"`
	DeliveryContact string                 `json:"deliveryContact"`
	VisitorID       string                 `json:"visitorId" binding:"max=64"`
}

// CreatedOrder все, что создано одной транзакцией
type CreatedOrder struct {
	Order       *models.Order       `json:"order"`
	Certificate *models.Certificate `json:"certificate"`
	Payment     *models.Payment     `json:"payment"`
	PaymentID   string              `json:"payment_id"`
	Company     *models.Company     `json:"-"`
	Client      *models.Client      `json:"-"`
}

// OrderService создание заказов: клиент + сертификат + заказ + платеж атомарно
type OrderService struct {
	db           *gorm.DB
	clients      *ClientService
	certificates *CertificateService
	utm          *UtmService
	payments     *PaymentService
	events       *EventPublisher
	validityDays int
}

// NewOrderService создает новый сервис заказов
func NewOrderService(db *gorm.DB, clients *ClientService, certificates *CertificateService, utm *UtmService,
	payments *PaymentService, events *EventPublisher, validityDays int) *OrderService {
	if validityDays <= 0 {
		validityDays = 180
	}
	return &OrderService{
		db:           db,
		clients:      clients,
		certificates: certificates,
		utm:          utm,
		payments:     payments,
		events:       events,
		validityDays: validityDays,
	}
}

// ValidateOrderInput проверки до любых записей в БД. Контакт доставки подставляется из данных клиента
func ValidateOrderInput(in *CreateOrderInput) error {
	if strings.TrimSpace(in.CompanyID) == "" {
		return validationErrorf("не указан филиал")
	}
	if !in.Type.Valid() {
		return validationErrorf("неизвестный тип сертификата %q", in.Type)
	}
	switch in.Type {
	case models.CertificateTypeProcedure:
		if len(in.ServiceIDs) == 0 {
			return validationErrorf("для процедурного сертификата выберите хотя бы одну услугу")
		}
	default:
		if in.Amount <= 0 {
			return validationErrorf("сумма сертификата должна быть больше нуля")
		}
	}
	if strings.TrimSpace(in.Client.Email) == "" && strings.TrimSpace(in.Client.Phone) == "" {
		return validationErrorf("укажите email или телефон покупателя")
	}
	if !in.DeliveryMethod.Valid() {
		return validationErrorf("неизвестный способ доставки %q", in.DeliveryMethod)
	}

	in.DeliveryContact = strings.TrimSpace(in.DeliveryContact)
	switch in.DeliveryMethod {
	case models.DeliveryEmail:
		if in.DeliveryContact == "" {
			in.DeliveryContact = firstNonEmpty(in.RecipientEmail, in.Client.Email)
		}
		in.DeliveryContact = NormalizeEmail(in.DeliveryContact)
		if in.DeliveryContact == "" {
			return validationErrorf("укажите email для доставки сертификата")
		}
	case models.DeliveryWhatsApp:
		if in.DeliveryContact == "" {
			in.DeliveryContact = in.Client.Phone
		}
		in.DeliveryContact = NormalizePhone(in.DeliveryContact)
		if in.DeliveryContact == "" {
			return validationErrorf("укажите телефон для доставки в WhatsApp")
		}
	}
	return nil
}

// CreateOrder создает заказ с оплатой через OneVision
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreatedOrder, error) {
	return s.create(ctx, in, models.PaymentProviderOneVision, "customer")
}

// CreateAdminOrder заказ из админки: создание и сразу подтверждение оплаты без шлюза.
// Менеджер может создавать заказы только в своем филиале
func (s *OrderService) CreateAdminOrder(ctx context.Context, in CreateOrderInput, actor Actor) (*CreatedOrder, *PaymentConfirmation, error) {
	if err := ValidateOrderInput(&in); err != nil {
		return nil, nil, err
	}
	companyID, err := resolveCompanyID(s.db.WithContext(ctx), in.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.CanAccessCompany(companyID) {
		return nil, nil, fmt.Errorf("нет доступа к филиалу %s: %w", companyID, ErrForbidden)
	}

	created, err := s.create(ctx, in, models.PaymentProviderManual, actor.Label())
	if err != nil {
		return nil, nil, err
	}
	confirmation, err := s.payments.MarkPaymentAsPaid(ctx, created.PaymentID, actor.Label())
	if err != nil {
		return nil, nil, err
	}
	return created, confirmation, nil
}

func (s *OrderService) create(ctx context.Context, in CreateOrderInput, provider models.PaymentProvider, actor string) (*CreatedOrder, error) {
	if err := ValidateOrderInput(&in); err != nil {
		return nil, err
	}

	var created *CreatedOrder
	var event *models.OrderEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		companyID, err := resolveCompanyID(tx, in.CompanyID)
		if err != nil {
			return err
		}

		var company models.Company
		if err := tx.First(&company, "id = ?", companyID).Error; err != nil {
			return notFound(err, "филиал")
		}
		if !company.IsActive() {
			return validationErrorf("филиал %s не принимает заказы", company.Label)
		}

		var templateID *string
		if in.TemplateID != "" {
			var template models.Template
			if err := tx.Where("id = ? AND is_active = ?", in.TemplateID, true).First(&template).Error; err != nil {
				return notFound(err, "шаблон")
			}
			if !template.VisibleFor(company.ID) {
				return fmt.Errorf("шаблон недоступен в филиале: %w", ErrNotFound)
			}
			templateID = &template.ID
		}

		total := in.Amount
		var lines []models.CertificateServiceLine
		if in.Type == models.CertificateTypeProcedure {
			lines, err = s.loadServiceLines(tx, company.ID, in.ServiceIDs)
			if err != nil {
				return err
			}
			total = ProcedureTotal(lines)
		}
		if total <= 0 {
			return validationErrorf("сумма заказа должна быть больше нуля")
		}

		client, err := s.clients.FindOrCreate(tx, in.Client)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		cert := &models.Certificate{
			Name:           certificateName(in, lines, total),
			CompanyID:      company.ID,
			Type:           in.Type,
			Price:          total,
			TemplateID:     templateID,
			SenderName:     strings.TrimSpace(in.SenderName),
			RecipientName:  strings.TrimSpace(in.RecipientName),
			RecipientEmail: NormalizeEmail(in.RecipientEmail),
			Message:        strings.TrimSpace(in.Message),
			StartDate:      now,
			FinishDate:     now.AddDate(0, 0, s.validityDays),
			Currency:       models.DefaultCurrency,
		}
		if len(lines) > 0 {
			cert.Services = datatypes.NewJSONType(lines)
		}
		if err := s.certificates.Issue(tx, cert); err != nil {
			return err
		}

		var utmTagID *string
		if s.utm != nil {
			utmTagID, err = s.utm.AttributeTag(tx, in.VisitorID)
			if err != nil {
				return err
			}
		}

		orderNumber, err := generateOrderNumber(tx, now)
		if err != nil {
			return err
		}

		order := &models.Order{
			OrderNumber:     orderNumber,
			ClientID:        client.ID,
			CertificateID:   cert.ID,
			CompanyID:       company.ID,
			TotalAmount:     total,
			Currency:        models.DefaultCurrency,
			Status:          models.OrderStatusCreated,
			PaymentStatus:   models.OrderPaymentPending,
			DeliveryMethod:  in.DeliveryMethod,
			DeliveryContact: in.DeliveryContact,
			UtmTagID:        utmTagID,
			VisitorID:       strings.TrimSpace(in.VisitorID),
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("ошибка создания заказа: %w", err)
		}

		event, err = recordEvent(tx, order.ID, company.ID, models.EventOrderCreated, actor, map[string]interface{}{
			"order_number":    order.OrderNumber,
			"certificate_id":  cert.ID,
			"type":            cert.Type,
			"total_amount":    total,
			"delivery_method": order.DeliveryMethod,
		})
		if err != nil {
			return err
		}

		payment := &models.Payment{
			OrderID:  order.ID,
			Amount:   total,
			Currency: models.DefaultCurrency,
			Status:   models.PaymentStatusPending,
			Provider: provider,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("ошибка создания платежа: %w", err)
		}

		created = &CreatedOrder{
			Order:       order,
			Certificate: cert,
			Payment:     payment,
			PaymentID:   payment.ID,
			Company:     &company,
			Client:      client,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(*event)
	log.Printf("✅ Заказ %s создан: сертификат %s, %s", created.Order.OrderNumber, created.Certificate.Code,
		FormatMoney(created.Order.TotalAmount, created.Order.Currency))
	return created, nil
}

// loadServiceLines загружает выбранные услуги филиала. Повтор ID = услуга дважды
func (s *OrderService) loadServiceLines(tx *gorm.DB, companyID string, serviceIDs []string) ([]models.CertificateServiceLine, error) {
	var procedures []models.SpaProcedure
	if err := tx.Where("id IN ? AND company_id = ? AND is_active = ?", uniqueStrings(serviceIDs), companyID, true).
		Find(&procedures).Error; err != nil {
		return nil, fmt.Errorf("ошибка загрузки услуг: %w", err)
	}
	byID := make(map[string]models.SpaProcedure, len(procedures))
	for _, p := range procedures {
		byID[p.ID] = p
	}

	lines := make([]models.CertificateServiceLine, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		p, ok := byID[id]
		if !ok {
			return nil, validationErrorf("услуга %s недоступна в выбранном филиале", id)
		}
		lines = append(lines, ServiceLineFromProcedure(p))
	}
	return lines, nil
}

// resolveCompanyID учитывает слияние филиалов: старый ID ведет на актуальный
func resolveCompanyID(tx *gorm.DB, companyID string) (string, error) {
	var aliases []models.CompanyAlias
	if err := tx.Where("alias_id = ?", companyID).Limit(1).Find(&aliases).Error; err != nil {
		return "", fmt.Errorf("ошибка поиска алиаса филиала: %w", err)
	}
	if len(aliases) > 0 {
		return aliases[0].CompanyID, nil
	}
	return companyID, nil
}

// generateOrderNumber номер вида YYMMDD-NNNNNN
func generateOrderNumber(tx *gorm.DB, now time.Time) (string, error) {
	limit := big.NewInt(1000000)
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации номера заказа: %w", err)
		}
		number := fmt.Sprintf("%s-%06d", now.Format("060102"), n.Int64())
		var count int64
		if err := tx.Model(&models.Order{}).Where("order_number = ?", number).Count(&count).Error; err != nil {
			return "", fmt.Errorf("ошибка проверки номера заказа: %w", err)
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", errors.New("не удалось сгенерировать уникальный номер заказа")
}

func certificateName(in CreateOrderInput, lines []models.CertificateServiceLine, total int64) string {
	if name := strings.TrimSpace(in.Name); name != "" {
		return name
	}
	if len(lines) > 0 {
		names := make([]string, 0, len(lines))
		for _, l := range lines {
			names = append(names, l.Name)
		}
		return strings.Join(names, ", ")
	}
	return "Подарочный сертификат на " + FormatMoney(total, models.DefaultCurrency)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
