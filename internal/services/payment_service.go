package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftspa/server/internal/models"
)

// Fulfiller выпускает и доставляет сертификат после оплаты
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID string) error
}

// CallbackBody тело webhook'а OneVision
type CallbackBody struct {
	Data      string `json:"data"`
	Sign      string `json:"sign"`
	PaymentID string `json:"payment_id"`
}

// CallbackResult что сделали с callback'ом
type CallbackResult struct {
	PaymentID      string               `json:"payment_id"`
	OrderID        string               `json:"order_id"`
	ProviderStatus string               `json:"provider_status"`
	Outcome        PaymentOutcome       `json:"outcome"`
	Status         models.PaymentStatus `json:"status"`
}

// PaymentConfirmation снимок платежа после подтверждения.
// Повторный вызов для уже оплаченного платежа возвращает тот же снимок
type PaymentConfirmation struct {
	PaymentID          string                    `json:"payment_id"`
	OrderID            string                    `json:"order_id"`
	OrderNumber        string                    `json:"order_number"`
	CertificateID      string                    `json:"certificate_id"`
	Amount             int64                     `json:"amount"`
	Currency           string                    `json:"currency"`
	Status             models.PaymentStatus      `json:"status"`
	PaidAt             *time.Time                `json:"paid_at"`
	OrderStatus        models.OrderStatus        `json:"order_status"`
	OrderPaymentStatus models.OrderPaymentStatus `json:"order_payment_status"`
	FileURL            string                    `json:"file_url,omitempty"`
}

// PaymentService платежи: инициализация в OneVision, callback'и, подтверждение
type PaymentService struct {
	db            *gorm.DB
	gateway       *OneVisionClient
	fulfiller     Fulfiller
	events        *EventPublisher
	publicBaseURL string
	frontendURL   string
}

// NewPaymentService создает новый сервис платежей
func NewPaymentService(db *gorm.DB, gateway *OneVisionClient, fulfiller Fulfiller, events *EventPublisher, publicBaseURL, frontendURL string) *PaymentService {
	return &PaymentService{
		db:            db,
		gateway:       gateway,
		fulfiller:     fulfiller,
		events:        events,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		frontendURL:   strings.TrimRight(frontendURL, "/"),
	}
}

// Initiate открывает платежную сессию OneVision для только что созданного заказа
// и сохраняет ID платежа провайдера и ссылку на платежную страницу
func (s *PaymentService) Initiate(ctx context.Context, created *CreatedOrder, baseURL string) (*models.Payment, error) {
	if baseURL == "" {
		baseURL = s.publicBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	order := created.Order
	company := created.Company
	payment := created.Payment

	req := OneVisionPaymentRequest{
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		OrderID:         order.ID,
		Description:     fmt.Sprintf("Сертификат %s, заказ %s", created.Certificate.Code, order.OrderNumber),
		PaymentType:     "pay",
		PaymentMethod:   "ecom",
		SuccessURL:      fmt.Sprintf("%s/payment/success?order=%s", s.frontendURL, order.OrderNumber),
		FailureURL:      fmt.Sprintf("%s/payment/failure?order=%s", s.frontendURL, order.OrderNumber),
		CallbackURL:     baseURL + "/api/payments/onevision/callback",
		PaymentLifetime: 3600,
		Lang:            "ru",
	}
	if created.Client != nil {
		if created.Client.Email != nil {
			req.Email = *created.Client.Email
		}
		if created.Client.Phone != nil {
			req.Phone = *created.Client.Phone
		}
	}

	creds := OneVisionCredentials{
		APIKey:     company.OneVisionAPIKey,
		Secret:     company.OneVisionSecret,
		MerchantID: company.OneVisionMerchantID,
		ServiceID:  company.OneVisionServiceID,
	}

	result, err := s.gateway.CreatePayment(ctx, creds, req)
	if err != nil {
		payment.AppendHistory(models.PaymentHistoryEntry{
			Kind: "error",
			Data: map[string]interface{}{"stage": "create", "error": err.Error()},
		})
		if saveErr := s.db.WithContext(ctx).Model(payment).Select("metadata").Updates(payment).Error; saveErr != nil {
			log.Printf("⚠️ Не удалось сохранить ошибку OneVision в платеж %s: %v", payment.ID, saveErr)
		}
		log.Printf("❌ OneVision: ошибка создания платежа для заказа %s: %v", order.OrderNumber, err)
		return nil, err
	}

	payment.SetProviderPaymentID(result.PaymentID)
	payment.PaymentPageURL = result.PaymentPageURL
	payment.AppendHistory(models.PaymentHistoryEntry{Kind: "request", Data: result.Request})
	payment.AppendHistory(models.PaymentHistoryEntry{Kind: "response", ProviderStatus: result.Status, Data: result.Response})

	var event *models.OrderEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(payment).Select("transaction_id", "payment_page_url", "metadata").Updates(payment).Error; err != nil {
			return fmt.Errorf("ошибка сохранения сессии OneVision: %w", err)
		}
		var err error
		event, err = recordEvent(tx, order.ID, order.CompanyID, models.EventPaymentInitiated, "customer",
			map[string]interface{}{"payment_id": payment.ID, "provider_payment_id": result.PaymentID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(*event)

	log.Printf("✅ OneVision: платеж %s создан для заказа %s", result.PaymentID, order.OrderNumber)
	return payment, nil
}

// HandleCallback проверяет подпись callback'а и применяет статус провайдера.
// При несовпадении подписи ничего не меняется
func (s *PaymentService) HandleCallback(ctx context.Context, body CallbackBody) (*CallbackResult, error) {
	if body.Data == "" || body.Sign == "" {
		return nil, validationErrorf("callback без data или sign")
	}

	var data map[string]interface{}
	if err := DecodePayload(body.Data, &data); err != nil {
		return nil, validationErrorf("некорректный callback: %v", err)
	}

	// Платеж выбирается только по подписанным полям
	providerPaymentID := stringField(data, "payment_id")
	if body.PaymentID != "" && body.PaymentID != providerPaymentID {
		log.Printf("⚠️ OneVision callback: payment_id %q вне data не совпадает с подписанным %q", body.PaymentID, providerPaymentID)
		return nil, fmt.Errorf("payment_id callback'а не совпадает с подписанными данными: %w", ErrInvalidSignature)
	}
	orderID := stringField(data, "order_id")

	payment, err := s.findCallbackPayment(ctx, providerPaymentID, orderID)
	if err != nil {
		return nil, err
	}

	var company models.Company
	if err := s.db.WithContext(ctx).
		Joins("JOIN orders ON orders.company_id = companies.id").
		Where("orders.id = ?", payment.OrderID).
		First(&company).Error; err != nil {
		return nil, notFound(err, "филиал платежа")
	}
	if company.OneVisionSecret == "" || !s.gateway.VerifySignature(body.Data, body.Sign, company.OneVisionSecret) {
		log.Printf("⚠️ OneVision callback: подпись не совпадает (платеж %s)", payment.ID)
		return nil, fmt.Errorf("подпись callback'а не совпадает: %w", ErrInvalidSignature)
	}
	if orderID != "" && orderID != payment.OrderID {
		log.Printf("⚠️ OneVision callback: order_id %s не совпадает с заказом платежа %s", orderID, payment.ID)
		return nil, fmt.Errorf("order_id callback'а не совпадает с платежом: %w", ErrInvalidSignature)
	}

	providerStatus := stringField(data, "payment_status", "status")
	outcome, _ := MapProviderStatus(providerStatus)
	entry := models.PaymentHistoryEntry{
		Kind:           "callback",
		At:             time.Now().UTC(),
		ProviderStatus: providerStatus,
		Data:           data,
	}

	log.Printf("🔔 OneVision callback: платеж %s, статус %q -> %s", payment.ID, providerStatus, outcome)

	result := &CallbackResult{
		PaymentID:      payment.ID,
		OrderID:        payment.OrderID,
		ProviderStatus: providerStatus,
		Outcome:        outcome,
	}

	switch outcome {
	case OutcomePaid:
		confirmation, err := s.markPaid(ctx, payment.ID, "provider", &entry)
		if err != nil {
			return nil, err
		}
		result.Status = confirmation.Status
	case OutcomeFailed:
		status, err := s.applyNonFinal(ctx, payment.ID, entry, models.PaymentStatusFailed)
		if err != nil {
			return nil, err
		}
		result.Status = status
	default:
		status, err := s.applyNonFinal(ctx, payment.ID, entry, models.PaymentStatusProcessing)
		if err != nil {
			return nil, err
		}
		result.Status = status
	}
	return result, nil
}

func (s *PaymentService) findCallbackPayment(ctx context.Context, providerPaymentID, orderID string) (*models.Payment, error) {
	var payment models.Payment
	db := s.db.WithContext(ctx)
	if providerPaymentID != "" {
		err := db.Where("provider = ? AND transaction_id = ?", models.PaymentProviderOneVision, providerPaymentID).
			First(&payment).Error
		if err == nil {
			return &payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ошибка поиска платежа: %w", err)
		}
	}
	if orderID != "" {
		err := db.Where("order_id = ?", orderID).Order("created_at DESC").First(&payment).Error
		if err == nil {
			return &payment, nil
		}
		return nil, notFound(err, "платеж")
	}
	return nil, fmt.Errorf("платеж для callback'а не найден: %w", ErrNotFound)
}

// selectPaymentForUpdate читает платеж с блокировкой строки (SELECT ... FOR UPDATE)
func selectPaymentForUpdate(tx *gorm.DB, payment *models.Payment, paymentID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(payment, "id = ?", paymentID)
}

// applyNonFinal обрабатывает failed и processing. Оплаченный платеж не откатывается
func (s *PaymentService) applyNonFinal(ctx context.Context, paymentID string, entry models.PaymentHistoryEntry, target models.PaymentStatus) (models.PaymentStatus, error) {
	var resultStatus models.PaymentStatus
	var event *models.OrderEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := selectPaymentForUpdate(tx, &payment, paymentID).Error; err != nil {
			return notFound(err, "платеж")
		}
		resultStatus = payment.Status
		if payment.IsPaid() {
			log.Printf("⚠️ Платеж %s уже оплачен, статус %q от провайдера проигнорирован", payment.ID, entry.ProviderStatus)
			return nil
		}

		payment.AppendHistory(entry)
		columns := []string{"metadata"}
		eventType := models.EventPaymentProcessing

		switch target {
		case models.PaymentStatusFailed:
			payment.Status = models.PaymentStatusFailed
			columns = append(columns, "status")
			eventType = models.EventPaymentFailed
			if err := tx.Model(&models.Order{}).Where("id = ?", payment.OrderID).
				Update("payment_status", models.OrderPaymentFailed).Error; err != nil {
				return fmt.Errorf("ошибка обновления заказа: %w", err)
			}
		case models.PaymentStatusProcessing:
			if payment.Status == models.PaymentStatusPending {
				payment.Status = models.PaymentStatusProcessing
				columns = append(columns, "status")
			}
		}

		if err := tx.Model(&payment).Select(columns).Updates(&payment).Error; err != nil {
			return fmt.Errorf("ошибка обновления платежа: %w", err)
		}
		resultStatus = payment.Status

		var order models.Order
		if err := tx.Select("id", "company_id").First(&order, "id = ?", payment.OrderID).Error; err != nil {
			return notFound(err, "заказ")
		}
		var err error
		event, err = recordEvent(tx, order.ID, order.CompanyID, eventType, "provider",
			map[string]interface{}{"payment_id": payment.ID, "provider_status": entry.ProviderStatus})
		return err
	})
	if err != nil {
		return "", err
	}
	if event != nil {
		s.events.Publish(*event)
	}
	return resultStatus, nil
}

// MarkPaymentAsPaid переводит платеж pending -> paid ровно один раз и запускает выпуск сертификата.
// Конкурентные вызовы сериализуются блокировкой строки платежа
func (s *PaymentService) MarkPaymentAsPaid(ctx context.Context, paymentID, source string) (*PaymentConfirmation, error) {
	return s.markPaid(ctx, paymentID, source, nil)
}

func (s *PaymentService) markPaid(ctx context.Context, paymentID, source string, callback *models.PaymentHistoryEntry) (*PaymentConfirmation, error) {
	var orderID string
	var event *models.OrderEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := selectPaymentForUpdate(tx, &payment, paymentID).Error; err != nil {
			return notFound(err, "платеж")
		}
		orderID = payment.OrderID
		if payment.IsPaid() {
			return nil
		}

		now := time.Now().UTC()
		if callback != nil {
			payment.AppendHistory(*callback)
		}
		payment.AppendHistory(models.PaymentHistoryEntry{
			Kind: "confirm",
			At:   now,
			Data: map[string]interface{}{"source": source},
		})
		if strings.HasPrefix(source, "admin:") {
			meta := payment.Metadata.Data()
			meta.ConfirmedBy = strings.TrimPrefix(source, "admin:")
			payment.Metadata = datatypes.NewJSONType(meta)
		}
		payment.Status = models.PaymentStatusPaid
		payment.PaidAt = &now

		if err := tx.Model(&payment).Select("status", "paid_at", "metadata").Updates(&payment).Error; err != nil {
			return fmt.Errorf("ошибка обновления платежа: %w", err)
		}

		var order models.Order
		if err := tx.First(&order, "id = ?", payment.OrderID).Error; err != nil {
			return notFound(err, "заказ")
		}
		if err := tx.Model(&order).Update("payment_status", models.OrderPaymentPaid).Error; err != nil {
			return fmt.Errorf("ошибка обновления заказа: %w", err)
		}

		var err error
		event, err = recordEvent(tx, order.ID, order.CompanyID, models.EventPaymentPaid, source,
			map[string]interface{}{"payment_id": payment.ID, "amount": payment.Amount, "currency": payment.Currency})
		return err
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		s.events.Publish(*event)
		log.Printf("✅ Платеж %s оплачен (%s)", paymentID, source)
		if s.fulfiller != nil {
			// Доставка не должна зависеть от отмены входящего запроса
			if err := s.fulfiller.Fulfill(context.WithoutCancel(ctx), orderID); err != nil {
				log.Printf("❌ Ошибка выпуска сертификата по заказу %s: %v", orderID, err)
			}
		}
	}

	return s.confirmation(ctx, paymentID)
}

func (s *PaymentService) confirmation(ctx context.Context, paymentID string) (*PaymentConfirmation, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Preload("Order").Preload("Order.Certificate").
		First(&payment, "id = ?", paymentID).Error; err != nil {
		return nil, notFound(err, "платеж")
	}
	c := &PaymentConfirmation{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Status:    payment.Status,
		PaidAt:    payment.PaidAt,
	}
	if payment.Order != nil {
		c.OrderNumber = payment.Order.OrderNumber
		c.CertificateID = payment.Order.CertificateID
		c.OrderStatus = payment.Order.Status
		c.OrderPaymentStatus = payment.Order.PaymentStatus
		if payment.Order.Certificate != nil {
			c.FileURL = payment.Order.Certificate.FileURL
		}
	}
	return c, nil
}

// ConfirmManually подтверждение оплаты администратором (POST /api/payments/:id/confirm).
// Для оплаченного, но не выпущенного заказа повторно запускает выпуск сертификата
func (s *PaymentService) ConfirmManually(ctx context.Context, paymentID string, actor Actor) (*PaymentConfirmation, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Preload("Order").First(&payment, "id = ?", paymentID).Error; err != nil {
		return nil, notFound(err, "платеж")
	}
	if payment.Order == nil || !actor.CanAccessCompany(payment.Order.CompanyID) {
		return nil, fmt.Errorf("платеж другого филиала: %w", ErrForbidden)
	}
	if payment.IsPaid() && payment.Order.Status == models.OrderStatusCreated && s.fulfiller != nil {
		// Оплачен, но сертификат не выпущен: повторяем выпуск
		log.Printf("🔁 Повторный выпуск сертификата по заказу %s (%s)", payment.Order.OrderNumber, actor.Label())
		if err := s.fulfiller.Fulfill(context.WithoutCancel(ctx), payment.OrderID); err != nil {
			log.Printf("❌ Ошибка повторного выпуска сертификата по заказу %s: %v", payment.OrderID, err)
		}
		return s.confirmation(ctx, paymentID)
	}
	return s.MarkPaymentAsPaid(ctx, paymentID, actor.Label())
}
