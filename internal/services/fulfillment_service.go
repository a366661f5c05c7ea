package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"giftspa/server/internal/models"
)

// FulfillmentService выпуск сертификата после оплаты: PDF, статусы, доставка
type FulfillmentService struct {
	db       *gorm.DB
	renderer *CertificateRenderer
	storage  *FileStorage
	email    *EmailClient
	whatsapp *WhatsAppClient
	events   *EventPublisher
}

// NewFulfillmentService создает новый сервис выпуска
func NewFulfillmentService(db *gorm.DB, renderer *CertificateRenderer, storage *FileStorage,
	email *EmailClient, whatsapp *WhatsAppClient, events *EventPublisher) *FulfillmentService {
	return &FulfillmentService{
		db:       db,
		renderer: renderer,
		storage:  storage,
		email:    email,
		whatsapp: whatsapp,
		events:   events,
	}
}

// Fulfill рисует PDF, сохраняет путь на сертификате, помечает заказ fulfilled и доставляет.
// Ошибки доставки только логируются: оплата и выпуск не откатываются
func (s *FulfillmentService) Fulfill(ctx context.Context, orderID string) error {
	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Company").
		Preload("Certificate").
		Preload("Certificate.Template").
		First(&order, "id = ?", orderID).Error; err != nil {
		return notFound(err, "заказ")
	}
	if !order.IsPaid() {
		return fmt.Errorf("заказ %s не оплачен: %w", order.OrderNumber, ErrForbidden)
	}
	if order.Certificate == nil || order.Company == nil {
		return fmt.Errorf("заказ %s без сертификата или филиала", order.OrderNumber)
	}
	cert := order.Certificate

	view := CertificateView{
		Title:         cert.Name,
		Code:          cert.Code,
		RecipientName: cert.RecipientName,
		SenderName:    cert.SenderName,
		Message:       cert.Message,
		Amount:        cert.Price,
		Currency:      cert.Currency,
		CompanyLabel:  order.Company.Label,
		Address:       order.Company.Address,
		ValidUntil:    cert.FinishDate,
	}
	if cert.Template != nil {
		view.Background = cert.Template.BackgroundURL
		view.TextColor = cert.Template.TextColor
		view.Font = cert.Template.Font
	}

	pdf, err := s.renderer.Render(ctx, view)
	if err != nil {
		return err
	}
	relPath, err := s.storage.Save(fmt.Sprintf("certificates/%s.pdf", cert.ID), pdf)
	if err != nil {
		return err
	}

	var event *models.OrderEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Certificate{}).Where("id = ?", cert.ID).Update("file_url", relPath).Error; err != nil {
			return fmt.Errorf("ошибка сохранения пути сертификата: %w", err)
		}
		if err := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, models.OrderStatusCreated).
			Update("status", models.OrderStatusFulfilled).Error; err != nil {
			return fmt.Errorf("ошибка обновления статуса заказа: %w", err)
		}
		var err error
		event, err = recordEvent(tx, order.ID, order.CompanyID, models.EventCertificateFulfilled, "system",
			map[string]interface{}{"certificate_id": cert.ID, "file_url": relPath, "delivery_method": order.DeliveryMethod})
		return err
	})
	if err != nil {
		return err
	}
	cert.FileURL = relPath
	s.events.Publish(*event)
	log.Printf("✅ Сертификат %s выпущен (заказ %s, %d байт)", cert.Code, order.OrderNumber, len(pdf))

	s.deliver(ctx, &order, pdf)
	return nil
}

func (s *FulfillmentService) deliver(ctx context.Context, order *models.Order, pdf []byte) {
	cert := order.Certificate
	fileName := cert.Code + ".pdf"

	switch order.DeliveryMethod {
	case models.DeliveryEmail:
		if !s.email.Configured() {
			log.Printf("⚠️ Почта не настроена, сертификат %s не отправлен на %s", cert.Code, order.DeliveryContact)
			return
		}
		err := s.email.Send(ctx, EmailMessage{
			To:          order.DeliveryContact,
			Subject:     fmt.Sprintf("Ваш подарочный сертификат %s", cert.Code),
			HTML:        certificateEmailHTML(order),
			Attachments: []EmailAttachment{{Filename: fileName, Content: pdf}},
		})
		if err != nil {
			log.Printf("❌ Ошибка отправки сертификата %s на email %s: %v", cert.Code, order.DeliveryContact, err)
			return
		}
		log.Printf("📧 Сертификат %s отправлен на %s", cert.Code, order.DeliveryContact)

	case models.DeliveryWhatsApp:
		if s.whatsapp == nil || !order.Company.HasWhatsApp() {
			log.Printf("⚠️ WhatsApp не подключен у филиала %s, сертификат %s не отправлен", order.Company.Label, cert.Code)
			return
		}
		inst := WhatsAppInstance{ID: order.Company.WhatsAppInstanceID, Token: order.Company.WhatsAppToken}

		// Текст и файл отправляются независимо друг от друга
		if err := s.whatsapp.SendMessage(ctx, inst, order.DeliveryContact, certificateSummary(order)); err != nil {
			log.Printf("❌ WhatsApp: ошибка отправки текста по сертификату %s: %v", cert.Code, err)
		}
		if err := s.whatsapp.SendFile(ctx, inst, order.DeliveryContact, fileName, cert.Name, pdf); err != nil {
			log.Printf("❌ WhatsApp: ошибка отправки PDF сертификата %s: %v", cert.Code, err)
		} else {
			log.Printf("💬 Сертификат %s отправлен в WhatsApp", cert.Code)
		}

	case models.DeliveryDownload:
		// Только скачивание через /api/certificates/:id/download
	}
}

func certificateSummary(order *models.Order) string {
	cert := order.Certificate
	var b strings.Builder
	fmt.Fprintf(&b, "Подарочный сертификат %s\n", cert.Code)
	fmt.Fprintf(&b, "%s\n", cert.Name)
	fmt.Fprintf(&b, "Сумма: %s\n", FormatMoney(cert.Price, cert.Currency))
	if cert.RecipientName != "" {
		fmt.Fprintf(&b, "Для: %s\n", cert.RecipientName)
	}
	fmt.Fprintf(&b, "Филиал: %s, %s\n", order.Company.Label, order.Company.Address)
	fmt.Fprintf(&b, "Действителен до %s", cert.FinishDate.In(time.UTC).Format("02.01.2006"))
	return b.String()
}

func certificateEmailHTML(order *models.Order) string {
	lines := strings.Split(certificateSummary(order), "\n")
	for i := range lines {
		lines[i] = html.EscapeString(lines[i])
	}
	return "<p>Здравствуйте!</p><p>" + strings.Join(lines, "<br>") + "</p><p>PDF сертификата во вложении.</p>"
}
