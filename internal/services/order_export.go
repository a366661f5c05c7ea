package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"giftspa/server/internal/models"
)

// OrderListFilter фильтры списка заказов админки
type OrderListFilter struct {
	CompanyID     string
	PaymentStatus string
	Status        string
	Search        string // номер заказа, код сертификата, email или телефон
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// ListOrders заказы для админки. Менеджер видит только свой филиал
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, f OrderListFilter) ([]models.Order, int64, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	query := s.db.WithContext(ctx).Model(&models.Order{})
	if !actor.IsGlobal() {
		if actor.CompanyID == "" {
			return nil, 0, fmt.Errorf("менеджер без филиала: %w", ErrForbidden)
		}
		if f.CompanyID != "" && f.CompanyID != actor.CompanyID {
			return nil, 0, fmt.Errorf("нет доступа к филиалу %s: %w", f.CompanyID, ErrForbidden)
		}
		f.CompanyID = actor.CompanyID
	}

	if f.CompanyID != "" && f.CompanyID != "all" {
		query = query.Where("orders.company_id = ?", f.CompanyID)
	}
	if f.PaymentStatus != "" {
		query = query.Where("orders.payment_status = ?", f.PaymentStatus)
	}
	if f.Status != "" {
		query = query.Where("orders.status = ?", f.Status)
	}
	if f.From != nil {
		query = query.Where("orders.created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("orders.created_at < ?", *f.To)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.
			Joins("LEFT JOIN certificates ON certificates.id = orders.certificate_id").
			Joins("LEFT JOIN clients ON clients.id = orders.client_id").
			Where("LOWER(orders.order_number) LIKE ? OR LOWER(certificates.code) LIKE ? OR LOWER(clients.email) LIKE ? OR clients.phone LIKE ?",
				pattern, pattern, pattern, pattern)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета заказов: %w", err)
	}

	var orders []models.Order
	if err := query.
		Preload("Client").
		Preload("Certificate").
		Preload("Company").
		Preload("UtmTag").
		Order("orders.created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка загрузки заказов: %w", err)
	}
	return orders, total, nil
}

// ExportOrdersXLSX выгрузка заказов в Excel
func ExportOrdersXLSX(orders []models.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Заказы"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{"Номер заказа", "Дата", "Филиал", "Код сертификата", "Тип", "Покупатель", "Email", "Телефон",
		"Получатель", "Сумма", "Валюта", "Оплата", "Статус", "Доставка", "UTM source", "UTM campaign"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for i, o := range orders {
		row := i + 2
		values := []interface{}{
			o.OrderNumber,
			o.CreatedAt.Format("02.01.2006 15:04"),
			"", "", "", "", "", "", "",
			o.TotalAmount,
			o.Currency,
			string(o.PaymentStatus),
			string(o.Status),
			string(o.DeliveryMethod),
			"", "",
		}
		if o.Company != nil {
			values[2] = o.Company.Label
		}
		if o.Certificate != nil {
			values[3] = o.Certificate.Code
			values[4] = string(o.Certificate.Type)
			values[8] = o.Certificate.RecipientName
		}
		if o.Client != nil {
			values[5] = o.Client.FullName()
			if o.Client.Email != nil {
				values[6] = *o.Client.Email
			}
			if o.Client.Phone != nil {
				values[7] = *o.Client.Phone
			}
		}
		if o.UtmTag != nil {
			values[14] = o.UtmTag.Source
			values[15] = o.UtmTag.Campaign
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("ошибка записи Excel: %w", err)
	}
	return buf.Bytes(), nil
}
