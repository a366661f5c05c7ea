package services

import (
	"github.com/shopspring/decimal"

	"giftspa/server/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DiscountedPrice цена услуги со скидкой, округленная до целого тенге (половина вверх)
func DiscountedPrice(price int64, discountPercent int) int64 {
	if discountPercent < 0 {
		discountPercent = 0
	}
	if discountPercent > 100 {
		discountPercent = 100
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(discountPercent))).Div(hundred)
	return decimal.NewFromInt(price).Mul(factor).Round(0).IntPart()
}

// ServiceLineFromProcedure строка расшифровки сертификата по услуге филиала
func ServiceLineFromProcedure(p models.SpaProcedure) models.CertificateServiceLine {
	return models.CertificateServiceLine{
		ServiceID:       p.ID,
		Name:            p.Name,
		Price:           p.Price,
		DiscountPercent: p.DiscountPercent,
		FinalPrice:      DiscountedPrice(p.Price, p.DiscountPercent),
		DurationMinutes: p.DurationMinutes,
	}
}

// ProcedureTotal сумма процедурного сертификата: Σ round(price × (1 − discount/100))
func ProcedureTotal(lines []models.CertificateServiceLine) int64 {
	var total int64
	for _, line := range lines {
		total += DiscountedPrice(line.Price, line.DiscountPercent)
	}
	return total
}
