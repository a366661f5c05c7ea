package services

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"giftspa/server/internal/models"
)

var ruPrinter = message.NewPrinter(language.Russian)

// FormatMoney форматирует сумму с разделителями разрядов: "48 000 ₸"
func FormatMoney(amount int64, currency string) string {
	formatted := ruPrinter.Sprintf("%d", amount)
	if currency == "" || currency == models.DefaultCurrency {
		return formatted + " ₸"
	}
	return formatted + " " + currency
}
