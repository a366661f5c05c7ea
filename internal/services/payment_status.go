package services

import (
	"log"
	"strings"
)

// PaymentOutcome итог статуса провайдера для нашего платежа
type PaymentOutcome string

const (
	OutcomePaid       PaymentOutcome = "paid"
	OutcomeFailed     PaymentOutcome = "failed"
	OutcomeProcessing PaymentOutcome = "processing"
)

// Полный словарь статусов OneVision. Все, чего здесь нет, считается processing
var oneVisionStatusOutcomes = map[string]PaymentOutcome{
	"withdraw":         OutcomePaid,
	"clearing":         OutcomePaid,
	"partial_clearing": OutcomePaid,
	"refill":           OutcomePaid,

	"canceled":       OutcomeFailed,
	"cancel":         OutcomeFailed,
	"error":          OutcomeFailed,
	"refunded":       OutcomeFailed,
	"partial_refund": OutcomeFailed,

	"new":        OutcomeProcessing,
	"created":    OutcomeProcessing,
	"process":    OutcomeProcessing,
	"processing": OutcomeProcessing,
	"pending":    OutcomeProcessing,
	"auth":       OutcomeProcessing,
	"hold":       OutcomeProcessing,
	"3ds":        OutcomeProcessing,
}

// MapProviderStatus переводит статус OneVision в итог. known=false для незнакомых статусов
func MapProviderStatus(status string) (outcome PaymentOutcome, known bool) {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if outcome, ok := oneVisionStatusOutcomes[normalized]; ok {
		return outcome, true
	}
	log.Printf("⚠️ OneVision: неизвестный статус платежа %q, считаем processing", status)
	return OutcomeProcessing, false
}
