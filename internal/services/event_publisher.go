package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"giftspa/server/internal/models"
)

// EventSink получатель событий заказа (Kafka, WebSocket админки)
type EventSink interface {
	Name() string
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

// EventPublisher раздает события заказов подписчикам.
// Отправка асинхронная и никогда не влияет на результат запроса
type EventPublisher struct {
	sinks   []EventSink
	timeout time.Duration
}

// NewEventPublisher создает паблишер, nil-получатели пропускаются
func NewEventPublisher(sinks ...EventSink) *EventPublisher {
	p := &EventPublisher{timeout: 5 * time.Second}
	for _, sink := range sinks {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
	return p
}

// Publish отправляет событие во все подписчики в фоне
func (p *EventPublisher) Publish(event models.OrderEvent) {
	if p == nil {
		return
	}
	for _, sink := range p.sinks {
		go func(sink EventSink) {
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			defer cancel()
			if err := sink.PublishOrderEvent(ctx, event); err != nil {
				log.Printf("⚠️ Не удалось отправить событие %s (заказ %s) в %s: %v",
					event.Type, event.OrderID, sink.Name(), err)
			}
		}(sink)
	}
}

// recordEvent пишет событие в журнал внутри текущей транзакции
func recordEvent(tx *gorm.DB, orderID, companyID, eventType, actor string, payload interface{}) (*models.OrderEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", eventType, err)
	}
	event := &models.OrderEvent{
		OrderID:   orderID,
		CompanyID: companyID,
		Type:      eventType,
		Actor:     actor,
		Payload:   datatypes.JSON(raw),
	}
	if err := tx.Create(event).Error; err != nil {
		return nil, fmt.Errorf("ошибка записи события %s: %w", eventType, err)
	}
	return event, nil
}
