package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"giftspa/server/internal/models"
)

// KafkaWSConsumer читает события заказов из Kafka и рассылает их в WebSocket админки.
// У каждого инстанса своя consumer group, чтобы все инстансы получали все события
type KafkaWSConsumer struct {
	topic     string
	groupID   string
	reader    *kafka.Reader
	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	processed int64
}

func NewKafkaWSConsumer(brokers, topic string, hub *Hub, username, password, caCert string) *KafkaWSConsumer {
	brokerList := ParseKafkaBrokers(brokers)
	ctx, cancel := context.WithCancel(context.Background())

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "local"
	}
	groupID := "giftspa-admin-ws-" + hostname

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokerList,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset, // лента живая, историю не догоняем
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      CreateKafkaDialer(username, password, caCert),
	})

	return &KafkaWSConsumer{
		topic:   topic,
		groupID: groupID,
		reader:  reader,
		hub:     hub,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start запускает чтение из Kafka в отдельной горутине
func (kc *KafkaWSConsumer) Start() {
	log.Printf("📡 Kafka WS Consumer запущен: topic=%s, groupID=%s", kc.topic, kc.groupID)

	go func() {
		for {
			msg, err := kc.reader.ReadMessage(kc.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || kc.ctx.Err() != nil {
					log.Println("🛑 Kafka WS Consumer остановлен")
					return
				}
				log.Printf("⚠️ Kafka WS Consumer ошибка чтения: %v", err)
				time.Sleep(1 * time.Second)
				continue
			}
			kc.handle(msg)
		}
	}()
}

func (kc *KafkaWSConsumer) handle(msg kafka.Message) {
	var event models.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("⚠️ Kafka WS Consumer: битое событие offset=%d: %v", msg.Offset, err)
		return
	}
	kc.hub.BroadcastEvent(event.CompanyID, msg.Value)

	if n := atomic.AddInt64(&kc.processed, 1); n%100 == 0 {
		log.Printf("📊 Kafka WS Consumer: обработано %d событий", n)
	}
}

func (kc *KafkaWSConsumer) Stop() error {
	kc.cancel()
	return kc.reader.Close()
}
