package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"giftspa/server/internal/models"
)

// kafkaSecurity SASL/PLAIN + TLS (Aiven). При SASL TLS включается всегда
func kafkaSecurity(username, password, caCert string) (sasl.Mechanism, *tls.Config) {
	var mechanism sasl.Mechanism
	if username != "" && password != "" {
		mechanism = plain.Mechanism{
			Username: username,
			Password: password,
		}
	}

	if mechanism == nil && caCert == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM([]byte(caCert)); ok {
			tlsConfig.RootCAs = caCertPool
		} else {
			log.Printf("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}
	return mechanism, tlsConfig
}

// CreateKafkaDialer dialer для Reader'а
func CreateKafkaDialer(username, password, caCert string) *kafka.Dialer {
	mechanism, tlsConfig := kafkaSecurity(username, password, caCert)
	dialer := &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		SASLMechanism: mechanism,
		TLS:           tlsConfig,
	}
	if mechanism != nil {
		log.Printf("🔐 Kafka: SASL/PLAIN аутентификация включена (username: %s)", username)
	}
	if tlsConfig != nil {
		log.Printf("🔒 Kafka: TLS включен")
	}
	return dialer
}

// CreateKafkaTransport transport для Writer'а с теми же SASL/TLS настройками
func CreateKafkaTransport(username, password, caCert string) *kafka.Transport {
	mechanism, tlsConfig := kafkaSecurity(username, password, caCert)
	return &kafka.Transport{
		DialTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
		ClientID:    "giftspa-server",
		SASL:        mechanism,
		TLS:         tlsConfig,
	}
}

// ParseKafkaBrokers парсит строку с брокерами (может быть через запятую)
func ParseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return []string{}
	}
	brokerList := strings.Split(strings.ReplaceAll(brokers, " ", ""), ",")
	var result []string
	for _, broker := range brokerList {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// KafkaEventWriter публикует события заказов в топик. Ключ сообщения = ID заказа,
// поэтому события одного заказа попадают в одну партицию по порядку
type KafkaEventWriter struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaEventWriter возвращает nil, если брокеры не заданы
func NewKafkaEventWriter(brokers, topic, username, password, caCert string) *KafkaEventWriter {
	brokerList := ParseKafkaBrokers(brokers)
	if len(brokerList) == 0 {
		return nil
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerList...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Transport:              CreateKafkaTransport(username, password, caCert),
	}

	log.Printf("📡 Kafka writer: topic=%s, brokers=%v", topic, brokerList)
	return &KafkaEventWriter{writer: writer, topic: topic}
}

// Name реализует services.EventSink
func (w *KafkaEventWriter) Name() string {
	return "kafka"
}

// PublishOrderEvent реализует services.EventSink
func (w *KafkaEventWriter) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	return w.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

func (w *KafkaEventWriter) Close() error {
	if w == nil {
		return nil
	}
	return w.writer.Close()
}
