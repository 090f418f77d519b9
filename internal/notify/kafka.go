package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

// EmailEvent is consumed by the external mailer service.
type EmailEvent struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// KafkaSender publishes email events to the notification topic instead of
// talking to an SMTP server directly.
type KafkaSender struct {
	producer *kafka.Producer
	topic    string
	log      *logrus.Logger
}

func NewKafkaSender(brokers, topic string, log *logrus.Logger) (*KafkaSender, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaSender{producer: producer, topic: topic, log: log}, nil
}

func (s *KafkaSender) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(EmailEvent{
		To:       to,
		Subject:  subject,
		Body:     body,
		QueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal email event: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(to),
		Value:          payload,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("produce email event: %w", err)
	}

	select {
	case e := <-deliveryChan:
		msg := e.(*kafka.Message)
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", msg.TopicPartition.Error)
		}
		s.log.WithFields(logrus.Fields{
			"topic":     s.topic,
			"partition": msg.TopicPartition.Partition,
			"offset":    msg.TopicPartition.Offset,
			"to":        to,
		}).Debug("Email event delivered")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *KafkaSender) Close() {
	s.producer.Flush(5000)
	s.producer.Close()
}
