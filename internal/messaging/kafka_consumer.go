package messaging

import (
	"context"
	"fmt"
	"log"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// KafkaConfig names the broker and topic of the booking-created feed.
type KafkaConfig struct {
	Broker  string
	GroupID string
	Topic   string
}

// KafkaConsumer feeds booking-created events into a BookingQueue.
type KafkaConsumer struct {
	consumer *kafka.Consumer
	queue    *BookingQueue
	topic    string
}

func NewKafkaConsumer(cfg KafkaConfig, queue *BookingQueue) (*KafkaConsumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Broker,
		"group.id":          cfg.GroupID,
		"auto.offset.reset": "latest",
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if err := consumer.SubscribeTopics([]string{cfg.Topic}, nil); err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Topic, err)
	}
	return &KafkaConsumer{consumer: consumer, queue: queue, topic: cfg.Topic}, nil
}

// Run polls until ctx is cancelled or the client reports a fatal error, then
// closes the consumer.
func (c *KafkaConsumer) Run(ctx context.Context) {
	log.Printf("[Kafka] waiting for %s events", c.topic)
	defer func() {
		if err := c.consumer.Close(); err != nil {
			log.Printf("[Kafka] close consumer: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !c.handle(ctx, c.consumer.Poll(100)) {
			return
		}
	}
}

// handle processes one polled event and reports whether polling should continue.
func (c *KafkaConsumer) handle(ctx context.Context, ev kafka.Event) bool {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := c.queue.HandleMessage(ctx, e.Value); err != nil {
			log.Printf("[Kafka] dropped %s message at %v: %v", c.topic, e.TopicPartition, err)
		}
	case kafka.Error:
		log.Printf("[Kafka] consumer error: %v", e)
		return !e.IsFatal()
	case nil:
	default:
	}
	return true
}
