package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/models"
)

const readRetryDelay = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer keeps balance caches of every instance coherent: each wallet event
// drops the cached balance of the affected user.
type Consumer struct {
	reader      messageReader
	topic       string
	redisClient redis.RedisClient
	retryDelay  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, redisClient redis.RedisClient) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		topic:       topic,
		redisClient: redisClient,
		retryDelay:  readRetryDelay,
	}
}

// Consume blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) error {
	slog.Info("Kafka consumer started", "topic", c.topic)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer stopped", "topic", c.topic)
				return nil
			}
			slog.Error("failed to read Kafka message", "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var event models.WalletEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		slog.Error("failed to unmarshal wallet event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return
	}

	if !event.Type.AffectsBalance() {
		slog.Debug("wallet event ignored", "type", event.Type, "user_id", event.UserID)
		return
	}

	if _, err := c.redisClient.Incr(ctx, redis.BalanceVersionKey(event.UserID)); err != nil {
		slog.Error("failed to invalidate balance cache", "user_id", event.UserID, "type", event.Type, "error", err)
		return
	}
	slog.Info("balance cache invalidated", "user_id", event.UserID, "type", event.Type)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
