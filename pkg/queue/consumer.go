package queue

import (
	"context"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const attemptsHeader = "x-attempts"

// HandlerFunc processes one task body. A returned error triggers the retry
// policy; nil acknowledges the task.
type HandlerFunc func(ctx context.Context, body []byte) error

// FailureRecorder surfaces retry-exhausted tasks for operator visibility
type FailureRecorder interface {
	RecordTaskFailure(ctx context.Context, queue string, payload []byte, taskErr error, attempts int) error
}

// Consumer drains one queue, applying the shared retry/backoff policy. Failed
// deliveries are re-published with an incremented attempt header rather than
// rejected, so redelivery order never blocks the queue head.
type Consumer struct {
	client   *Client
	failures FailureRecorder
	logger   *logrus.Logger
}

func NewConsumer(client *Client, failures FailureRecorder, logger *logrus.Logger) *Consumer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Consumer{
		client:   client,
		failures: failures,
		logger:   logger,
	}
}

// Consume blocks processing deliveries until the context is cancelled
func (c *Consumer) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	c.client.mu.Lock()
	if err := c.client.ensureQueue(queue); err != nil {
		c.client.mu.Unlock()
		return err
	}
	c.client.mu.Unlock()

	channel, err := c.client.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	if err := channel.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := channel.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	log := c.logger.WithField("queue", queue)
	log.Info("Consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, stopping consumer")
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn("Delivery channel closed")
				return nil
			}
			c.handleDelivery(ctx, queue, delivery, handler)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, queue string, delivery amqp091.Delivery, handler HandlerFunc) {
	attempt := attemptsFrom(delivery.Headers) + 1
	log := c.logger.WithFields(logrus.Fields{
		"queue":   queue,
		"attempt": attempt,
	})

	err := handler(ctx, delivery.Body)
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.WithError(ackErr).Error("Failed to ack delivery")
		}
		return
	}

	log.WithError(err).Error("Task handler failed")

	if attempt >= MaxAttempts {
		// Exhausted: record for operators, then drop from the queue.
		if c.failures != nil {
			if recErr := c.failures.RecordTaskFailure(ctx, queue, delivery.Body, err, attempt); recErr != nil {
				log.WithError(recErr).Error("Failed to record task failure")
			}
		}
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.WithError(ackErr).Error("Failed to ack exhausted delivery")
		}
		return
	}

	select {
	case <-ctx.Done():
		// Requeue unprocessed work on shutdown.
		_ = delivery.Nack(false, true)
		return
	case <-time.After(BackoffFor(attempt)):
	}

	headers := amqp091.Table{attemptsHeader: int32(attempt)}
	if pubErr := c.client.publishRaw(ctx, queue, delivery.Body, headers); pubErr != nil {
		log.WithError(pubErr).Error("Failed to re-publish for retry, requeueing delivery")
		_ = delivery.Nack(false, true)
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		log.WithError(ackErr).Error("Failed to ack retried delivery")
	}
}

func attemptsFrom(headers amqp091.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
