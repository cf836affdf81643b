// Package queue is the durable task transport between the dispatcher and the
// worker pools, backed by RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Retry policy applied to both publishing and consuming: bounded attempts
// with exponential backoff, never a silent drop.
const (
	MaxAttempts = 3
	BackoffBase = 2 * time.Second
)

// BackoffFor returns the wait before the given (1-based) retry attempt
func BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BackoffBase * time.Duration(math.Pow(2, float64(attempt-1)))
}

type Client struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared map[string]bool
	logger   *logrus.Logger
}

// Dial connects to the broker and opens a publishing channel
func Dial(url string, logger *logrus.Logger) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	logger.Info("RabbitMQ connection established")

	return &Client{
		conn:     conn,
		channel:  channel,
		declared: make(map[string]bool),
		logger:   logger,
	}, nil
}

// Close shuts down the channel and connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ensureQueue declares the durable queue once per process
func (c *Client) ensureQueue(queue string) error {
	if c.declared[queue] {
		return nil
	}

	_, err := c.channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	c.declared[queue] = true
	return nil
}

// Publish enqueues one JSON task message
func (c *Client) Publish(ctx context.Context, queue string, task interface{}) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return c.publishRaw(ctx, queue, body, nil)
}

// PublishWithRetry enqueues a task with bounded retries and exponential
// backoff. Used where scheduling must be at-least-once (enrichment tasks).
func (c *Client) PublishWithRetry(ctx context.Context, queue string, task interface{}) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if lastErr = c.publishRaw(ctx, queue, body, nil); lastErr == nil {
			return nil
		}

		c.logger.WithFields(logrus.Fields{
			"queue":   queue,
			"attempt": attempt,
			"error":   lastErr,
		}).Warn("Publish failed, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BackoffFor(attempt)):
		}
	}

	return fmt.Errorf("failed to publish to %s after %d attempts: %w", queue, MaxAttempts, lastErr)
}

func (c *Client) publishRaw(ctx context.Context, queue string, body []byte, headers amqp091.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureQueue(queue); err != nil {
		return err
	}

	err := c.channel.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	c.logger.WithField("queue", queue).Debug("Published task")
	return nil
}
