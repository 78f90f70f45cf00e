package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "gastos/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	oldConn := c.conn
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	if oldConn != nil && !oldConn.IsClosed() {
		oldConn.Close()
	}
	return nil
}

func setup(channel *amqp091.Channel, exchangeName, queueName string) error {
	// Declare exchange
	err := channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Bind queue to exchange, routing key is the queue name
	err = channel.QueueBind(queueName, queueName, exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishRefreshRequest enqueues a dataset refresh for the worker
func (c *Client) PublishRefreshRequest(ctx context.Context, reason, requestID string) error {
	body, err := NewRefreshRequestMessage(reason, requestID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published refresh request",
		applog.FieldComponent, applog.ComponentAMQP,
		"reason", reason,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishDatasetRefreshed implements services.Notifier
func (c *Client) PublishDatasetRefreshed(ctx context.Context, records int, source string) error {
	body, err := NewDatasetRefreshedMessage(records, source).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RoutingKeyRefreshed, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published dataset refreshed event",
		applog.FieldComponent, applog.ComponentAMQP,
		applog.FieldRecords, records,
		applog.FieldSource, source)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", c.exchangeName, ErrCircuitOpen)
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		c.recordFailure()
		return fmt.Errorf("publish message: channel not open")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.reconnectAsync()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeRefreshRequests consumes refresh requests until ctx is done,
// reconnecting with exponential backoff when the broker goes away.
func (c *Client) ConsumeRefreshRequests(ctx context.Context, handler func(context.Context, *RefreshRequestMessage) error) error {
	return c.consume(ctx, c.openRefreshRequests, func(ctx context.Context, d amqp091.Delivery) {
		handleRefreshRequest(ctx, d, handler)
	})
}

// ConsumeDatasetRefreshed delivers dataset refreshed events to handler until
// ctx is done. Each call binds its own exclusive queue, so every consuming
// process sees every event.
func (c *Client) ConsumeDatasetRefreshed(ctx context.Context, handler func(context.Context, *DatasetRefreshedMessage) error) error {
	return c.consume(ctx, c.openRefreshedEvents, func(ctx context.Context, d amqp091.Delivery) {
		handleDatasetRefreshed(ctx, d, handler)
	})
}

type openFunc func(*amqp091.Channel) (<-chan amqp091.Delivery, string, error)

func (c *Client) consume(ctx context.Context, open openFunc, handle func(context.Context, amqp091.Delivery)) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, open, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP consumer disconnected, reconnecting",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.reconnectIfClosed(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldError, err)
			continue
		}
		attempt = 0
	}
}

// reconnectIfClosed dials again unless another consumer or the publisher
// already restored the connection.
func (c *Client) reconnectIfClosed() error {
	c.mu.Lock()
	alive := c.conn != nil && !c.conn.IsClosed()
	c.mu.Unlock()
	if alive {
		return nil
	}
	return c.connect()
}

func (c *Client) openRefreshRequests(channel *amqp091.Channel) (<-chan amqp091.Delivery, string, error) {
	// One refresh at a time is enough.
	if err := channel.Qos(1, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}
	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, "", fmt.Errorf("start consuming: %w", err)
	}
	return msgs, c.queueName, nil
}

func (c *Client) openRefreshedEvents(channel *amqp091.Channel) (<-chan amqp091.Delivery, string, error) {
	q, err := channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, "", fmt.Errorf("declare event queue: %w", err)
	}
	if err := channel.QueueBind(q.Name, RoutingKeyRefreshed, c.exchangeName, false, nil); err != nil {
		return nil, "", fmt.Errorf("bind event queue: %w", err)
	}
	msgs, err := channel.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("start consuming events: %w", err)
	}
	return msgs, q.Name, nil
}

func (c *Client) consumeOnce(ctx context.Context, open openFunc, handle func(context.Context, amqp091.Delivery)) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return errors.New("connection closed")
	}

	msgs, queue, err := open(channel)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Started consuming",
		applog.FieldComponent, applog.ComponentAMQP,
		"queue", queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed: connection closed")
			}
			handle(ctx, delivery)
		}
	}
}

// handleRefreshRequest acks a handled request and rejects, without requeue,
// one that is malformed or fails. The next request or scheduled tick tries
// again.
func handleRefreshRequest(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *RefreshRequestMessage) error) {
	msg, err := RefreshRequestMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err)
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle refresh request",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err,
			"reason", msg.Reason)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// handleDatasetRefreshed runs handler for an event. Events are auto-acked;
// failures are only logged.
func handleDatasetRefreshed(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *DatasetRefreshedMessage) error) {
	msg, err := DatasetRefreshedMessageFromJSON(d.Body)
	if err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal dataset refreshed event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err)
		return
	}
	if err := handler(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to handle dataset refreshed event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err,
			applog.FieldSource, msg.Source)
	}
}

func (c *Client) reconnectAsync() {
	go func() {
		for attempt := 0; attempt < maxFailures; attempt++ {
			time.Sleep(exponentialBackoff(attempt))
			if err := c.connect(); err == nil {
				slog.Info("AMQP publisher reconnected",
					applog.FieldComponent, applog.ComponentAMQP)
				return
			}
		}
	}()
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
