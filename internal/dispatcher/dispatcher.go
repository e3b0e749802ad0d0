// Package dispatcher routes telemetry events to their subscribers. The
// connection manager publishes snapshots and state changes onto it, the job
// tracker publishes lifecycle events, and downstream consumers (worker,
// monitor, metrics sink) register handlers per topic.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Topics published by the core.
const (
	TopicSnapshot         = "snapshot"
	TopicStateChange      = "state_change"
	TopicJobStarted       = "job_started"
	TopicJobEnded         = "job_ended"
	TopicDeliveryPrepared = "delivery_prepared"
)

// Event is one published occurrence on a topic. Payload is topic-specific:
// a core.TelemetrySnapshot for snapshots, a connection.Status for state
// changes, a core.DeliveryRecord for prepared deliveries.
type Event struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc consumes one event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type topicBuffer struct {
	topic string
	ch    chan Event
}

// Dispatcher fans events out to every handler registered on their topic.
type Dispatcher struct {
	logger Logger

	// OTel metrics
	queueSize metric.Int64ObservableGauge
	published metric.Int64Counter
	dropped   metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	buffers  []topicBuffer
}

// noopLogger discards all messages.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// New creates a new Dispatcher with the given logger. A nil logger
// disables dispatcher logging.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	d := &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events queued per topic"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for _, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf.ch)),
					metric.WithAttributes(attribute.String("topic", buf.topic)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.published, err = m.Int64Counter(
		"dispatcher.events.published",
		metric.WithDescription("Total events delivered to handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Subscribe adds a handler for the given topic with optional configuration.
func (d *Dispatcher) Subscribe(topic string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(topic, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(topic, handler)
	}

	d.mu.Lock()
	d.handlers[topic] = append(d.handlers[topic], handler)
	d.mu.Unlock()
}

// Publish delivers an event to every handler subscribed to its topic.
// Events on topics with no subscribers are silently discarded.
func (d *Dispatcher) Publish(topic string, payload any) {
	e := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}

	d.mu.RLock()
	handlers := d.handlers[topic]
	d.mu.RUnlock()

	topicAttr := attribute.String("topic", topic)
	for _, h := range handlers {
		if err := h(e); err != nil {
			d.logger.Error("event handler failed", "topic", topic, "error", err)
		}
		d.published.Add(context.Background(), 1, metric.WithAttributes(topicAttr))
	}
}

// HasSubscribers returns true if at least one handler is subscribed to the topic.
func (d *Dispatcher) HasSubscribers(topic string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[topic]) > 0
}

func (d *Dispatcher) withBuffer(topic string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers = append(d.buffers, topicBuffer{topic: topic, ch: buffer})
	d.mu.Unlock()

	topicAttr := attribute.String("topic", topic)

	go func() {
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "topic", topic, "error", err)
			}
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(topicAttr))
			return fmt.Errorf("queue full: %s", topic)
		}
	}
}

func (d *Dispatcher) withLogging(topic string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "topic", topic)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "topic", topic, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "topic", topic, "duration", time.Since(start))
		}

		return err
	}
}
