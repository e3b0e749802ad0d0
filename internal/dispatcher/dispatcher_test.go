package dispatcher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got any
	d.Subscribe(TopicSnapshot, func(e Event) error {
		got = e.Payload
		return nil
	})

	d.Publish(TopicSnapshot, "payload")

	if got != "payload" {
		t.Errorf("expected handler to receive payload, got %v", got)
	}
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// Publishing on a topic nobody listens to must not panic.
	d.Publish(TopicJobEnded, nil)

	if d.HasSubscribers(TopicJobEnded) {
		t.Error("expected no subscribers for job_ended")
	}
}

func TestDispatcher_FanOut(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var calls atomic.Int32
	for range 3 {
		d.Subscribe(TopicStateChange, func(Event) error {
			calls.Add(1)
			return nil
		})
	}

	d.Publish(TopicStateChange, nil)

	if calls.Load() != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls.Load())
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	done := make(chan struct{})
	var count atomic.Int32
	d.Subscribe(TopicSnapshot, func(e Event) error {
		if count.Add(1) == 5 {
			close(done)
		}
		return nil
	}, Buffered(16))

	for range 5 {
		d.Publish(TopicSnapshot, nil)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("buffered handler did not drain queue in time")
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, logger := newTestDispatcher(t)

	release := make(chan struct{})
	d.Subscribe(TopicSnapshot, func(e Event) error {
		<-release
		return nil
	}, Buffered(1))

	// First event occupies the worker, second fills the queue, third drops.
	d.Publish(TopicSnapshot, nil)
	d.Publish(TopicSnapshot, nil)
	d.Publish(TopicSnapshot, nil)
	close(release)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	found := false
	for _, m := range logger.messages {
		if len(m) >= 5 && m[:5] == "ERROR" {
			found = true
		}
	}
	if !found {
		t.Error("expected dropped event to be logged as handler error")
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Subscribe(TopicJobStarted, func(e Event) error {
		return nil
	}, Logged())

	d.Publish(TopicJobStarted, nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.messages) == 0 {
		t.Error("expected debug logging around handler")
	}
}
