package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DispatcherConfig tunes the background delivery worker.
type DispatcherConfig struct {
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher queues events and delivers them from a single background goroutine.
// Publish never blocks: when the queue is full the event is dropped and logged.
type Dispatcher struct {
	sender  Sender
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher starts the delivery worker.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if sender == nil {
		sender = NopSender{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sender:  sender,
		queue:   make(chan Event, cfg.QueueSize),
		timeout: cfg.SendTimeout,
		logger:  logger.With("component", "events"),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(name string, data map[string]any) bool {
	event := Event{
		ID:   uuid.NewString(),
		Name: name,
		Data: data,
		Ts:   time.Now().UnixMilli(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", "event", name)
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.logger.Warn("event queue full, dropping event", "event", name)
		return false
	}
}

// Close stops accepting events and waits for queued ones to be delivered or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, event); err != nil {
		d.logger.Warn("failed to deliver event", "event", event.Name, "id", event.ID, "error", err)
		return
	}
	d.logger.Debug("event delivered", "event", event.Name, "id", event.ID)
}
