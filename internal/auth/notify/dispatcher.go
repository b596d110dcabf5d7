package notify

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher fans messages out to a Sender from a bounded queue so slow SMTP
// relays never block a login request. When the queue is full Enqueue reports
// false and the caller surfaces an "unconfirmed" delivery status instead of
// failing the request.
type Dispatcher struct {
	Sender      Sender
	Logger      *slog.Logger
	SendTimeout time.Duration

	queue  chan Message
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity.
// If capacity is 0 or negative, defaults to 64.
func NewDispatcher(sender Sender, logger *slog.Logger, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = 64
	}

	return &Dispatcher{
		Sender:      sender,
		Logger:      logger,
		SendTimeout: 15 * time.Second,
		queue:       make(chan Message, capacity),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut down.
func (d *Dispatcher) Start() {
	go d.run()
	d.Logger.Info("notify dispatcher started", "capacity", cap(d.queue))
}

// Stop drains the queue and blocks until the worker has finished.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.Logger.Info("notify dispatcher stopped")
}

// Enqueue submits a message for delivery. Returns false if the queue is full,
// in which case the message is dropped and logged.
func (d *Dispatcher) Enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.Logger.Warn("notify queue full, dropping message", "to", msg.To, "subject", msg.Subject)
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.stopCh:
			// Drain anything already queued before exiting.
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.SendTimeout)
	defer cancel()

	if err := d.Sender.Send(ctx, msg); err != nil {
		d.Logger.Error("notification delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}
	d.Logger.Debug("notification delivered", "to", msg.To, "subject", msg.Subject)
}
