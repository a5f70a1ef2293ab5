package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

// Dispatcher queues messages for a pool of background workers.
type Dispatcher struct {
	sender  Sender
	workers int
	queue   chan Message
	log     *zap.SugaredLogger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count and queue size.
func NewDispatcher(sender Sender, workers, queueSize int, log *zap.SugaredLogger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		sender:  sender,
		workers: workers,
		queue:   make(chan Message, queueSize),
		log:     log,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Infow("mail dispatcher started", "workers", d.workers)
}

// Enqueue schedules msg for delivery without blocking. It reports false when
// the message was dropped because the queue is full or the dispatcher stopped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.log.Warnw("mail dropped, dispatcher stopped", "to", msg.To, "subject", msg.Subject)
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.log.Warnw("mail dropped, queue full", "to", msg.To, "subject", msg.Subject)
		return false
	}
}

// Stop stops accepting messages, delivers what is already queued and waits
// for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("mail dispatcher stopped")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.sender.Send(ctx, msg); err != nil {
			d.log.Errorw("mail delivery failed", "worker", id, "to", msg.To, "subject", msg.Subject, "error", err)
		}
		cancel()
	}
}
