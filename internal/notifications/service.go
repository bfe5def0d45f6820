package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InvitationSender delivers signer invitations.
type InvitationSender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// EventPublisher fans out lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// DispatcherConfig sizes the delivery queue.
type DispatcherConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type job struct {
	invitation *Invitation
	event      *Event
}

// Dispatcher delivers invitations and events in the background. Callers
// never block on delivery: a full queue drops the message, failures are
// logged and never retried.
type Dispatcher struct {
	senders    []InvitationSender
	publishers []EventPublisher
	cfg        DispatcherConfig
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts the delivery workers.
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger, senders []InvitationSender, publishers []EventPublisher) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	d := &Dispatcher{
		senders:    senders,
		publishers: publishers,
		cfg:        cfg,
		logger:     logger,
		queue:      make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// NotifySigner queues an invitation.
func (d *Dispatcher) NotifySigner(inv Invitation) {
	d.enqueue(job{invitation: &inv}, zap.String("signer_email", inv.SignerEmail))
}

// Publish queues a lifecycle event.
func (d *Dispatcher) Publish(ev Event) {
	d.enqueue(job{event: &ev}, zap.String("event", string(ev.Type)))
}

func (d *Dispatcher) enqueue(j job, field zap.Field) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping notification", field)
		return
	}
	select {
	case d.queue <- j:
	default:
		d.logger.Warn("Notification queue full, dropping notification", field)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	if inv := j.invitation; inv != nil {
		for _, s := range d.senders {
			if err := s.SendInvitation(ctx, *inv); err != nil {
				d.logger.Error("Failed to send invitation",
					zap.String("document_id", inv.DocumentID.String()),
					zap.String("signer_email", inv.SignerEmail),
					zap.Error(err))
			}
		}
	}
	if ev := j.event; ev != nil {
		for _, p := range d.publishers {
			if err := p.PublishEvent(ctx, *ev); err != nil {
				d.logger.Error("Failed to publish event",
					zap.String("document_id", ev.DocumentID.String()),
					zap.String("event", string(ev.Type)),
					zap.Error(err))
			}
		}
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
