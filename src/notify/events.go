// Package notify fans moderation events out to external sinks without
// blocking the request that produced them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/stake-plus/trustink/src/logging"
	"go.uber.org/zap"
)

type EventType string

const (
	SubmissionQueued   EventType = "submission.queued"
	SubmissionFlagged  EventType = "submission.flagged"
	SubmissionDecided  EventType = "submission.decided"
	CertificateIssued  EventType = "certificate.issued"
	CertificateRevoked EventType = "certificate.revoked"
)

type Event struct {
	Type           EventType `json:"type"`
	SubmissionID   string    `json:"submission_id,omitempty"`
	CertificateID  string    `json:"certificate_id,omitempty"`
	VerificationID string    `json:"verification_id,omitempty"`
	CreatorID      string    `json:"creator_id,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Status         string    `json:"status,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher accepts events; it never blocks and never fails the caller.
type Publisher interface {
	Publish(Event)
}

type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

const sendTimeout = 10 * time.Second

// Dispatcher queues events on a bounded channel drained by one worker.
// Events are dropped with a warning when the queue is full.
type Dispatcher struct {
	events chan Event
	sinks  []Sink
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, size int, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	d := &Dispatcher{
		events: make(chan Event, size),
		sinks:  sinks,
		log:    logging.Component(logger, "notify"),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Publish(e Event) {
	if d == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- e:
	default:
		d.log.Warn("Event queue full, dropping event", zap.String("type", string(e.Type)))
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.events {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			if err := s.Send(ctx, e); err != nil {
				d.log.Warn("Event delivery failed",
					zap.String("sink", s.Name()),
					zap.String("type", string(e.Type)),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}
