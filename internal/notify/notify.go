// Package notify fans out settlement events to audit and notification sinks.
// Publishing never blocks: the core state transition that produced an event
// must not wait on a slow consumer, so a full queue drops the event with a
// warning instead of stalling.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/internal/log"
	"github.com/custodia-tech/poolvault/pkg/asset"
)

type Kind string

const (
	DepositClaimed      Kind = "deposit_claimed"
	WithdrawalApproved  Kind = "withdrawal_approved"
	WithdrawalRejected  Kind = "withdrawal_rejected"
	WithdrawalCompleted Kind = "withdrawal_completed"
	WithdrawalFailed    Kind = "withdrawal_failed"
)

// Event is one settlement state transition.
type Event struct {
	Kind   Kind            `json:"kind"`
	UserID string          `json:"user_id"`
	Asset  asset.Asset     `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Ref    string          `json:"ref"` // deposit or withdrawal ID
	Reason string          `json:"reason,omitempty"`
	At     time.Time       `json:"at"`
}

// Sink consumes delivered events. A sink runs on the bus goroutine, so it
// should return quickly; anything slow belongs behind its own queue.
type Sink interface {
	Deliver(e Event)
}

type Bus struct {
	ch     chan Event
	sinks  []Sink
	logger zerolog.Logger

	wg   sync.WaitGroup
	once sync.Once
}

func NewBus(buffer int, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		ch:     make(chan Event, buffer),
		sinks:  sinks,
		logger: log.Notify,
	}
}

// Start launches the dispatch goroutine.
func (b *Bus) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range b.ch {
			for _, s := range b.sinks {
				s.Deliver(e)
			}
		}
	}()
}

// Publish enqueues an event without blocking. Events published after Close
// or into a full queue are dropped.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	defer func() {
		// Send on a closed channel: the producer raced Close during
		// shutdown. Dropping the event is the intended outcome.
		if recover() != nil {
			b.logger.Warn().Str("kind", string(e.Kind)).Msg("Event dropped, bus closed")
		}
	}()
	select {
	case b.ch <- e:
	default:
		b.logger.Warn().Str("kind", string(e.Kind)).Str("ref", e.Ref).Msg("Event dropped, queue full")
	}
}

// Close stops the dispatcher after draining queued events.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.ch) })
	b.wg.Wait()
}

// AuditSink writes every event to the structured log, giving operators a
// durable trail of claims, approvals, and refunds.
type AuditSink struct {
	logger zerolog.Logger
}

func NewAuditSink() *AuditSink {
	return &AuditSink{logger: log.Notify}
}

func (s *AuditSink) Deliver(e Event) {
	s.logger.Info().
		Str("kind", string(e.Kind)).
		Str("user_id", e.UserID).
		Str("asset", e.Asset.String()).
		Str("amount", e.Amount.String()).
		Str("ref", e.Ref).
		Str("reason", e.Reason).
		Time("at", e.At).
		Msg("Settlement event")
}
