package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia-tech/poolvault/pkg/asset"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestPublishDelivers(t *testing.T) {
	sink := &captureSink{}
	bus := NewBus(8, sink)
	bus.Start()

	bus.Publish(Event{
		Kind:   DepositClaimed,
		UserID: "u1",
		Asset:  asset.BTC,
		Amount: decimal.RequireFromString("0.1"),
		Ref:    "dep-1",
	})
	bus.Close()

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
	if got[0].Kind != DepositClaimed || got[0].Ref != "dep-1" {
		t.Errorf("event = %+v", got[0])
	}
	if got[0].At.IsZero() {
		t.Error("At not stamped")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	// No dispatcher running and a single-slot queue: the second publish
	// must drop rather than block.
	bus := NewBus(1, &captureSink{})

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: WithdrawalApproved, Ref: "w1"})
		bus.Publish(Event{Kind: WithdrawalApproved, Ref: "w2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus(8, &captureSink{})
	bus.Start()
	bus.Close()

	// Must not panic the caller.
	bus.Publish(Event{Kind: WithdrawalCompleted, Ref: "w1"})
}
