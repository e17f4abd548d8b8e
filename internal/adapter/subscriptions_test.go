package adapter

import (
	"context"
	"sync"
	"testing"
	"time"
)

// eventLog is a handler that records events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) serials() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.SerialNo
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestSubscriptions_DeliversInOrder(t *testing.T) {
	s := NewSubscriptions(16, nil)
	log := &eventLog{}

	s.Start("door-1", log.handle, func(ctx context.Context, emit func(Event) bool) {
		for i := int64(1); i <= 5; i++ {
			emit(Event{SerialNo: i})
		}
		<-ctx.Done()
	})
	defer s.StopAll()

	waitFor(t, func() bool { return len(log.serials()) == 5 })
	for i, got := range log.serials() {
		if got != int64(i+1) {
			t.Fatalf("serials = %v, want 1..5 in order", log.serials())
		}
	}
	if !s.Active("door-1") || s.Count() != 1 {
		t.Error("subscription should be active")
	}
}

func TestSubscriptions_DropsWhenFull(t *testing.T) {
	s := NewSubscriptions(1, nil)
	release := make(chan struct{})
	emitted := make(chan []bool, 1)

	s.Start("door-1", func(Event) { <-release }, func(ctx context.Context, emit func(Event) bool) {
		// The first event is taken by the consumer, which then blocks.
		emit(Event{SerialNo: 1})
		time.Sleep(20 * time.Millisecond)
		results := []bool{emit(Event{SerialNo: 2}), emit(Event{SerialNo: 3})}
		emitted <- results
		<-ctx.Done()
	})

	results := <-emitted
	if !results[0] || results[1] {
		t.Errorf("emit results = %v, want [true false]", results)
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
	close(release)
	s.Stop("door-1")
}

func TestSubscriptions_ReplaceAndIdempotentStop(t *testing.T) {
	s := NewSubscriptions(4, nil)
	first := make(chan struct{})

	s.Start("door-1", func(Event) {}, func(ctx context.Context, _ func(Event) bool) {
		<-ctx.Done()
		close(first)
	})
	s.Start("door-1", func(Event) {}, func(ctx context.Context, _ func(Event) bool) {
		<-ctx.Done()
	})

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("replaced producer was not cancelled")
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}

	s.Stop("door-1")
	s.Stop("door-1")
	s.Stop("never-subscribed")
	if s.Active("door-1") {
		t.Error("subscription still active after Stop")
	}
}

func TestSubscriptions_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	s := NewSubscriptions(4, nil)
	log := &eventLog{}

	s.Start("door-1", func(ev Event) {
		if ev.SerialNo == 1 {
			panic("boom")
		}
		log.handle(ev)
	}, func(ctx context.Context, emit func(Event) bool) {
		emit(Event{SerialNo: 1})
		emit(Event{SerialNo: 2})
		<-ctx.Done()
	})
	defer s.StopAll()

	waitFor(t, func() bool { return len(log.serials()) == 1 })
}
