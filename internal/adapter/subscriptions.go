package adapter

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultEventBuffer is the per-subscription channel capacity.
const DefaultEventBuffer = 64

// Producer feeds events for one device until ctx is cancelled. emit reports
// false when the event was dropped because the consumer is behind.
type Producer func(ctx context.Context, emit func(Event) bool)

// Subscriptions runs one producer/consumer pair per device.
//
// The producer writes to a bounded channel and never blocks on it: a full
// buffer drops the event. The consumer calls the handler in receipt order.
type Subscriptions struct {
	mu   sync.Mutex
	subs map[string]*subscription

	bufferSize int
	dropped    atomic.Int64
	logger     Logger
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriptions creates an empty subscription set.
func NewSubscriptions(bufferSize int, logger Logger) *Subscriptions {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBuffer
	}
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Subscriptions{
		subs:       make(map[string]*subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Start begins delivering events for deviceID, replacing and fully stopping
// any previous subscription first. The subscription lives until Stop or
// StopAll; it is not tied to the caller's request context.
func (s *Subscriptions) Start(deviceID string, handler EventHandler, produce Producer) {
	s.Stop(deviceID)

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	events := make(chan Event, s.bufferSize)

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		default:
			s.dropped.Add(1)
			s.logger.Warn("event buffer full, dropping event",
				"device_id", deviceID, "type", ev.Type, "serial_no", ev.SerialNo)
			return false
		}
	}

	go func() {
		defer close(events)
		produce(ctx, emit)
	}()

	go func() {
		defer close(sub.done)
		for ev := range events {
			s.deliver(deviceID, handler, ev)
		}
	}()

	s.mu.Lock()
	s.subs[deviceID] = sub
	s.mu.Unlock()

	s.logger.Info("event subscription started", "device_id", deviceID)
}

// deliver isolates the consumer from a panicking handler.
func (s *Subscriptions) deliver(deviceID string, handler EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked", "device_id", deviceID, "panic", r)
		}
	}()
	handler(ev)
}

// Stop cancels the subscription for deviceID and waits for its handler to
// return. It does nothing when the device has no subscription.
func (s *Subscriptions) Stop(deviceID string) {
	s.mu.Lock()
	sub, ok := s.subs[deviceID]
	delete(s.subs, deviceID)
	s.mu.Unlock()

	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
	s.logger.Info("event subscription stopped", "device_id", deviceID)
}

// StopAll stops every subscription.
func (s *Subscriptions) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Stop(id)
	}
}

// Active reports whether deviceID has a running subscription.
func (s *Subscriptions) Active(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[deviceID]
	return ok
}

// Count returns the number of running subscriptions.
func (s *Subscriptions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped returns how many events were discarded on full buffers.
func (s *Subscriptions) Dropped() int64 {
	return s.dropped.Load()
}
