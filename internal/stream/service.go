// Package stream fans numeric quote updates out to registered listeners,
// gating emissions by a minimum interval and a value-change check.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/lunamsg/syncd/internal/bus"
	"go.uber.org/zap"
)

// Quote is one numeric update from the upstream feed.
type Quote struct {
	Value float64
	At    time.Time
}

// Source produces the raw quote feed. The returned channel closes when the
// upstream stream ends; the service does not resubscribe on its own.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Quote, error)
}

// Listener receives a gated update: the current value and the delta since
// the previously emitted value.
type Listener func(value, delta float64)

// Service consumes a quote source and notifies listeners. The first quote
// of a stream is always emitted with a zero delta; later quotes pass only
// when the minimum interval has elapsed and the value actually changed.
type Service struct {
	source      Source
	bus         *bus.Bus
	logger      *zap.Logger
	minInterval time.Duration

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	streaming bool
	cancel    context.CancelFunc

	// emitMu is held for the whole emission pass. ClearListeners takes it
	// so that no listener runs after ClearListeners returns.
	emitMu   sync.Mutex
	lastVal  float64
	lastEmit time.Time
	emitted  bool
}

// New creates a streaming service over the given source.
func New(source Source, b *bus.Bus, logger *zap.Logger, minInterval time.Duration) *Service {
	return &Service{
		source:      source,
		bus:         b,
		logger:      logger,
		minInterval: minInterval,
		listeners:   make(map[int]Listener),
	}
}

// AddListener registers a listener and returns its handle.
func (s *Service) AddListener(l Listener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return id
}

// RemoveListener unregisters a single listener. Unknown handles are a no-op.
func (s *Service) RemoveListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// ClearListeners removes every listener. It waits out any in-flight
// emission pass, so when it returns no listener registered before the call
// will be invoked again.
func (s *Service) ClearListeners() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	s.listeners = make(map[int]Listener)
	s.mu.Unlock()
}

// Streaming reports whether a feed is currently being consumed.
func (s *Service) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Start subscribes to the source and begins fan-out. Calling Start while a
// stream is already active is a no-op. When the upstream feed ends the
// service goes idle; a later Start opens a fresh stream with fresh gate
// state.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil
	}
	s.streaming = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	quotes, err := s.source.Subscribe(ctx)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.emitMu.Lock()
	s.emitted = false
	s.emitMu.Unlock()

	s.logger.Info("quote stream started")
	go s.consume(quotes)
	return nil
}

// Stop ends the active stream, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Service) consume(quotes <-chan Quote) {
	for q := range quotes {
		s.offer(q)
	}

	s.mu.Lock()
	s.streaming = false
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("quote stream ended")
	if s.bus != nil {
		s.bus.Publish(bus.Event{Kind: "stream.stopped", Timestamp: time.Now()})
	}
}

// offer applies the gate and, when it passes, runs the emission pass.
func (s *Service) offer(q Quote) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	var delta float64
	switch {
	case !s.emitted:
		delta = 0
	case q.At.Sub(s.lastEmit) < s.minInterval:
		return
	case q.Value == s.lastVal:
		return
	default:
		delta = q.Value - s.lastVal
	}

	s.lastVal = q.Value
	s.lastEmit = q.At
	s.emitted = true

	s.mu.Lock()
	snapshot := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.mu.Unlock()

	for _, l := range snapshot {
		l(q.Value, delta)
	}

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      "stream.updated",
			Timestamp: q.At,
			Payload:   map[string]float64{"value": q.Value, "delta": delta},
		})
	}
}
