// Package events publishes domain events emitted by completed jobs.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/sentinel/mpc-engine/internal/model"
)

// Sink receives one event per successfully completed job. Ordering across
// jobs is not guaranteed.
type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink records events in order. Used for testing.
type MemorySink struct {
	mu     sync.Mutex
	events []model.Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Publish(_ context.Context, ev model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.events...)
}
