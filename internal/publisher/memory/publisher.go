// Package memory provides an in-memory event publisher for development
// runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event captures one published discovery event.
type Event struct {
	Topic   string
	Payload any
}

// Publisher records published events instead of sending them anywhere.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
