package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Published captures one Publisher call for inspection.
type Published struct {
	Event    Event
	Targets  []uuid.UUID
	Excluded []uuid.UUID
	ToAll    bool
}

// RecordingPublisher records published events instead of delivering them.
// Used in tests.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishToUsers(_ context.Context, userIDs []uuid.UUID, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	targets := make([]uuid.UUID, len(userIDs))
	copy(targets, userIDs)
	p.events = append(p.events, Published{Event: event, Targets: targets})
}

func (p *RecordingPublisher) PublishToAll(_ context.Context, event Event, exclude ...uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	excluded := make([]uuid.UUID, len(exclude))
	copy(excluded, exclude)
	p.events = append(p.events, Published{Event: event, Excluded: excluded, ToAll: true})
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.events))
	copy(out, p.events)
	return out
}

// ByName returns published records whose event name matches.
func (p *RecordingPublisher) ByName(name string) []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Published
	for _, e := range p.events {
		if e.Event.Name == name {
			out = append(out, e)
		}
	}
	return out
}
