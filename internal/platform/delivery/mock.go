package delivery

import (
	"context"
	"errors"
	"sync"
)

// MockSender is a test double for ChannelSender that records calls and
// optionally fails or panics.
type MockSender struct {
	Name        string
	ShouldFail  bool
	FailError   string
	ShouldPanic bool

	mu    sync.Mutex
	calls []Message
}

func (m *MockSender) Channel() string { return m.Name }

func (m *MockSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()

	if m.ShouldPanic {
		panic("mock sender panic")
	}
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of every message this sender received.
func (m *MockSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
