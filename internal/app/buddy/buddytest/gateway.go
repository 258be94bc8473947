package buddytest

import (
	"context"
	"sync"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
)

// Gateway records every event it receives. When Err is set every call
// returns it after recording.
type Gateway struct {
	mu     sync.Mutex
	events []buddy.Event
	Err    error
}

func (g *Gateway) record(ev buddy.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev)
	return g.Err
}

func (g *Gateway) CreateChannel(_ context.Context, ev buddy.Event) error  { return g.record(ev) }
func (g *Gateway) UpdateChannel(_ context.Context, ev buddy.Event) error  { return g.record(ev) }
func (g *Gateway) ArchiveChannel(_ context.Context, ev buddy.Event) error { return g.record(ev) }
func (g *Gateway) Notify(_ context.Context, ev buddy.Event) error         { return g.record(ev) }

// Events returns the recorded events in arrival order.
func (g *Gateway) Events() []buddy.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]buddy.Event(nil), g.events...)
}

// Count returns how many events of kind were recorded.
func (g *Gateway) Count(kind buddy.EventKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, ev := range g.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops the recorded events.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = nil
}
