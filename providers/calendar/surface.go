package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a scheduled calendar entry.
type Event struct {
	ID       string
	Title    string
	Location string
	Start    time.Time
	End      time.Time
}

// Duration returns the length of the event.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Surface is the external calendar the provider writes to and reads from.
type Surface interface {
	// Insert creates the event and returns its identifier.
	Insert(ctx context.Context, e Event) (string, error)
	// Between returns events starting in [from, to), earliest first.
	Between(ctx context.Context, from, to time.Time) ([]Event, error)
}

// MemorySurface is an in-process Surface.
type MemorySurface struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySurface returns an empty calendar.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

// Insert implements Surface.
func (m *MemorySurface) Insert(ctx context.Context, e Event) (string, error) {
	if e.End.Before(e.Start) {
		return "", fmt.Errorf("event %q ends before it starts", e.Title)
	}
	e.ID = uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return e.ID, nil
}

// Between implements Surface.
func (m *MemorySurface) Between(ctx context.Context, from, to time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, e := range m.events {
		if !e.Start.Before(from) && e.Start.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Len returns the number of stored events.
func (m *MemorySurface) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
