// Package streaminghub owns every open outbound stream the gateway is
// currently relaying, enforces per-tenant concurrent-stream caps, and
// gives the control plane operations to list, inspect, and forcibly close
// streams or broadcast admin-initiated events to a filtered subset.
package streaminghub

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/google/uuid"
)

// Stream is one open outbound relay: a tenant's inbound connection paired
// with the upstream adapter event source it is currently draining.
type Stream struct {
	ID        string
	TenantID  string
	StartedAt time.Time

	cancel context.CancelFunc

	mu           sync.Mutex
	bytesOut     int64
	eventsOut    int64
	lastActivity time.Time
}

// Info is the read-only view of a Stream exposed to the control plane.
type Info struct {
	ID        string
	TenantID  string
	StartedAt time.Time
	BytesOut  int64
	EventsOut int64
	IdleFor   time.Duration
}

func (s *Stream) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.ID,
		TenantID:  s.TenantID,
		StartedAt: s.StartedAt,
		BytesOut:  s.bytesOut,
		EventsOut: s.eventsOut,
		IdleFor:   time.Since(s.lastActivity),
	}
}

// RecordActivity updates a stream's counters as events are relayed to the client.
func (s *Stream) RecordActivity(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesOut += int64(bytes)
	s.eventsOut++
	s.lastActivity = time.Now()
}

// Hub tracks every open Stream, shard-free since the expected concurrent
// stream count doesn't warrant sharding the registry lock.
type Hub struct {
	maxPerTenant int

	mu      sync.RWMutex
	streams map[string]*Stream
}

// New builds a Hub allowing up to maxPerTenant concurrent streams per
// tenant (0 means unlimited).
func New(maxPerTenant int) *Hub {
	return &Hub{maxPerTenant: maxPerTenant, streams: make(map[string]*Stream)}
}

// ErrTenantStreamLimitExceeded is returned by Open when tenantID already
// has maxPerTenant streams open.
var ErrTenantStreamLimitExceeded = errors.New("tenant concurrent stream limit exceeded")

// Open registers a new stream for tenantID, deriving a cancellable context
// from parent so Close can propagate cancellation to the upstream call.
func (h *Hub) Open(parent context.Context, tenantID string) (*Stream, context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxPerTenant > 0 {
		var count int
		for _, s := range h.streams {
			if s.TenantID == tenantID {
				count++
			}
		}
		if count >= h.maxPerTenant {
			return nil, nil, ErrTenantStreamLimitExceeded
		}
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		StartedAt:    time.Now(),
		cancel:       cancel,
		lastActivity: time.Now(),
	}
	h.streams[s.ID] = s
	return s, ctx, nil
}

// Close cancels the stream's context, which must cause the caller's
// upstream read loop to unwind, and removes it from the registry.
func (h *Hub) Close(id string) bool {
	h.mu.Lock()
	s, ok := h.streams[id]
	if ok {
		delete(h.streams, id)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	s.cancel()
	return true
}

// List returns a snapshot of every open stream, optionally filtered to tenantID.
func (h *Hub) List(tenantID string) []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Info, 0, len(h.streams))
	for _, s := range h.streams {
		if tenantID != "" && s.TenantID != tenantID {
			continue
		}
		out = append(out, s.snapshot())
	}
	return out
}

// Event is an admin-initiated broadcast payload.
type Event struct {
	Kind string
	Data any
}

// Sink receives broadcast events for one subscriber; it must not block —
// Broadcast drops the event (incrementing a dropped counter the caller can
// surface as a warning) rather than waiting on a slow consumer.
type Sink interface {
	Offer(Event) (accepted bool)
}

// Broadcast fans an admin event out to every open stream matching
// tenantID (empty means all), via each stream's registered Sink.
// Subscribers are tracked separately from Stream because not every open
// Stream necessarily wants broadcast admin events.
func (h *Hub) Broadcast(tenantID string, ev Event, sinks map[string]Sink) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, s := range h.streams {
		if tenantID != "" && s.TenantID != tenantID {
			continue
		}
		sink, ok := sinks[id]
		if !ok {
			continue
		}
		if sink.Offer(ev) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}
