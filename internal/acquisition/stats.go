package acquisition

import "sync"

// Stats tracks running acquisition counters behind a mutex, following the
// guiperry-HASHER controller's DeviceStats/DeviceStatsSnapshot idiom: a
// mutable struct guarded by a lock, with Snapshot returning a plain copy
// callers can read without further locking.
type Stats struct {
	mu                sync.RWMutex
	buffersProcessed  uint64
	buffersDropped    uint64
	eventsDelivered   uint64
	triggersDelivered uint64
}

// StatsSnapshot is an immutable point-in-time copy of Stats.
type StatsSnapshot struct {
	BuffersProcessed  uint64
	BuffersDropped    uint64
	EventsDelivered   uint64
	TriggersDelivered uint64
}

func (s *Stats) recordBuffer() {
	s.mu.Lock()
	s.buffersProcessed++
	s.mu.Unlock()
}

func (s *Stats) recordDrop() {
	s.mu.Lock()
	s.buffersDropped++
	s.mu.Unlock()
}

func (s *Stats) recordEvent() {
	s.mu.Lock()
	s.eventsDelivered++
	s.mu.Unlock()
}

func (s *Stats) recordTrigger() {
	s.mu.Lock()
	s.triggersDelivered++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		BuffersProcessed:  s.buffersProcessed,
		BuffersDropped:    s.buffersDropped,
		EventsDelivered:   s.eventsDelivered,
		TriggersDelivered: s.triggersDelivered,
	}
}
