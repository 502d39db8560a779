// Package fifo implements the bounded ring FIFO of byte buffers that
// decouples the USB producer from the decoding consumer.
//
// Grounded on original_source/common/camera.hpp's `fifo` class: a fixed
// array of buffers, a mutex + condition variable, drop-the-new-buffer on
// overflow, and copy_and_push appending a trailing host timestamp.
package fifo

import (
	"encoding/binary"
	"sync"
	"time"
)

// PopResult mirrors sepia's pop_result: how many buffers remain, the
// capacity, and whether the pop succeeded before its timeout elapsed.
type PopResult struct {
	Used    int
	Size    int
	Success bool
}

// FIFO is a single-producer/single-consumer bounded ring buffer of byte
// slices. Capacity is fixed at construction. On overflow the newest buffer
// is dropped (never the oldest) and onDrop is invoked; Dropped() reports how
// many buffers were dropped. The FIFO takes no drop-threshold setting: its
// capacity is its only bound — see SPEC_FULL.md §9.
type FIFO struct {
	mu      sync.Mutex
	notify  chan struct{}
	buffers [][]byte
	write   int
	read    int
	cap     int
	timeout time.Duration
	onDrop  func()
	dropped uint64
}

// New constructs a FIFO holding up to capacity usable buffers, with the
// given pop timeout. onDrop may be nil.
//
// The backing array is allocated at capacity+1 slots: the ring's
// write==read-means-empty / (write+1)==read-means-full convention needs one
// always-empty slot to distinguish "empty" from "full", so a caller-visible
// capacity of N requires N+1 slots underneath, per spec §8 scenario 5
// (capacity 4, push 6 ⇒ exactly 2 drops, first 4 retained).
func New(capacity int, timeout time.Duration, onDrop func()) *FIFO {
	return &FIFO{
		buffers: make([][]byte, capacity+1),
		cap:     capacity,
		notify:  make(chan struct{}, 1),
		timeout: timeout,
		onDrop:  onDrop,
	}
}

// signal wakes one blocked Pop, if any, without blocking itself.
func (f *FIFO) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// ringSize is the backing array's length (capacity+1); capacity is the
// caller-visible usable capacity reported in PopResult.Size.
func (f *FIFO) ringSize() int { return len(f.buffers) }

// Push inserts a buffer, swapping it into the ring. If the ring is full the
// buffer is dropped, the dropped counter is incremented, and onDrop fires.
func (f *FIFO) Push(buffer []byte) {
	f.mu.Lock()
	next := (f.write + 1) % f.ringSize()
	if next == f.read {
		f.dropped++
		drop := f.onDrop
		f.mu.Unlock()
		if drop != nil {
			drop()
		}
		return
	}
	f.buffers[f.write] = buffer
	f.write = next
	f.mu.Unlock()
	f.signal()
}

// PushWithTimestamp copies data into a new slot with an 8-byte
// little-endian host timestamp (nanoseconds since an arbitrary epoch)
// appended, per spec.md §3/§9's requirement that every producer buffer
// carry the arrival timestamp the decoder consumes.
func (f *FIFO) PushWithTimestamp(data []byte) {
	now := uint64(time.Now().UnixNano())
	buf := make([]byte, len(data)+8)
	copy(buf, data)
	binary.LittleEndian.PutUint64(buf[len(data):], now)
	f.Push(buf)
}

// Pop removes and returns the oldest buffer, blocking up to the configured
// timeout if the FIFO is empty. On timeout, Success is false and out is
// unchanged.
func (f *FIFO) Pop() (buffer []byte, result PopResult) {
	deadline := time.Now().Add(f.timeout)

	for {
		f.mu.Lock()
		if f.read != f.write {
			buffer = f.buffers[f.read]
			f.buffers[f.read] = nil
			f.read = (f.read + 1) % f.ringSize()
			used := (f.write - f.read + f.ringSize()) % f.ringSize()
			f.mu.Unlock()
			return buffer, PopResult{Used: used, Size: f.cap, Success: true}
		}
		f.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, PopResult{Used: 0, Size: f.cap, Success: false}
		}
		select {
		case <-f.notify:
		case <-time.After(remaining):
		}
	}
}

// Dropped returns the number of buffers dropped due to overflow so far.
func (f *FIFO) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
