// Package controllog implements the JSON-Lines control log: a side-channel
// writer for operational events (trigger pulses, parameter changes, fatal
// errors) that the acquisition core itself does not produce, but that the
// operational layer wrapping it wants recorded one JSON object per line.
//
// Grounded on spec.md §6/§9's "small structured writer to avoid quoting
// bugs" redesign note; no teacher file has an equivalent, so this follows
// the pack's uniform preference for stdlib encoding/json over a third-party
// JSON library (confirmed across every example repo's go.mod).
package controllog

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Entry is one line of the control log: a monotonically increasing
// wall-clock timestamp, a short type tag, and a type-specific payload.
type Entry struct {
	T       int64       `json:"t"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// TriggerPayload is the payload shape for Type "trigger", per spec.md §6.
type TriggerPayload struct {
	T               uint64 `json:"t"`
	SystemTimestamp int64  `json:"system_timestamp"`
	ID              uint8  `json:"id"`
	Rising          bool   `json:"rising"`
}

// Writer appends one JSON object per line to an underlying io.Writer.
// Safe for concurrent use; entries from different goroutines are never
// interleaved mid-line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps w as a control log writer.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes entry as one line of JSON, using the current wall-clock
// time (nanoseconds since the Unix epoch) as t if entry.T is zero.
func (l *Writer) Write(entry Entry) error {
	if entry.T == 0 {
		entry.T = time.Now().UnixNano()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}

// Trigger records one trigger-pulse event, per spec.md §6's payload shape.
func (l *Writer) Trigger(id uint8, t uint64, systemTimestamp int64, rising bool) error {
	return l.Write(Entry{
		Type: "trigger",
		Payload: TriggerPayload{
			T:               t,
			SystemTimestamp: systemTimestamp,
			ID:              id,
			Rising:          rising,
		},
	})
}

// Parameters records a live bias-update request.
func (l *Writer) Parameters(payload interface{}) error {
	return l.Write(Entry{Type: "parameters", Payload: payload})
}

// Fatal records a fatal acquisition error.
func (l *Writer) Fatal(err error) error {
	return l.Write(Entry{Type: "fatal", Payload: map[string]string{"error": err.Error()}})
}
