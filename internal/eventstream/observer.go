package eventstream

import (
	"bufio"
	"context"
	"io"
	"time"
)

// DispatchMode selects how replay paces events against wall-clock time,
// mirroring original_source/common/sepia.hpp's dispatch enum.
type DispatchMode int

const (
	// DispatchSynchronouslyButSkipOffset rebases the first event's
	// timestamp to the moment replay starts, then paces every later event
	// to keep that same relative offset.
	DispatchSynchronouslyButSkipOffset DispatchMode = iota
	// DispatchSynchronously paces each event's timestamp (interpreted as
	// microseconds) directly against wall-clock time since replay started,
	// without rebasing.
	DispatchSynchronously
	// DispatchAsFastAsPossible delivers every event with no pacing at all.
	DispatchAsFastAsPossible
)

// byteDecoder is the shared shape of DVSDecoder, ATISDecoder, ColorDecoder,
// and GenericDecoder: feed one byte, optionally get back a complete event.
type byteDecoder[E any] interface {
	Feed(b byte) (E, bool, error)
	Reset()
}

// Observer replays a decoded event-stream source, in order, with the
// pacing given by Mode, restarting from the beginning when ShouldRestart
// returns true at end of file.
//
// Grounded on original_source/common/sepia.hpp's observable<> class.
type Observer[E any] struct {
	source        io.ReadSeeker
	decoder       byteDecoder[E]
	mode          DispatchMode
	getT          func(E) uint64
	shouldRestart func() bool
	onEvent       func(E) error

	reader *bufio.Reader
}

// NewObserver builds an Observer over an already-positioned source (just
// past its header) using decoder to assemble events and getT to read an
// event's timestamp in microseconds for pacing.
func NewObserver[E any](source io.ReadSeeker, decoder byteDecoder[E], getT func(E) uint64, mode DispatchMode, onEvent func(E) error, shouldRestart func() bool) *Observer[E] {
	if shouldRestart == nil {
		shouldRestart = func() bool { return false }
	}
	return &Observer[E]{
		source:        source,
		decoder:       decoder,
		mode:          mode,
		getT:          getT,
		onEvent:       onEvent,
		shouldRestart: shouldRestart,
		reader:        bufio.NewReader(source),
	}
}

// headerSize reports how many bytes ReadHeader consumed for the given
// event type, so Run's restart path can seek past it again.
func headerSize(eventType Type) int64 {
	if eventType == TypeGeneric {
		return int64(len(Signature)) + 3 + 1
	}
	return int64(len(Signature)) + 3 + 1 + 4
}

// Run reads and dispatches events until end of file with no restart
// requested, the context is cancelled, or onEvent/decoding returns an
// error.
func (o *Observer[E]) Run(ctx context.Context, eventType Type) error {
	var start time.Time
	var firstT uint64
	haveFirst := false

	for {
		b, err := o.reader.ReadByte()
		if err == io.EOF {
			if o.shouldRestart() {
				if _, seekErr := o.source.Seek(headerSize(eventType), io.SeekStart); seekErr != nil {
					return seekErr
				}
				o.reader.Reset(o.source)
				o.decoder.Reset()
				haveFirst = false
				continue
			}
			return &EndOfFile{}
		}
		if err != nil {
			return err
		}

		event, complete, decodeErr := o.decoder.Feed(b)
		if decodeErr != nil {
			return decodeErr
		}
		if !complete {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch o.mode {
		case DispatchAsFastAsPossible:
		case DispatchSynchronously:
			if !haveFirst {
				start = time.Now()
				haveFirst = true
			}
			sleepUntil(ctx, start.Add(time.Duration(o.getT(event))*time.Microsecond))
		case DispatchSynchronouslyButSkipOffset:
			if !haveFirst {
				start = time.Now()
				firstT = o.getT(event)
				haveFirst = true
			}
			elapsed := o.getT(event) - firstT
			sleepUntil(ctx, start.Add(time.Duration(elapsed)*time.Microsecond))
		}

		if err := o.onEvent(event); err != nil {
			return err
		}
	}
}

func sleepUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
