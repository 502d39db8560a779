// Package eventstream implements the self-describing Event Stream file
// format: a 12-byte signature, a 3-byte version, a type byte, optional
// dimensions, and a delta-encoded event body whose exact byte layout
// differs per event type.
//
// Grounded on original_source/common/sepia.hpp's event_stream_signature,
// event_stream_version, header read/write, write_to_reference<type>, and
// handle_byte<type> classes.
package eventstream

import "fmt"

// Type identifies the event encoding used by a stream.
type Type uint8

const (
	TypeGeneric Type = 0
	TypeDVS     Type = 1
	TypeATIS    Type = 2
	TypeColor   Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeGeneric:
		return "generic"
	case TypeDVS:
		return "dvs"
	case TypeATIS:
		return "atis"
	case TypeColor:
		return "color"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Signature is the fixed 12-byte Event Stream format signature.
const Signature = "Event Stream"

// Version is the implemented Event Stream format version: major, minor,
// patch.
var Version = [3]byte{2, 0, 0}

// DVSEvent is a change-detection event: a pixel changed brightness in the
// direction given by On.
type DVSEvent struct {
	T    uint64
	X, Y uint16
	On   bool
}

// ATISEvent is either a change detection or a threshold-crossing
// (grayscale sample) event.
type ATISEvent struct {
	T                   uint64
	X, Y                uint16
	Polarity            bool
	IsThresholdCrossing bool
}

// ColorEvent is an RGB color sample at a pixel.
type ColorEvent struct {
	T       uint64
	X, Y    uint16
	R, G, B uint8
}

// GenericEvent carries an arbitrary byte payload, for event types this
// codec has no specialized encoding for.
type GenericEvent struct {
	T     uint64
	Bytes []byte
}

// WrongSignature reports that the stream's leading bytes did not match
// Signature.
type WrongSignature struct{}

func (e *WrongSignature) Error() string { return "the stream does not have the expected signature" }

// UnsupportedVersion reports an Event Stream major/minor version this
// codec cannot read.
type UnsupportedVersion struct{}

func (e *UnsupportedVersion) Error() string { return "the stream uses an unsupported version" }

// UnsupportedEventType reports a type byte outside {generic, dvs, atis,
// color}.
type UnsupportedEventType struct{}

func (e *UnsupportedEventType) Error() string { return "the stream uses an unsupported event type" }

// IncompleteHeader reports that the stream ended before a full header
// could be read.
type IncompleteHeader struct{}

func (e *IncompleteHeader) Error() string { return "the stream has an incomplete header" }

// CoordinatesOverflow reports an event whose x or y exceeds the stream's
// declared width/height.
type CoordinatesOverflow struct{}

func (e *CoordinatesOverflow) Error() string {
	return "the event has coordinates outside the range given by the stream's header"
}

// EndOfFile reports that stream replay reached its end with no restart
// requested.
type EndOfFile struct{}

func (e *EndOfFile) Error() string { return "end of file" }

// TimestampRegression reports an event whose timestamp precedes the
// previously written event's, violating the format's non-decreasing
// timestamp requirement.
type TimestampRegression struct {
	T, Previous uint64
}

func (e *TimestampRegression) Error() string {
	return fmt.Sprintf("event timestamp %d precedes previous %d", e.T, e.Previous)
}
