package eventstream

import "encoding/binary"

// DVSDecoder is a byte-at-a-time state machine mirroring
// handle_byte<type::dvs> from original_source/common/sepia.hpp.
type DVSDecoder struct {
	width, height uint16
	t             uint64
	state         dvsState
	on            bool
	xLow          byte
	x             uint16
}

type dvsState int

const (
	dvsStateIdle dvsState = iota
	dvsStateXLow
	dvsStateXHigh
	dvsStateYLow
	dvsStateYHigh
)

// NewDVSDecoder returns a decoder bounded by the stream's declared frame
// size.
func NewDVSDecoder(width, height uint16) *DVSDecoder {
	return &DVSDecoder{width: width, height: height}
}

// Reset rewinds the decoder to its initial state, for stream restart.
func (d *DVSDecoder) Reset() {
	*d = DVSDecoder{width: d.width, height: d.height}
}

// Feed advances the state machine by one byte. complete is true exactly
// when event is a fully decoded event.
func (d *DVSDecoder) Feed(b byte) (event DVSEvent, complete bool, err error) {
	switch d.state {
	case dvsStateIdle:
		switch b {
		case 0b11111111:
			d.t += 0b1111111
		case 0b11111110:
		default:
			d.t += uint64(b >> 1)
			d.on = b&1 != 0
			d.state = dvsStateXLow
		}
	case dvsStateXLow:
		d.xLow = b
		d.state = dvsStateXHigh
	case dvsStateXHigh:
		d.x = binary.LittleEndian.Uint16([]byte{d.xLow, b})
		d.state = dvsStateYLow
	case dvsStateYLow:
		d.xLow = b
		d.state = dvsStateYHigh
	case dvsStateYHigh:
		y := binary.LittleEndian.Uint16([]byte{d.xLow, b})
		if d.x >= d.width || y >= d.height {
			d.state = dvsStateIdle
			return DVSEvent{}, false, &CoordinatesOverflow{}
		}
		event = DVSEvent{T: d.t, X: d.x, Y: y, On: d.on}
		d.state = dvsStateIdle
		return event, true, nil
	}
	return DVSEvent{}, false, nil
}

// ATISDecoder is a byte-at-a-time state machine mirroring
// handle_byte<type::atis>.
type ATISDecoder struct {
	width, height uint16
	t             uint64
	state         atisState
	polarity      bool
	threshold     bool
	xLow          byte
	x             uint16
}

type atisState int

const (
	atisStateIdle atisState = iota
	atisStateXLow
	atisStateXHigh
	atisStateYLow
	atisStateYHigh
)

// NewATISDecoder returns a decoder bounded by the stream's declared frame
// size.
func NewATISDecoder(width, height uint16) *ATISDecoder {
	return &ATISDecoder{width: width, height: height}
}

// Reset rewinds the decoder to its initial state.
func (d *ATISDecoder) Reset() {
	*d = ATISDecoder{width: d.width, height: d.height}
}

// Feed advances the state machine by one byte.
func (d *ATISDecoder) Feed(b byte) (event ATISEvent, complete bool, err error) {
	switch d.state {
	case atisStateIdle:
		if b&0b11111100 == 0b11111100 {
			d.t += 63 * uint64(b&0b11)
			return ATISEvent{}, false, nil
		}
		d.t += uint64(b >> 2)
		d.threshold = b&1 != 0
		d.polarity = b&0b10 != 0
		d.state = atisStateXLow
	case atisStateXLow:
		d.xLow = b
		d.state = atisStateXHigh
	case atisStateXHigh:
		d.x = binary.LittleEndian.Uint16([]byte{d.xLow, b})
		d.state = atisStateYLow
	case atisStateYLow:
		d.xLow = b
		d.state = atisStateYHigh
	case atisStateYHigh:
		y := binary.LittleEndian.Uint16([]byte{d.xLow, b})
		if d.x >= d.width || y >= d.height {
			d.state = atisStateIdle
			return ATISEvent{}, false, &CoordinatesOverflow{}
		}
		event = ATISEvent{T: d.t, X: d.x, Y: y, Polarity: d.polarity, IsThresholdCrossing: d.threshold}
		d.state = atisStateIdle
		return event, true, nil
	}
	return ATISEvent{}, false, nil
}

// ColorDecoder is a byte-at-a-time state machine mirroring
// handle_byte<type::color>.
type ColorDecoder struct {
	width, height uint16
	t             uint64
	state         colorState
	low           byte
	x, y          uint16
	r, g          uint8
}

type colorState int

const (
	colorStateIdle colorState = iota
	colorStateXLow
	colorStateXHigh
	colorStateYLow
	colorStateYHigh
	colorStateR
	colorStateG
	colorStateB
)

// NewColorDecoder returns a decoder bounded by the stream's declared frame
// size.
func NewColorDecoder(width, height uint16) *ColorDecoder {
	return &ColorDecoder{width: width, height: height}
}

// Reset rewinds the decoder to its initial state.
func (d *ColorDecoder) Reset() {
	*d = ColorDecoder{width: d.width, height: d.height}
}

// Feed advances the state machine by one byte.
func (d *ColorDecoder) Feed(b byte) (event ColorEvent, complete bool, err error) {
	switch d.state {
	case colorStateIdle:
		switch b {
		case 0b11111111:
			d.t += 254
		case 0b11111110:
		default:
			d.t += uint64(b)
			d.state = colorStateXLow
		}
	case colorStateXLow:
		d.low = b
		d.state = colorStateXHigh
	case colorStateXHigh:
		d.x = binary.LittleEndian.Uint16([]byte{d.low, b})
		d.state = colorStateYLow
	case colorStateYLow:
		d.low = b
		d.state = colorStateYHigh
	case colorStateYHigh:
		y := binary.LittleEndian.Uint16([]byte{d.low, b})
		if d.x >= d.width || y >= d.height {
			d.state = colorStateIdle
			return ColorEvent{}, false, &CoordinatesOverflow{}
		}
		d.y = y
		d.state = colorStateR
	case colorStateR:
		d.r = b
		d.state = colorStateG
	case colorStateG:
		d.g = b
		d.state = colorStateB
	case colorStateB:
		event = ColorEvent{T: d.t, X: d.x, Y: d.y, R: d.r, G: d.g, B: b}
		d.state = colorStateIdle
		return event, true, nil
	}
	return ColorEvent{}, false, nil
}

// GenericDecoder is a byte-at-a-time state machine mirroring
// handle_byte<type::generic>: an 8-bit relative timestamp, a 7-bit-per-byte
// varint payload length, then the raw payload.
type GenericDecoder struct {
	t        uint64
	state    genericState
	size     int
	shift    uint
	payload  []byte
	received int
}

type genericState int

const (
	genericStateIdle genericState = iota
	genericStateSize
	genericStatePayload
)

// NewGenericDecoder returns a decoder for the generic event encoding.
func NewGenericDecoder() *GenericDecoder {
	return &GenericDecoder{}
}

// Reset rewinds the decoder to its initial state.
func (d *GenericDecoder) Reset() {
	*d = GenericDecoder{}
}

// Feed advances the state machine by one byte.
func (d *GenericDecoder) Feed(b byte) (event GenericEvent, complete bool, err error) {
	switch d.state {
	case genericStateIdle:
		if b == 0b11111111 {
			d.t += 254
			return GenericEvent{}, false, nil
		}
		if b == 0b11111110 {
			return GenericEvent{}, false, nil
		}
		d.t += uint64(b)
		d.state = genericStateSize
		d.size = 0
		d.shift = 0
	case genericStateSize:
		d.size |= int(b>>1) << d.shift
		d.shift += 7
		if b&1 == 0 {
			d.payload = make([]byte, d.size)
			d.received = 0
			if d.size == 0 {
				event = GenericEvent{T: d.t, Bytes: d.payload}
				d.state = genericStateIdle
				return event, true, nil
			}
			d.state = genericStatePayload
		}
	case genericStatePayload:
		d.payload[d.received] = b
		d.received++
		if d.received == d.size {
			event = GenericEvent{T: d.t, Bytes: d.payload}
			d.state = genericStateIdle
			return event, true, nil
		}
	}
	return GenericEvent{}, false, nil
}
