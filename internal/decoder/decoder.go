// Package decoder implements the sensor wire protocol: a 16-bit little
// endian word stream carrying (x, y, polarity) events, vectored x-address
// bursts, and a split 12-bit LSB/12-bit MSB timestamp with an overflow
// counter.
//
// Grounded on original_source/common/evk4.hpp's `decode` class (around line
// 1405 onward): the opcode table, the height-flip on Y, and the
// dispatch/no-dispatch dual path that always advances state but only emits
// events when dispatch is requested.
package decoder

import "encoding/binary"

// DvsEvent is a pixel-level brightness-change report.
type DvsEvent struct {
	T  uint64
	X  uint16
	Y  uint16
	On bool
}

// TriggerEvent is an external pin transition report.
type TriggerEvent struct {
	T               uint64
	SystemTimestamp uint64
	ID              uint8
	Rising          bool
}

// Decoder holds the sensor wire-decoder state machine: split MSB/LSB
// timestamp halves, the overflow counter, and the in-progress event
// accumulator. Zero value is the correct initial state.
type Decoder struct {
	Width, Height uint16

	previousMSB uint32
	previousLSB uint32
	overflows   uint32
	t           uint64

	accX  uint16
	accY  uint16
	accOn bool
}

// New constructs a decoder for a sensor of the given pixel dimensions.
func New(width, height uint16) *Decoder {
	return &Decoder{Width: width, Height: height}
}

const (
	opY            = 0b0000
	opXEmit        = 0b0010
	opXBase        = 0b0011
	opVector12     = 0b0100
	opVector8      = 0b0101
	opTimestampLSB = 0b0110
	opTimestampMSB = 0b1000
	opTrigger      = 0b1010
)

// Decode processes a buffer consisting of the raw payload bytes followed by
// an 8-byte little-endian host timestamp (as produced by fifo.FIFO). When
// dispatch is false, internal state (timestamps, x/y, vector-burst
// advances) still updates but no events or triggers are emitted — this
// preserves timestamp consistency across backpressure windows, per
// spec.md §4.F.
func (d *Decoder) Decode(buffer []byte, dispatch bool, onEvent func(DvsEvent), onTrigger func(TriggerEvent)) {
	if len(buffer) < 8 {
		return
	}
	payload := buffer[:len(buffer)-8]
	hostTimestamp := binary.LittleEndian.Uint64(buffer[len(buffer)-8:])
	n := (len(payload) / 2) * 2

	for i := 0; i < n; i += 2 {
		lo := payload[i]
		hi := payload[i+1]
		opcode := hi >> 4

		switch opcode {
		case opY:
			y := uint16(lo) | uint16(hi&0b111)<<8
			if y < d.Height {
				y = d.Height - 1 - y
			}
			d.accY = y

		case opXEmit:
			d.accX = uint16(lo) | uint16(hi&0b111)<<8
			d.accOn = (hi>>3)&1 == 1
			d.emitIfInRange(dispatch, onEvent)

		case opXBase:
			d.accX = uint16(lo) | uint16(hi&0b111)<<8
			d.accOn = (hi>>3)&1 == 1

		case opVector12:
			for bit := 0; bit < 8; bit++ {
				if (lo>>uint(bit))&1 == 1 {
					d.emitIfInRange(dispatch, onEvent)
				}
				d.accX++
			}
			for bit := 0; bit < 4; bit++ {
				if (hi>>uint(bit))&1 == 1 {
					d.emitIfInRange(dispatch, onEvent)
				}
				d.accX++
			}

		case opVector8:
			for bit := 0; bit < 8; bit++ {
				if (lo>>uint(bit))&1 == 1 {
					d.emitIfInRange(dispatch, onEvent)
				}
				d.accX++
			}

		case opTimestampLSB:
			lsb := uint32(lo) | uint32(hi&0b1111)<<8
			if lsb != d.previousLSB {
				d.previousLSB = lsb
				newT := uint64(d.previousLSB|(d.previousMSB<<12)) + (uint64(d.overflows) << 24)
				if newT >= d.t {
					d.t = newT
				}
			}

		case opTimestampMSB:
			msb := uint32(lo) | uint32(hi&0b1111)<<8
			if msb != d.previousMSB {
				if msb > d.previousMSB {
					if msb-d.previousMSB < (1<<12)-2 {
						d.previousLSB = 0
						d.previousMSB = msb
					}
				} else {
					if d.previousMSB-msb > (1<<12)-2 {
						d.overflows++
						d.previousLSB = 0
						d.previousMSB = msb
					}
				}
				newT := uint64(d.previousLSB|(d.previousMSB<<12)) + (uint64(d.overflows) << 24)
				if newT >= d.t {
					d.t = newT
				}
			}

		case opTrigger:
			if dispatch && onTrigger != nil {
				onTrigger(TriggerEvent{
					T:               d.t,
					SystemTimestamp: hostTimestamp,
					ID:              hi & 0b1111,
					Rising:          lo&1 == 1,
				})
			}

		default:
			// unknown opcodes are silently skipped, per spec.md §4.F
		}
	}
}

func (d *Decoder) emitIfInRange(dispatch bool, onEvent func(DvsEvent)) {
	if dispatch && onEvent != nil && d.accX < d.Width && d.accY < d.Height {
		onEvent(DvsEvent{T: d.t, X: d.accX, Y: d.accY, On: d.accOn})
	}
}
