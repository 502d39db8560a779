package eventstream

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripDVS(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, TypeDVS, 1280, 720))
	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeDVS, header.EventType)
	assert.Equal(t, uint16(1280), header.Width)
	assert.Equal(t, uint16(720), header.Height)
}

func TestHeaderRoundTripGenericHasNoDimensions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, TypeGeneric, 0, 0))
	assert.Equal(t, len(Signature)+3+1, buf.Len())
	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, TypeGeneric, header.EventType)
	assert.Equal(t, uint16(0), header.Width)
}

func TestReadHeaderRejectsWrongSignature(t *testing.T) {
	buf := bytes.NewBufferString("not an event stream header at all")
	_, err := ReadHeader(buf)
	assert.IsType(t, &WrongSignature{}, err)
}

func TestReadHeaderRejectsUnsupportedType(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(Signature)
	buf.Write(Version[:])
	buf.WriteByte(0x03)
	_, err := ReadHeader(&buf)
	assert.IsType(t, &UnsupportedEventType{}, err)
}

func TestDVSWriteDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewDVSWriter(&buf, 1280, 720)
	require.NoError(t, err)

	events := []DVSEvent{
		{T: 0, X: 12, Y: 34, On: true},
		{T: 100, X: 13, Y: 35, On: false},
		{T: 100, X: 1279, Y: 719, On: true},
	}
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	decoder := NewDVSDecoder(header.Width, header.Height)
	var decoded []DVSEvent
	for {
		b, err := buf.ReadByte()
		if err != nil {
			break
		}
		event, complete, err := decoder.Feed(b)
		require.NoError(t, err)
		if complete {
			decoded = append(decoded, event)
		}
	}
	assert.Equal(t, events, decoded)
}

func TestDVSTimestampOverflowAcrossWrite(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewDVSWriter(&buf, 10, 10)
	require.NoError(t, err)
	require.NoError(t, w.Write(DVSEvent{T: 0, X: 1, Y: 1, On: true}))
	require.NoError(t, w.Write(DVSEvent{T: 500, X: 2, Y: 2, On: false}))

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	decoder := NewDVSDecoder(header.Width, header.Height)
	var decoded []DVSEvent
	for {
		b, err := buf.ReadByte()
		if err != nil {
			break
		}
		event, complete, err := decoder.Feed(b)
		require.NoError(t, err)
		if complete {
			decoded = append(decoded, event)
		}
	}
	require.Len(t, decoded, 2)
	assert.Equal(t, uint64(500), decoded[1].T)
}

func TestDVSWriteRejectsOutOfRangeCoordinates(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewDVSWriter(&buf, 10, 10)
	require.NoError(t, err)
	err = w.Write(DVSEvent{T: 0, X: 10, Y: 0})
	assert.IsType(t, &CoordinatesOverflow{}, err)
}

func TestDVSWriteRejectsNonMonotonicTimestamp(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewDVSWriter(&buf, 10, 10)
	require.NoError(t, err)
	require.NoError(t, w.Write(DVSEvent{T: 100, X: 1, Y: 1}))
	err = w.Write(DVSEvent{T: 50, X: 1, Y: 1})
	assert.IsType(t, &TimestampRegression{}, err)
}

func TestATISWriteDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewATISWriter(&buf, 320, 240)
	require.NoError(t, err)

	events := []ATISEvent{
		{T: 0, X: 5, Y: 6, Polarity: true, IsThresholdCrossing: false},
		{T: 300, X: 7, Y: 8, Polarity: false, IsThresholdCrossing: true},
	}
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	decoder := NewATISDecoder(header.Width, header.Height)
	var decoded []ATISEvent
	for {
		b, err := buf.ReadByte()
		if err != nil {
			break
		}
		event, complete, err := decoder.Feed(b)
		require.NoError(t, err)
		if complete {
			decoded = append(decoded, event)
		}
	}
	assert.Equal(t, events, decoded)
}

func TestColorWriteDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewColorWriter(&buf, 640, 480)
	require.NoError(t, err)

	events := []ColorEvent{
		{T: 0, X: 1, Y: 2, R: 10, G: 20, B: 30},
		{T: 1000, X: 3, Y: 4, R: 40, G: 50, B: 60},
	}
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	decoder := NewColorDecoder(header.Width, header.Height)
	var decoded []ColorEvent
	for {
		b, err := buf.ReadByte()
		if err != nil {
			break
		}
		event, complete, err := decoder.Feed(b)
		require.NoError(t, err)
		if complete {
			decoded = append(decoded, event)
		}
	}
	assert.Equal(t, events, decoded)
}

func TestGenericWriteDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewGenericWriter(&buf)
	require.NoError(t, err)

	events := []GenericEvent{
		{T: 0, Bytes: []byte{}},
		{T: 10, Bytes: []byte("hello")},
		{T: 300, Bytes: bytes.Repeat([]byte{0xab}, 200)},
	}
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}

	_, err = ReadHeader(&buf)
	require.NoError(t, err)
	decoder := NewGenericDecoder()
	var decoded []GenericEvent
	for {
		b, err := buf.ReadByte()
		if err != nil {
			break
		}
		event, complete, err := decoder.Feed(b)
		require.NoError(t, err)
		if complete {
			decoded = append(decoded, event)
		}
	}
	require.Len(t, decoded, len(events))
	for i, ev := range events {
		assert.Equal(t, ev.T, decoded[i].T)
		assert.Equal(t, ev.Bytes, decoded[i].Bytes)
	}
}

func TestObserverDispatchesEventsAsFastAsPossible(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewDVSWriter(&buf, 10, 10)
	require.NoError(t, err)
	require.NoError(t, w.Write(DVSEvent{T: 0, X: 1, Y: 1, On: true}))
	require.NoError(t, w.Write(DVSEvent{T: 1_000_000, X: 2, Y: 2, On: false}))

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	source := bytes.NewReader(buf.Bytes())
	decoder := NewDVSDecoder(header.Width, header.Height)

	var received []DVSEvent
	observer := NewObserver[DVSEvent](source, decoder, func(e DVSEvent) uint64 { return e.T },
		DispatchAsFastAsPossible,
		func(e DVSEvent) error { received = append(received, e); return nil },
		nil)

	err = observer.Run(context.Background(), TypeDVS)
	assert.IsType(t, &EndOfFile{}, err)
	assert.Len(t, received, 2)
}

func TestObserverRestartsWhenPredicateAllows(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewDVSWriter(&buf, 10, 10)
	require.NoError(t, err)
	require.NoError(t, w.Write(DVSEvent{T: 0, X: 1, Y: 1, On: true}))

	full := buf.Bytes()
	header, err := ReadHeader(bytes.NewReader(full))
	require.NoError(t, err)

	source := bytes.NewReader(full)
	_, err = source.Seek(headerSize(TypeDVS), 0)
	require.NoError(t, err)
	decoder := NewDVSDecoder(header.Width, header.Height)

	restarts := 0
	count := 0
	observer := NewObserver[DVSEvent](source, decoder, func(e DVSEvent) uint64 { return e.T },
		DispatchAsFastAsPossible,
		func(e DVSEvent) error { count++; return nil },
		func() bool {
			restarts++
			return restarts <= 2
		})

	err = observer.Run(context.Background(), TypeDVS)
	assert.IsType(t, &EndOfFile{}, err)
	assert.Equal(t, 3, count)
}
