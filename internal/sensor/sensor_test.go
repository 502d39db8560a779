package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regWrite struct {
	address uint32
	value   uint32
}

type fakeHandle struct {
	writes    []regWrite
	reads     []uint32
	flushed   bool
	probed    []byte
	readValue uint32
}

func (f *fakeHandle) WriteRegister(address, value uint32) error {
	f.writes = append(f.writes, regWrite{address, value})
	return nil
}

func (f *fakeHandle) ReadRegister(address uint32) (uint32, error) {
	f.reads = append(f.reads, address)
	return f.readValue, nil
}

func (f *fakeHandle) FlushBulkIn(bufferSize int, timeout time.Duration) error {
	f.flushed = true
	return nil
}

func (f *fakeHandle) BulkProbe(request []byte, timeout time.Duration) error {
	f.probed = request
	return nil
}

func (f *fakeHandle) lastWriteTo(address uint32) (uint32, bool) {
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].address == address {
			return f.writes[i].value, true
		}
	}
	return 0, false
}

func TestSendParametersSkipsUnchangedBiasesUnlessForced(t *testing.T) {
	handle := &fakeHandle{}
	c := NewEVK4Controller(handle)

	err := c.SendParameters(Biases{PR: 5, Refr: -3}, true)
	require.NoError(t, err)
	assert.Len(t, handle.writes, 13)

	handle.writes = nil
	err = c.SendParameters(Biases{PR: 5, Refr: -3}, false)
	require.NoError(t, err)
	assert.Empty(t, handle.writes, "no field changed, nothing should be written")

	handle.writes = nil
	err = c.SendParameters(Biases{PR: 9, Refr: -3}, false)
	require.NoError(t, err)
	assert.Len(t, handle.writes, 1)
	assert.Equal(t, biasPRAddress, handle.writes[0].address)
}

func TestBgenIdacCtlMasksToLowByte(t *testing.T) {
	assert.EqualValues(t, 0x05, bgenIdacCtl(5))
	// -1 as int8 is 0xff; masked into the low byte unchanged.
	assert.EqualValues(t, 0xff, bgenIdacCtl(-1))
}

func TestProgramROIWritesRoiCtrlWithMaskIntersection(t *testing.T) {
	handle := &fakeHandle{}
	var x XMask
	var y YMask
	require.NoError(t, programROI(handle, x, y, true))

	value, ok := handle.lastWriteTo(roiCtrlAddress)
	require.True(t, ok)
	assert.EqualValues(t, 0xf0005022, value)

	handle = &fakeHandle{}
	require.NoError(t, programROI(handle, x, y, false))
	value, ok = handle.lastWriteTo(roiCtrlAddress)
	require.True(t, ok)
	assert.EqualValues(t, 0xf0005022|(1<<6), value)
}

func TestProgramROIXMaskSplitsLowAndHighWords(t *testing.T) {
	handle := &fakeHandle{}
	var x XMask
	x[0] = 0x00000000ffffffff
	var y YMask
	require.NoError(t, programROI(handle, x, y, true))

	low, ok := handle.lastWriteTo(tdRoiXBegin)
	require.True(t, ok)
	assert.EqualValues(t, 0xffffffff, low)

	high, ok := handle.lastWriteTo(tdRoiXBegin + 4)
	require.True(t, ok)
	assert.EqualValues(t, 0x00000000, high)
}

func TestProgramROIYMaskTailUsesSentinel(t *testing.T) {
	handle := &fakeHandle{}
	var x XMask
	var y YMask
	y[0] = 0x1122334455667788
	require.NoError(t, programROI(handle, x, y, true))

	lastAddress := tdRoiYBegin + (((tdRoiYEnd - tdRoiYBegin) / 4) - 1)*4
	value, ok := handle.lastWriteTo(lastAddress)
	require.True(t, ok)
	// y[0] = 0x1122334455667788 little-endian: byte index 0 is 0x88, index 1 is 0x77.
	byte2 := reverseBits(0x88)
	byte3 := reverseBits(0x77)
	expected := uint32(byte3) | uint32(byte2)<<8 | uint32(0xff)<<16 | uint32(0x00)<<24
	assert.EqualValues(t, expected, value)
}

func TestReverseBits(t *testing.T) {
	assert.EqualValues(t, 0x00, reverseBits(0x00))
	assert.EqualValues(t, 0xff, reverseBits(0xff))
	assert.EqualValues(t, 0x01, reverseBits(0x80))
	assert.EqualValues(t, 0xc0, reverseBits(0x03))
}

func TestEVK4ControllerStopReadsBeforeWritingTimeBase(t *testing.T) {
	handle := &fakeHandle{}
	c := NewEVK4Controller(handle)
	require.NoError(t, c.Stop())

	assert.Contains(t, handle.reads, timeBaseCtrlAddress)
	value, ok := handle.lastWriteTo(roiCtrlAddress)
	require.True(t, ok)
	assert.EqualValues(t, 0xf0005042, value)
}

func TestEVK4ControllerResetRunsStopThenDestroyOnly(t *testing.T) {
	handle := &fakeHandle{}
	c := NewEVK4Controller(handle)
	require.NoError(t, c.Reset())

	// destroy's first write is to 0x0070; init's is never reached by Reset.
	var sawDestroyStart, sawInitOnly bool
	for _, w := range handle.writes {
		if w.address == 0x0070 {
			sawDestroyStart = true
		}
		if w.address == 0x001c {
			sawInitOnly = true
		}
	}
	assert.True(t, sawDestroyStart)
	assert.False(t, sawInitOnly)
}

func TestEVK4ControllerInitFlushesAndProbesBeforeSendingBiases(t *testing.T) {
	handle := &fakeHandle{}
	c := NewEVK4Controller(handle)
	require.NoError(t, c.Init(Parameters{Biases: Biases{PR: 1}}))

	assert.True(t, handle.flushed)
	assert.Equal(t, []byte{0x72, 0, 0, 0, 0, 0, 0, 0}, handle.probed)
	value, ok := handle.lastWriteTo(biasPRAddress)
	require.True(t, ok)
	assert.EqualValues(t, biasFlags|1, value)
}

func TestPSEE413SendParametersDiffSuppression(t *testing.T) {
	handle := &fakeHandle{}
	c := NewPSEE413Controller(handle)

	require.NoError(t, c.SendParameters(PSEE413Biases{PR: 2}, true))
	assert.Len(t, handle.writes, 10)

	handle.writes = nil
	require.NoError(t, c.SendParameters(PSEE413Biases{PR: 2}, false))
	assert.Empty(t, handle.writes)
}
