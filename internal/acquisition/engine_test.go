package acquisition

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gen4cam/internal/config"
	"gen4cam/internal/decoder"
	"gen4cam/internal/sensor"
)

type fakeController struct {
	mu             sync.Mutex
	initCalls      int
	startCalls     int
	stopCalls      int
	resetCalls     int
	sentParameters []sensor.Biases
	initErr        error
	startErr       error
	sendErr        error
}

func (f *fakeController) Init(sensor.Parameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakeController) Start(bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeController) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	return nil
}

func (f *fakeController) SendParameters(biases sensor.Biases, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentParameters = append(f.sentParameters, biases)
	return f.sendErr
}

func (f *fakeController) Dimensions() (uint16, uint16) { return 1280, 720 }

type fakePool struct {
	mu        sync.Mutex
	started   bool
	stopped   bool
	deliver   func([]byte)
	onError   func(error)
}

func newFakePoolFactory(pool *fakePool) poolFactory {
	return func(deliver func([]byte), onError func(error)) transferPool {
		pool.deliver = deliver
		pool.onError = onError
		return pool
	}
}

func (p *fakePool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
}

func (p *fakePool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func testConfig() config.CameraConfig {
	return config.CameraConfig{
		BufferSize:       4096,
		BufferCount:      2,
		FIFOCapacity:     8,
		DropThreshold:    64,
		FIFOPopTimeout:   10 * time.Millisecond,
		USBEventTimeout:  10 * time.Millisecond,
		ParameterTimeout: 10 * time.Millisecond,
	}
}

func TestEngineOpenTransitionsThroughReadyToRunning(t *testing.T) {
	controller := &fakeController{}
	pool := &fakePool{}
	engine := newEngine(testConfig(), controller, Handlers{}, 1280, 720, newFakePoolFactory(pool))

	require.Equal(t, StateOpening, engine.State())
	require.NoError(t, engine.Open(sensor.Parameters{}))

	assert.Equal(t, StateRunning, engine.State())
	assert.Equal(t, 1, controller.initCalls)
	assert.Equal(t, 1, controller.startCalls)
	assert.True(t, pool.started)

	require.NoError(t, engine.Close())
	assert.Equal(t, StateClosed, engine.State())
	assert.True(t, pool.stopped)
	assert.Equal(t, 1, controller.resetCalls)
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	controller := &fakeController{}
	pool := &fakePool{}
	engine := newEngine(testConfig(), controller, Handlers{}, 1280, 720, newFakePoolFactory(pool))
	require.NoError(t, engine.Open(sensor.Parameters{}))

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	assert.Equal(t, 1, controller.resetCalls)
}

func TestUpdateParametersCoalescesToLatestValue(t *testing.T) {
	controller := &fakeController{}
	pool := &fakePool{}
	engine := newEngine(testConfig(), controller, Handlers{}, 1280, 720, newFakePoolFactory(pool))

	engine.UpdateParameters(sensor.Biases{PR: 1})
	engine.UpdateParameters(sensor.Biases{PR: 2})
	engine.UpdateParameters(sensor.Biases{PR: 3})

	require.NoError(t, engine.applyPendingParameters())

	require.Len(t, controller.sentParameters, 1)
	assert.Equal(t, int8(3), controller.sentParameters[0].PR)

	// A second apply with nothing new pending must not re-send.
	require.NoError(t, engine.applyPendingParameters())
	assert.Len(t, controller.sentParameters, 1)
}

func TestEngineConsumerDecodesDeliveredBuffers(t *testing.T) {
	controller := &fakeController{}
	pool := &fakePool{}
	engine := newEngine(testConfig(), controller, Handlers{}, 1280, 720, newFakePoolFactory(pool))

	var mu sync.Mutex
	var events []decoder.DvsEvent
	engine.handlers.OnEvent = func(ev decoder.DvsEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	require.NoError(t, engine.Open(sensor.Parameters{}))

	// x=0,on=true immediate-emit opcode (0b0010), then 8 zero bytes. onBuffer
	// appends its own host timestamp via fifo.PushWithTimestamp, so the zero
	// bytes are decoded as Y-address words, which emit nothing.
	payload := []byte{0x00, 0x28}
	buffer := append(payload, make([]byte, 8)...)
	pool.deliver(buffer)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, engine.Close())
}

func TestEngineRaisesFatalOnceAndTransitionsToStopping(t *testing.T) {
	controller := &fakeController{}
	pool := &fakePool{}
	engine := newEngine(testConfig(), controller, Handlers{}, 1280, 720, newFakePoolFactory(pool))

	var mu sync.Mutex
	var delivered []error
	engine.handlers.OnFatal = func(err error) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, err)
	}

	require.NoError(t, engine.Open(sensor.Parameters{}))

	fatal := errors.New("transfer error")
	pool.onError(fatal)
	pool.onError(fatal)

	require.Eventually(t, func() bool {
		return engine.State() == StateClosed
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, delivered, 1)
	assert.Equal(t, fatal, delivered[0])
}
