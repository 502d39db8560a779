// Package acquisition implements the camera's acquisition engine: the
// producer/consumer/parameter-update threads that turn a bring-up'd sensor
// into a stream of decoded events, plus the engine's own lifecycle state
// machine and single-shot fatal-error handoff.
//
// Grounded on spec.md §4.D/§5 and on the guiperry-HASHER controller's
// mutex-guarded stats/state idiom; the producer/consumer split is carried
// from original_source/common/camera.hpp's buffered_camera threading model.
package acquisition

import (
	"sync"
	"time"

	"gen4cam/internal/config"
	"gen4cam/internal/decoder"
	"gen4cam/internal/fifo"
	"gen4cam/internal/sensor"
	"gen4cam/internal/usbtransport"
)

// Handlers are the caller-supplied callbacks the engine invokes from its
// consumer goroutine (event, trigger, before/after buffer) and from
// whichever goroutine first observes a fatal condition (OnFatal).
type Handlers struct {
	OnEvent      func(decoder.DvsEvent)
	OnTrigger    func(decoder.TriggerEvent)
	BeforeBuffer func() bool
	AfterBuffer  func()
	OnFatal      func(error)
}

// sensorController is the subset of *sensor.EVK4Controller the engine
// drives. Declared as an interface so the producer/consumer/parameter
// wiring can be exercised with a fake in tests without a real USB device.
type sensorController interface {
	Init(sensor.Parameters) error
	Start(maskIntersectionOnly bool) error
	Stop() error
	Reset() error
	SendParameters(biases sensor.Biases, force bool) error
	Dimensions() (uint16, uint16)
}

// transferPool is the subset of *usbtransport.TransferPool the engine
// drives: start N readers, stop and join them.
type transferPool interface {
	Start()
	Stop()
}

// poolFactory builds the transfer pool used by Open. Overridable in tests;
// defaults to a real usbtransport.TransferPool in NewEngine.
type poolFactory func(deliver func([]byte), onError func(error)) transferPool

// Engine owns one open camera's producer, consumer and parameter-update
// goroutines. The zero value is not usable; construct with NewEngine.
type Engine struct {
	controller  sensorController
	cfg         config.CameraConfig
	handlers    Handlers
	newPool     poolFactory

	fifo    *fifo.FIFO
	decoder *decoder.Decoder
	pool    transferPool

	Stats Stats

	mu    sync.Mutex
	state State

	fatalOnce sync.Once
	fatalErr  chan error

	closeOnce sync.Once
	closeErr  error

	paramsMu      sync.Mutex
	paramsPending sensor.Biases
	paramsDirty   bool
	paramsNotify  chan struct{}

	consumerDone chan struct{}
	paramsDone   chan struct{}
	stopParams   chan struct{}
}

// NewEngine constructs an engine bound to an already-opened device handle
// and sensor controller. Call Open to run bring-up and begin acquisition.
func NewEngine(cfg config.CameraConfig, handle *usbtransport.DeviceHandle, controller *sensor.EVK4Controller, handlers Handlers) *Engine {
	width, height := controller.Dimensions()
	return newEngine(cfg, controller, handlers, width, height, func(deliver func([]byte), onError func(error)) transferPool {
		return usbtransport.NewTransferPool(handle, cfg.BufferCount, cfg.BufferSize, cfg.USBEventTimeout, deliver, onError)
	})
}

func newEngine(cfg config.CameraConfig, controller sensorController, handlers Handlers, width, height uint16, newPool poolFactory) *Engine {
	return &Engine{
		controller:   controller,
		cfg:          cfg,
		handlers:     handlers,
		newPool:      newPool,
		fifo:         fifo.New(cfg.FIFOCapacity, cfg.FIFOPopTimeout, nil),
		decoder:      decoder.New(width, height),
		state:        StateOpening,
		fatalErr:     make(chan error, 1),
		paramsNotify: make(chan struct{}, 1),
		consumerDone: make(chan struct{}),
		paramsDone:   make(chan struct{}),
		stopParams:   make(chan struct{}),
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Open runs the sensor bring-up sequence with the given parameters, then
// starts the producer, consumer and parameter-update goroutines and enables
// streaming. Opening → Ready happens on bring-up completion; Ready →
// Running happens once the transfer pool is launched.
func (e *Engine) Open(params sensor.Parameters) error {
	e.fifo = fifo.New(e.cfg.FIFOCapacity, e.cfg.FIFOPopTimeout, e.Stats.recordDrop)

	if err := e.controller.Init(params); err != nil {
		return err
	}
	e.setState(StateReady)

	e.pool = e.newPool(e.onBuffer, e.raiseFatal)

	if err := e.controller.Start(params.MaskIntersectionOnly); err != nil {
		return err
	}

	go e.consumeLoop()
	go e.parameterLoop()
	e.pool.Start()
	e.setState(StateRunning)
	return nil
}

// onBuffer is the producer callback: it pushes the completed transfer
// payload (with an appended host timestamp) into the FIFO for the consumer
// to decode.
func (e *Engine) onBuffer(buf []byte) {
	e.fifo.PushWithTimestamp(buf)
}

// consumeLoop pops buffers off the FIFO and decodes them until the engine
// stops. It is the acquisition engine's single consumer goroutine.
func (e *Engine) consumeLoop() {
	defer close(e.consumerDone)
	for {
		select {
		case <-e.stopParams:
			return
		default:
		}

		buffer, result := e.fifo.Pop()
		if !result.Success {
			continue
		}

		dispatch := true
		if e.handlers.BeforeBuffer != nil {
			dispatch = e.handlers.BeforeBuffer()
		}

		e.decoder.Decode(buffer, dispatch,
			func(ev decoder.DvsEvent) {
				e.Stats.recordEvent()
				if e.handlers.OnEvent != nil {
					e.handlers.OnEvent(ev)
				}
			},
			func(tr decoder.TriggerEvent) {
				e.Stats.recordTrigger()
				if e.handlers.OnTrigger != nil {
					e.handlers.OnTrigger(tr)
				}
			},
		)
		e.Stats.recordBuffer()

		if e.handlers.AfterBuffer != nil {
			e.handlers.AfterBuffer()
		}
	}
}

// UpdateParameters requests a bias update. Only the most recently requested
// set of biases is guaranteed to be applied: concurrent calls coalesce onto
// whichever call's value the parameter-update goroutine observes when it
// next wakes, per spec.md §4.D/§8 scenario 6.
func (e *Engine) UpdateParameters(biases sensor.Biases) {
	e.paramsMu.Lock()
	e.paramsPending = biases
	e.paramsDirty = true
	e.paramsMu.Unlock()

	select {
	case e.paramsNotify <- struct{}{}:
	default:
	}
}

// parameterLoop waits for UpdateParameters requests and applies the most
// recent one via SendParameters's diff suppression, absorbing any requests
// superseded before it woke.
func (e *Engine) parameterLoop() {
	defer close(e.paramsDone)
	for {
		select {
		case <-e.stopParams:
			return
		case <-e.paramsNotify:
		case <-time.After(e.cfg.ParameterTimeout):
		}

		select {
		case <-e.stopParams:
			return
		default:
		}

		if err := e.applyPendingParameters(); err != nil {
			e.raiseFatal(err)
			return
		}
	}
}

// applyPendingParameters snapshots the latest requested biases (if any
// request is outstanding) and sends the diff. Split out from parameterLoop
// so the coalescing logic can be driven directly in tests without racing a
// real wait loop.
func (e *Engine) applyPendingParameters() error {
	e.paramsMu.Lock()
	if !e.paramsDirty {
		e.paramsMu.Unlock()
		return nil
	}
	biases := e.paramsPending
	e.paramsDirty = false
	e.paramsMu.Unlock()

	return e.controller.SendParameters(biases, false)
}

// raiseFatal implements the single-shot exception handoff: the first
// goroutine to observe a fatal condition atomically flips the engine to
// Stopping and is the only one to deliver the error to OnFatal.
func (e *Engine) raiseFatal(err error) {
	delivered := false
	e.fatalOnce.Do(func() {
		delivered = true
		select {
		case e.fatalErr <- err:
		default:
		}
		e.setState(StateStopping)
	})
	if delivered && e.handlers.OnFatal != nil {
		e.handlers.OnFatal(err)
	}
	go e.Close()
}

// Close stops acquisition: cancels the transfer pool, joins the consumer
// and parameter goroutines, and runs the sensor teardown sequence. Safe to
// call more than once and safe to call concurrently with a fatal-error
// triggered shutdown — only the first caller does any work.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.setState(StateStopping)
		if e.pool != nil {
			e.pool.Stop()
		}
		close(e.stopParams)
		<-e.consumerDone
		<-e.paramsDone
		e.closeErr = e.controller.Reset()
		e.setState(StateClosed)
	})
	return e.closeErr
}

// FatalError returns the error delivered to this engine's single-shot
// exception handoff, if any has fired yet.
func (e *Engine) FatalError() (error, bool) {
	select {
	case err := <-e.fatalErr:
		e.fatalErr <- err
		return err, true
	default:
		return nil, false
	}
}
