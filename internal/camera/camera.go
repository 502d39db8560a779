package camera

import (
	"io"

	"gen4cam/internal/acquisition"
	"gen4cam/internal/config"
	"gen4cam/internal/decoder"
	"gen4cam/internal/eventstream"
	"gen4cam/internal/sensor"
	"gen4cam/internal/usbtransport"
)

// AvailableDevices lists every connected, identifiable device matching the
// driver's recognized USB identities, per spec.md §4.A's enumerate contract.
func AvailableDevices() ([]DeviceDescriptor, error) {
	infos, err := usbtransport.AvailableDevices(usbtransport.Identities, identify)
	if err != nil {
		return nil, err
	}
	descriptors := make([]DeviceDescriptor, 0, len(infos))
	for _, info := range infos {
		descriptors = append(descriptors, DeviceDescriptor{
			Type:   Type(info.TypeTag),
			Serial: info.Serial,
			Speed:  info.Speed,
		})
	}
	return descriptors, nil
}

// Handlers are the caller-supplied callbacks a Camera invokes as it streams:
// per-event and per-trigger dispatch, an optional gate evaluated before each
// buffer is decoded, an optional hook run after, and a fatal-exception
// handoff. Mirrors acquisition.Handlers at the facade boundary.
type Handlers struct {
	OnEvent      func(decoder.DvsEvent)
	OnTrigger    func(decoder.TriggerEvent)
	BeforeBuffer func() bool
	AfterBuffer  func()
	OnFatal      func(error)
}

// Camera is an opened, bringing-up-or-running sensor. Construct with Open;
// Close tears it down and releases the underlying USB device.
type Camera struct {
	handle     *usbtransport.DeviceHandle
	controller *sensor.EVK4Controller
	engine     *acquisition.Engine
	descriptor DeviceDescriptor
}

// Open claims the first connected recognized device, runs sensor bring-up,
// and begins streaming. Open blocks until the sensor is running, per
// spec.md §4.H's open-blocks-through-bring-up contract. When cfg names a
// serial or type, that first device must match it or Open fails with
// SerialNotAvailable; other connected devices are not tried.
func Open(cfg config.CameraConfig, params sensor.Parameters, handlers Handlers) (*Camera, error) {
	deviceType := typeFromName(cfg.Type)

	handle, err := usbtransport.Open("gen4 camera", usbtransport.Identities, identify, cfg.Serial, deviceType)
	if err != nil {
		return nil, err
	}

	gotType, serial, err := identify(handle)
	if err != nil {
		handle.Close()
		return nil, err
	}

	controller := sensor.NewEVK4Controller(handle)
	engine := acquisition.NewEngine(cfg, handle, controller, acquisition.Handlers{
		OnEvent:      handlers.OnEvent,
		OnTrigger:    handlers.OnTrigger,
		BeforeBuffer: handlers.BeforeBuffer,
		AfterBuffer:  handlers.AfterBuffer,
		OnFatal:      handlers.OnFatal,
	})

	if err := engine.Open(params); err != nil {
		handle.Close()
		return nil, err
	}

	return &Camera{
		handle:     handle,
		controller: controller,
		engine:     engine,
		descriptor: DeviceDescriptor{Type: Type(gotType), Serial: serial, Speed: handle.Speed()},
	}, nil
}

// Descriptor reports the opened device's type, serial and negotiated speed.
func (c *Camera) Descriptor() DeviceDescriptor {
	return c.descriptor
}

// Dimensions reports the sensor's pixel width and height.
func (c *Camera) Dimensions() (uint16, uint16) {
	return c.controller.Dimensions()
}

// State reports the engine's current lifecycle state.
func (c *Camera) State() acquisition.State {
	return c.engine.State()
}

// Stats returns a point-in-time snapshot of the acquisition counters.
func (c *Camera) Stats() acquisition.StatsSnapshot {
	return c.engine.Stats.Snapshot()
}

// UpdateParameters requests a live bias update; only the most recently
// requested set is guaranteed to be applied, per spec.md §4.D/§8 scenario 6.
func (c *Camera) UpdateParameters(biases sensor.Biases) {
	c.engine.UpdateParameters(biases)
}

// FatalError returns the error that stopped acquisition, if any has fired.
func (c *Camera) FatalError() (error, bool) {
	return c.engine.FatalError()
}

// Close stops acquisition, tears down the sensor and releases the USB
// device. Safe to call more than once.
func (c *Camera) Close() error {
	engineErr := c.engine.Close()
	if err := c.handle.Close(); err != nil && engineErr == nil {
		return err
	}
	return engineErr
}

// NewEventSink opens a DVS Event Stream writer against w sized to the
// camera's own dimensions, returning a function suitable for use as
// Handlers.OnEvent, per spec.md §4.G/§4.H.
func (c *Camera) NewEventSink(w io.Writer) (func(decoder.DvsEvent) error, error) {
	width, height := c.Dimensions()
	writer, err := eventstream.NewDVSWriter(w, width, height)
	if err != nil {
		return nil, err
	}
	return func(ev decoder.DvsEvent) error {
		return writer.Write(eventstream.DVSEvent{T: ev.T, X: ev.X, Y: ev.Y, On: ev.On})
	}, nil
}
