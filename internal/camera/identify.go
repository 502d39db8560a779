// Package camera is the public facade: device discovery, opening by
// serial/type, and the Camera handle callers drive with event/trigger
// handlers and live parameter updates.
//
// Grounded on original_source/common/psee.hpp's get_type_and_serial and
// available_devices, and on internal/driver/device/server.go's
// open-blocks-through-bring-up facade shape.
package camera

import (
	"fmt"
	"time"

	"gen4cam/internal/usbtransport"
)

// Type identifies the connected sensor's hardware variant, per
// spec.md §4.B's type tag.
type Type uint32

const (
	TypeUnknown Type = 0
	TypeEVK3HD  Type = 1
	TypeEVK4    Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeEVK3HD:
		return "EVK3-HD"
	case TypeEVK4:
		return "EVK4"
	default:
		return "unknown"
	}
}

// DeviceDescriptor describes one connected, identified device.
type DeviceDescriptor struct {
	Type   Type
	Serial string
	Speed  usbtransport.Speed
}

const (
	sensorTypeRequestType = 0xC0
	sensorTypeRequest     = 0x72
)

var serialRequest = []byte{0x72, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// identify performs the control-transfer type probe and bulk serial
// exchange described in spec.md §4.B, returning a numeric type tag and an
// 8-hex-digit lowercase serial.
func identify(handle *usbtransport.DeviceHandle) (uint32, string, error) {
	typeBuffer := make([]byte, 2)
	if _, err := handle.ControlTransfer("sensor type", sensorTypeRequestType, sensorTypeRequest, 0x00, 0x00, typeBuffer); err != nil {
		return 0, "", err
	}

	var deviceType Type
	switch typeBuffer[0] {
	case 0x30:
		deviceType = TypeEVK3HD
	case 0x31:
		deviceType = TypeEVK4
	default:
		deviceType = TypeUnknown
	}

	if err := handle.BulkWrite("serial request", serialRequest); err != nil {
		return 0, "", err
	}
	serialBuffer := make([]byte, 16)
	if _, err := handle.BulkRead("serial response", serialBuffer, time.Second); err != nil {
		return 0, "", err
	}

	serial := ""
	for index := 11; index >= 8; index-- {
		serial += fmt.Sprintf("%02x", serialBuffer[index])
	}

	return uint32(deviceType), serial, nil
}

// typeFromName maps the human-readable type name used by configuration
// (config.CameraConfig.Type) to the numeric Type tag Open compares against.
func typeFromName(name string) uint32 {
	switch name {
	case "EVK3-HD":
		return uint32(TypeEVK3HD)
	case "EVK4":
		return uint32(TypeEVK4)
	default:
		return 0
	}
}
