package core

import (
	"time"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/chip"
)

// Package with the "core logic" of booting a device: finding it,
// pushing the second stage and serving the files it asks for.
//
// The usb package is not imported here; it needs cgo and libusb,
// and the logic below is easier to build and test against the
// abstract interfaces instead.

// USB* interfaces are implemented in the usb package.

type USBBus interface {
	Enumerate() ([]USBInfo, error)
	Open(info USBInfo) (USBDevice, error)
}

type USBInfo struct {
	Bus       int
	Address   int
	Port      int    // port the device is attached to on its hub
	Path      string // topology path, bus-port.port...
	VendorID  uint16
	ProductID uint16
}

// USBDevice is an open handle. Only one goroutine uses it at a time.
type USBDevice interface {
	SerialNumber() (string, error)

	// SerialIndex is the string descriptor index of the serial number,
	// which the ROM uses to tell its boot stages apart.
	SerialIndex() (int, error)

	InterfaceCount() (int, error)
	Claim(ep chip.Endpoints) error

	// vendor control transfers on the default pipe
	ControlOut(value, index uint16, data []byte, timeout time.Duration) (int, error)
	ControlIn(value, index uint16, buf []byte, timeout time.Duration) (int, error)

	// bulk transfer on the claimed out endpoint
	BulkOut(data []byte, timeout time.Duration) (int, error)

	Close() error
}

// Resolver finds boot files; implemented by bootfiles.Resolver.
type Resolver interface {
	Resolve(target bootfiles.Target, name string) (*bootfiles.File, error)
}
