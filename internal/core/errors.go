package core

import (
	"errors"
	"fmt"

	"github.com/rpiboot/rpibootd/internal/message"
)

var (
	// ErrDisconnected is returned by USBDevice when the device went away
	// or the transport reports an I/O fault.
	ErrDisconnected = errors.New("device disconnected")

	ErrNoSecondStage = errors.New("second stage image not found")
)

// ProtocolError is a request the device should never send.
type ProtocolError struct {
	Command message.Command
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: unexpected command %s", e.Command)
}

// ShortTransferError is a transfer that moved fewer bytes than the
// protocol requires.
type ShortTransferError struct {
	Stage string
	Want  int
	Got   int
}

func (e *ShortTransferError) Error() string {
	return fmt.Sprintf("short transfer in %s: %d of %d bytes", e.Stage, e.Got, e.Want)
}

// StatusError is a nonzero status returned by the second stage.
type StatusError struct {
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("second stage failed with status 0x%x", uint32(e.Status))
}

// UnsupportedDeviceError means the device with the requested serial
// number is not a chip this tool can boot.
type UnsupportedDeviceError struct {
	Serial    string
	VendorID  uint16
	ProductID uint16
}

func (e *UnsupportedDeviceError) Error() string {
	return fmt.Sprintf("device %q (%04x:%04x) is not a supported chip", e.Serial, e.VendorID, e.ProductID)
}

// isFatal tells whether err must stop the whole run, not only the
// current attempt.
func isFatal(err error) bool {
	var unsupported *UnsupportedDeviceError
	var short *ShortTransferError
	return errors.As(err, &unsupported) || errors.As(err, &short)
}
