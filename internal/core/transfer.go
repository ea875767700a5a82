package core

import (
	"time"

	"github.com/rpiboot/rpibootd/internal/message"
)

const (
	// largest single bulk transfer the transport accepts
	maxTransfer = 16 * 1024

	controlOutTimeout = 1000 * time.Millisecond
	controlInTimeout  = 2000 * time.Millisecond
	bulkTimeout       = 5000 * time.Millisecond
)

// writeFrame announces len(data) on the control pipe and then sends
// data in bulk chunks. An empty frame is the zero-length acknowledgment.
// It returns the number of payload bytes the device took.
func writeFrame(dev USBDevice, data []byte) (int, error) {
	low, high := message.SplitLength(uint32(len(data)))
	if _, err := dev.ControlOut(low, high, nil, controlOutTimeout); err != nil {
		return 0, err
	}

	sent := 0
	for sent < len(data) {
		end := sent + maxTransfer
		if end > len(data) {
			end = len(data)
		}
		n, err := dev.BulkOut(data[sent:end], bulkTimeout)
		sent += n
		if err != nil {
			return sent, err
		}
		if n == 0 {
			break
		}
	}
	return sent, nil
}

func ack(dev USBDevice) error {
	_, err := writeFrame(dev, nil)
	return err
}

// readFrame asks the device for len(buf) bytes on the control pipe.
func readFrame(dev USBDevice, buf []byte) (int, error) {
	low, high := message.SplitLength(uint32(len(buf)))
	return dev.ControlIn(low, high, buf, controlInTimeout)
}

// sendSize answers GetSize; the size travels in value and index.
func sendSize(dev USBDevice, size int64) error {
	low, high := message.SplitLength(uint32(size))
	_, err := dev.ControlOut(low, high, nil, controlOutTimeout)
	return err
}
