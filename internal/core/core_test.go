package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/chip"
	"github.com/rpiboot/rpibootd/internal/message"
)

// frame is one writeFrame as the device saw it: the length announced
// on the control pipe and the bulk data that followed.
type frame struct {
	announced uint32
	data      []byte
}

type fakeDevice struct {
	info        USBInfo
	serial      string
	serialErr   error
	serialIndex int
	indexErr    error
	interfaces  int
	claimErr    error
	openErr     error

	// request frames returned in order; afterwards the device is gone
	requests [][]byte
	readErrs []error
	status   []byte

	frames     []frame
	chunks     []int
	shortWrite bool

	claimed     []chip.Endpoints
	opens       int
	closes      int
	statusReads int
	onClose     func(d *fakeDevice)
}

func (d *fakeDevice) SerialNumber() (string, error) { return d.serial, d.serialErr }
func (d *fakeDevice) SerialIndex() (int, error)     { return d.serialIndex, d.indexErr }
func (d *fakeDevice) InterfaceCount() (int, error)  { return d.interfaces, nil }

func (d *fakeDevice) Claim(ep chip.Endpoints) error {
	if d.claimErr != nil {
		return d.claimErr
	}
	d.claimed = append(d.claimed, ep)
	return nil
}

func (d *fakeDevice) ControlOut(value, index uint16, data []byte, timeout time.Duration) (int, error) {
	d.frames = append(d.frames, frame{announced: uint32(value) | uint32(index)<<16})
	return len(data), nil
}

func (d *fakeDevice) ControlIn(value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	want := int(uint32(value) | uint32(index)<<16)
	if want != len(buf) {
		return 0, errors.New("length mismatch")
	}
	if len(buf) == message.StatusSize {
		d.statusReads++
		return copy(buf, d.status), nil
	}
	if len(d.readErrs) > 0 {
		err := d.readErrs[0]
		d.readErrs = d.readErrs[1:]
		return 0, err
	}
	if len(d.requests) == 0 {
		return 0, ErrDisconnected
	}
	n := copy(buf, d.requests[0])
	d.requests = d.requests[1:]
	return n, nil
}

func (d *fakeDevice) BulkOut(data []byte, timeout time.Duration) (int, error) {
	if len(data) > maxTransfer {
		return 0, errors.New("transfer too large")
	}
	n := len(data)
	if d.shortWrite {
		n /= 2
	}
	last := &d.frames[len(d.frames)-1]
	last.data = append(last.data, data[:n]...)
	d.chunks = append(d.chunks, len(data))
	return n, nil
}

func (d *fakeDevice) Close() error {
	d.closes++
	if d.onClose != nil {
		d.onClose(d)
	}
	return nil
}

type fakeBus struct {
	devices      []*fakeDevice
	enumErr      error
	enumerations int
	onEnumerate  func(n int)
}

func (b *fakeBus) Enumerate() ([]USBInfo, error) {
	b.enumerations++
	if b.onEnumerate != nil {
		b.onEnumerate(b.enumerations)
	}
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	infos := make([]USBInfo, 0, len(b.devices))
	for _, d := range b.devices {
		infos = append(infos, d.info)
	}
	return infos, nil
}

func (b *fakeBus) Open(info USBInfo) (USBDevice, error) {
	for _, d := range b.devices {
		if d.info.Path == info.Path {
			if d.openErr != nil {
				return nil, d.openErr
			}
			d.opens++
			return d, nil
		}
	}
	return nil, errors.New("no such device")
}

func pi4Info(path string, port int) USBInfo {
	return USBInfo{
		Bus:       1,
		Address:   port + 1,
		Port:      port,
		Path:      path,
		VendorID:  chip.VendorBroadcom,
		ProductID: chip.Product2711,
	}
}

func request(t *testing.T, cmd message.Command, name string) []byte {
	t.Helper()
	b, err := message.FileRequest{Command: cmd, Filename: name}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func newResolver(dir string, overlay bool) *bootfiles.Resolver {
	return bootfiles.New(bootfiles.Options{Directory: dir, Overlay: overlay}, nil)
}
