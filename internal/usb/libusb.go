package usb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"

	"github.com/rpiboot/rpibootd/internal/chip"
	"github.com/rpiboot/rpibootd/internal/core"
	"github.com/rpiboot/rpibootd/internal/logs"
)

const (
	requestGetDescriptor = 0x06
	descriptorDevice     = 0x0100
	deviceDescriptorSize = 18
	// offset of iSerialNumber in the device descriptor
	serialIndexOffset = 16
	descriptorTimeout = 1000 * time.Millisecond

	// libusb log levels
	logNone    = 0
	logWarning = 2
)

var (
	ErrNotFound    = errors.New("device not found")
	errNotClaimed  = errors.New("interface not claimed")
	errDescriptor  = errors.New("short device descriptor")
	errConfigIndex = errors.New("active configuration not in descriptor")
)

type LibUSB struct {
	ctx *gousb.Context
	log *logs.Logger
}

func InitLibUSB(log *logs.Logger, verbose bool) *LibUSB {
	log.Log("init")
	ctx := gousb.NewContext()
	level := logNone
	if verbose {
		level = logWarning
	}
	ctx.Debug(level)
	log.Log("init done")
	return &LibUSB{
		ctx: ctx,
		log: log,
	}
}

func (b *LibUSB) Close() error {
	b.log.Log("all close (should happen only on exit)")
	return b.ctx.Close()
}

func (b *LibUSB) Enumerate() ([]core.USBInfo, error) {
	var infos []core.USBInfo
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		infos = append(infos, infoFromDesc(desc))
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err := scanError(len(infos), err, b.log); err != nil {
		return nil, err
	}
	return infos, nil
}

func (b *LibUSB) Open(info core.USBInfo) (core.USBDevice, error) {
	b.log.Logf("opening %s", info.Path)
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == info.Bus && desc.Address == info.Address
	})
	if err := scanError(len(devs), err, b.log); err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, ErrNotFound
	}
	for _, d := range devs[1:] {
		d.Close()
	}

	dev := devs[0]
	if err := dev.SetAutoDetach(true); err != nil {
		b.log.Logf("Warning: cannot enable kernel driver detach: %s", err)
	}
	return &LibUSBDevice{
		dev: dev,
		log: b.log,
	}, nil
}

// scanError decides what the error of an OpenDevices call means.
// gousb goes on past devices whose descriptors cannot be read and
// returns the last such error together with the devices it did get,
// so the scan only failed when nothing came back at all.
func scanError(found int, err error, log *logs.Logger) error {
	if err == nil {
		return nil
	}
	if found == 0 {
		return mapError(err)
	}
	log.Logf("Warning: skipped unreadable devices: %s", err)
	return nil
}

func infoFromDesc(desc *gousb.DeviceDesc) core.USBInfo {
	return core.USBInfo{
		Bus:       desc.Bus,
		Address:   desc.Address,
		Port:      desc.Port,
		Path:      topologyPath(desc.Bus, desc.Path),
		VendorID:  uint16(desc.Vendor),
		ProductID: uint16(desc.Product),
	}
}

// topologyPath formats a port chain as bus-port.port.port, the form
// used for per-device overlay directories.
func topologyPath(bus int, ports []int) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(bus))
	for i, p := range ports {
		if i == 0 {
			sb.WriteByte('-')
		} else {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	return sb.String()
}

// mapError turns the libusb errors seen when a device goes away into
// core.ErrDisconnected.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gousb.ErrorNoDevice) ||
		errors.Is(err, gousb.ErrorIO) ||
		errors.Is(err, gousb.TransferNoDevice) {
		return fmt.Errorf("%w: %s", core.ErrDisconnected, err)
	}
	return err
}

type LibUSBDevice struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint

	log *logs.Logger
}

func (d *LibUSBDevice) SerialNumber() (string, error) {
	s, err := d.dev.SerialNumber()
	return s, mapError(err)
}

// SerialIndex reads iSerialNumber straight from the device descriptor,
// gousb does not expose it.
func (d *LibUSBDevice) SerialIndex() (int, error) {
	return readSerialIndex(d.control)
}

// controlFunc is a control transfer on the default pipe.
type controlFunc func(rType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)

func readSerialIndex(control controlFunc) (int, error) {
	buf := make([]byte, deviceDescriptorSize)
	n, err := control(
		gousb.ControlIn|gousb.ControlDevice,
		requestGetDescriptor, descriptorDevice, 0, buf, descriptorTimeout,
	)
	if err != nil {
		return 0, err
	}
	if n <= serialIndexOffset {
		return 0, errDescriptor
	}
	return int(buf[serialIndexOffset]), nil
}

func (d *LibUSBDevice) InterfaceCount() (int, error) {
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return 0, mapError(err)
	}
	cfg, ok := d.dev.Desc.Configs[num]
	if !ok {
		return 0, errConfigIndex
	}
	return len(cfg.Interfaces), nil
}

func (d *LibUSBDevice) Claim(ep chip.Endpoints) error {
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return mapError(err)
	}
	d.log.Logf("claiming interface %d of config %d", ep.Interface, num)
	cfg, err := d.dev.Config(num)
	if err != nil {
		return mapError(err)
	}
	intf, err := cfg.Interface(ep.Interface, 0)
	if err != nil {
		cfg.Close()
		return mapError(err)
	}
	out, err := intf.OutEndpoint(ep.Out)
	if err != nil {
		intf.Close()
		cfg.Close()
		return mapError(err)
	}
	d.cfg, d.intf, d.out = cfg, intf, out
	d.log.Log("claiming interface done")
	return nil
}

// control sets the timeout on every call; a fresh handle has none,
// which libusb takes as waiting forever.
func (d *LibUSBDevice) control(rType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	d.dev.ControlTimeout = timeout
	n, err := d.dev.Control(rType, request, value, index, data)
	return n, mapError(err)
}

func (d *LibUSBDevice) ControlOut(value, index uint16, data []byte, timeout time.Duration) (int, error) {
	return d.control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, 0, value, index, data, timeout)
}

func (d *LibUSBDevice) ControlIn(value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	return d.control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, 0, value, index, buf, timeout)
}

func (d *LibUSBDevice) BulkOut(data []byte, timeout time.Duration) (int, error) {
	if d.out == nil {
		return 0, errNotClaimed
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.out.WriteContext(ctx, data)
	return n, mapError(err)
}

func (d *LibUSBDevice) Close() error {
	if d.intf != nil {
		d.log.Log("releasing interface")
		d.intf.Close()
		d.intf = nil
		d.out = nil
	}
	if d.cfg != nil {
		if err := d.cfg.Close(); err != nil {
			// just release anyway
			d.log.Logf("Warning: error at releasing config: %s", err)
		}
		d.cfg = nil
	}
	d.log.Log("low level close")
	return d.dev.Close()
}
