package core

import (
	"fmt"

	"github.com/rpiboot/rpibootd/internal/chip"
	"github.com/rpiboot/rpibootd/internal/logs"
)

type Mode int

const (
	ByTopology Mode = iota
	BySerial
)

func (m Mode) String() string {
	if m == BySerial {
		return "serial"
	}
	return "topology"
}

// NoPort accepts a device on any port.
const NoPort = -1

// Selector describes which device to boot. It is built once from the
// configuration and not changed afterwards.
type Selector struct {
	Mode       Mode
	VendorID   uint16
	ProductIDs []uint16

	// ByTopology only; NoPort and an empty path accept everything
	Port int
	Path string

	// BySerial only
	Serial string
}

// Candidate is a matched and opened device.
type Candidate struct {
	Info       USBInfo
	Device     USBDevice
	Generation chip.Generation
}

func (s Selector) matchesID(info USBInfo) bool {
	if info.VendorID != s.VendorID {
		return false
	}
	for _, pid := range s.ProductIDs {
		if pid == info.ProductID {
			return true
		}
	}
	return false
}

// Find looks for the device once. Not finding it is not an error;
// the caller keeps polling. Errors are fatal only when they are an
// *UnsupportedDeviceError.
func (s Selector) Find(bus USBBus, log *logs.Logger) (*Candidate, error) {
	infos, err := bus.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if s.Mode == BySerial {
		return s.findBySerial(bus, infos, log)
	}
	return s.findByTopology(bus, infos, log)
}

func (s Selector) findByTopology(bus USBBus, infos []USBInfo, log *logs.Logger) (*Candidate, error) {
	for _, info := range infos {
		log.Logf("bus %d device %d path %s id %04x:%04x", info.Bus, info.Address, info.Path, info.VendorID, info.ProductID)
		if !s.matchesID(info) {
			continue
		}
		gen, ok := chip.FromProduct(info.ProductID)
		if !ok {
			continue
		}
		if s.Port != NoPort && info.Port != s.Port {
			log.Logf("%s is on port %d, want %d", info.Path, info.Port, s.Port)
			continue
		}
		if s.Path != "" && info.Path != s.Path {
			log.Logf("%s is not %s", info.Path, s.Path)
			continue
		}

		log.Logf("found %s at %s", gen, info.Path)
		dev, err := bus.Open(info)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", info.Path, err)
		}
		return &Candidate{
			Info:       info,
			Device:     dev,
			Generation: gen,
		}, nil
	}
	return nil, nil
}

func (s Selector) findBySerial(bus USBBus, infos []USBInfo, log *logs.Logger) (*Candidate, error) {
	for _, info := range infos {
		log.Logf("bus %d device %d path %s id %04x:%04x", info.Bus, info.Address, info.Path, info.VendorID, info.ProductID)
		dev, err := bus.Open(info)
		if err != nil {
			log.Logf("cannot open %s: %s", info.Path, err)
			continue
		}
		serial, err := dev.SerialNumber()
		if err != nil || serial != s.Serial {
			if err != nil {
				log.Logf("no serial number on %s: %s", info.Path, err)
			}
			closeDevice(dev, log)
			continue
		}

		gen, ok := chip.FromProduct(info.ProductID)
		if !s.matchesID(info) || !ok {
			closeDevice(dev, log)
			return nil, &UnsupportedDeviceError{
				Serial:    serial,
				VendorID:  info.VendorID,
				ProductID: info.ProductID,
			}
		}

		log.Logf("found %s with serial %s at %s", gen, serial, info.Path)
		return &Candidate{
			Info:       info,
			Device:     dev,
			Generation: gen,
		}, nil
	}
	return nil, nil
}

func closeDevice(dev USBDevice, log *logs.Logger) {
	if err := dev.Close(); err != nil {
		log.Logf("close: %s", err)
	}
}
