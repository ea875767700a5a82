package chip

import "fmt"

// VendorBroadcom is the vendor id the boot ROM enumerates with.
const VendorBroadcom = 0x0a5c

const (
	Product2763 = 0x2763
	Product2764 = 0x2764
	Product2711 = 0x2711
	Product2712 = 0x2712
)

type Generation int

const (
	Gen2835 Generation = iota // BCM2835/6/7
	Gen2711
	Gen2712
)

// Info is everything that differs between chip generations.
type Info struct {
	Name string

	// file the ROM expects as the second stage
	SecondStage string

	// directory the generation's files live under inside a bundle
	ArchivePrefix string

	// the ROM checks a signature in the boot message header
	SignedHeader bool

	// logical name => path in the compiled-in defaults
	Defaults map[string]string
}

var generations = map[Generation]Info{
	Gen2835: {
		Name:          "BCM2835/6/7",
		SecondStage:   "bootcode.bin",
		ArchivePrefix: "2710",
		SignedHeader:  true,
		Defaults: map[string]string{
			"bootcode.bin": "msd/bootcode.bin",
			"start.elf":    "msd/start.elf",
		},
	},
	Gen2711: {
		Name:          "BCM2711",
		SecondStage:   "bootcode4.bin",
		ArchivePrefix: "2711",
		Defaults: map[string]string{
			"bootcode4.bin": "msd/bootcode4.bin",
			"start4.elf":    "msd/start4.elf",
		},
	},
	Gen2712: {
		Name:          "BCM2712",
		SecondStage:   "bootcode5.bin",
		ArchivePrefix: "2712",
		Defaults: map[string]string{
			"bootcode5.bin": "msd/bootcode5.bin",
		},
	},
}

var products = map[uint16]Generation{
	Product2763: Gen2835,
	Product2764: Gen2835,
	Product2711: Gen2711,
	Product2712: Gen2712,
}

// FromProduct maps a boot ROM product id to its generation.
func FromProduct(pid uint16) (Generation, bool) {
	g, ok := products[pid]
	return g, ok
}

// ProductIDs lists every product id the boot ROMs use.
func ProductIDs() []uint16 {
	return []uint16{Product2763, Product2764, Product2711, Product2712}
}

func (g Generation) Info() Info {
	return generations[g]
}

func (g Generation) String() string {
	info, ok := generations[g]
	if !ok {
		return fmt.Sprintf("Generation(%d)", int(g))
	}
	return info.Name
}

// IsSecondStage reports whether name is the second stage image of
// any generation. Those always come from the base directory.
func IsSecondStage(name string) bool {
	for _, info := range generations {
		if info.SecondStage == name {
			return true
		}
	}
	return false
}

// Endpoints is the vendor interface used for the boot protocol.
type Endpoints struct {
	Interface int
	Out       int
	In        int
}

var (
	singleIface = Endpoints{
		Interface: 0,
		Out:       1,
		In:        2,
	}
	// 2837 may enumerate with mass storage first and the
	// vendor interface second
	multiIface = Endpoints{
		Interface: 1,
		Out:       3,
		In:        4,
	}
)

func EndpointsFor(interfaceCount int) Endpoints {
	if interfaceCount == 1 {
		return singleIface
	}
	return multiIface
}
