package message

import (
	"encoding/binary"
	"errors"
)

const (
	SignatureLength = 20

	// BootMessageSize is the size of {int32 length; uint8 signature[20]}
	BootMessageSize = 4 + SignatureLength

	StatusSize = 4
)

// BootMessage precedes the second stage program and tells the ROM how
// many bytes follow. The signature is only checked on signed boots.
type BootMessage struct {
	Length    int32
	Signature [SignatureLength]byte
}

func (m BootMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, BootMessageSize)
	binary.LittleEndian.PutUint32(b[:4], uint32(m.Length))
	copy(b[4:], m.Signature[:])
	return b, nil
}

func (m *BootMessage) UnmarshalBinary(b []byte) error {
	if len(b) < BootMessageSize {
		return errors.New("boot message too short")
	}
	m.Length = int32(binary.LittleEndian.Uint32(b[:4]))
	copy(m.Signature[:], b[4:BootMessageSize])
	return nil
}

// ParseStatus decodes the status word the ROM returns after the
// second stage was sent; zero means it was accepted.
func ParseStatus(b []byte) (int32, error) {
	if len(b) < StatusSize {
		return 0, errors.New("status too short")
	}
	return int32(binary.LittleEndian.Uint32(b[:StatusSize])), nil
}

// SplitLength gives the value/index pair that carries a 32-bit length
// in a control transfer setup packet.
func SplitLength(n uint32) (low, high uint16) {
	return uint16(n & 0xffff), uint16(n >> 16)
}
