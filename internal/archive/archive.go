package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// This package reads single members out of a boot file bundle.
// A bundle is a plain tar stream: 512 byte header blocks, each
// followed by the member data padded to the next 512 byte boundary.
// Only the name and size fields of the header are looked at.

const blockSize = 512

const (
	nameOffset = 0
	nameLength = 100
	sizeOffset = 124
	sizeLength = 12

	// bytes of the header that must be readable for it to count
	headerLength = 257
)

var (
	ErrNotFound = errors.New("member not found in archive")
	ErrCorrupt  = errors.New("corrupted archive")
)

type Member struct {
	Name string
	Size int64
	Data []byte
}

// Lookup opens the archive at path and returns the member called name.
func Lookup(path, name string) (*Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	m, err := LookupReader(f, st.Size(), name)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", name, path, err)
	}
	return m, nil
}

// LookupReader is Lookup over an archive of the given total size.
// Member names are compared case-insensitively.
func LookupReader(r io.ReaderAt, size int64, name string) (*Member, error) {
	var hdr [headerLength]byte
	var offset int64

	for offset < size {
		n, err := r.ReadAt(hdr[:], offset)
		if n < headerLength {
			if err == nil || errors.Is(err, io.EOF) {
				return nil, ErrNotFound
			}
			return nil, err
		}

		offset += blockSize
		if offset >= size {
			break
		}

		memberSize := parseOctal(hdr[sizeOffset : sizeOffset+sizeLength])
		if memberSize < 0 || offset+memberSize > size {
			return nil, ErrCorrupt
		}

		if equalFold(cString(hdr[nameOffset:nameOffset+nameLength]), name) {
			data := make([]byte, memberSize)
			n, err := r.ReadAt(data, offset)
			if int64(n) != memberSize {
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				return nil, err
			}
			return &Member{
				Name: name,
				Size: memberSize,
				Data: data,
			}, nil
		}

		offset += (memberSize + blockSize - 1) &^ (blockSize - 1)
	}
	return nil, ErrNotFound
}

// cString cuts the field at the first NUL; a name filling the whole
// field loses its last byte, like the fixed size C buffer does.
func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field[:len(field)-1])
}

// parseOctal reads the size field the way strtoul(s, NULL, 8) does:
// leading white space is skipped, parsing stops at the first byte
// that is not an octal digit.
func parseOctal(field []byte) int64 {
	i := 0
	for i < len(field) && isSpace(field[i]) {
		i++
	}
	if i < len(field) && field[i] == '+' {
		i++
	}
	var v int64
	for ; i < len(field); i++ {
		c := field[i]
		if c < '0' || c > '7' {
			break
		}
		v = v<<3 | int64(c-'0')
	}
	return v
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// equalFold is ASCII only, as strcasecmp in the C locale.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
