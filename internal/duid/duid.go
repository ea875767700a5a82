// Package duid decodes the packed factory identifier reported by the
// boot firmware. The identifier is a list of 32-bit words, each half
// word holding three C40 symbols.
package duid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxLength is the longest identifier a device can report.
const MaxLength = 36

const (
	wordSeparator = "_"

	digitBase  = 4
	letterBase = 14
	symbols    = 40
)

var (
	ErrInvalidSymbol = errors.New("invalid symbol in identifier")
	ErrInvalidWord   = errors.New("invalid identifier word")
	ErrTooLong       = errors.New("identifier too long")
)

// Decode decodes words written as underscore separated hex numbers,
// e.g. "6f1f4e00_75c2".
func Decode(s string) (string, error) {
	var words []uint32
	for _, w := range strings.Split(s, wordSeparator) {
		if w == "" {
			continue
		}
		v, err := strconv.ParseUint(w, 16, 32)
		if err != nil {
			return "", fmt.Errorf("%w %q", ErrInvalidWord, w)
		}
		words = append(words, uint32(v))
	}
	return DecodeWords(words)
}

// DecodeWords stops at the first zero word. Any index that is not a
// digit or a letter fails the whole decode.
func DecodeWords(words []uint32) (string, error) {
	indices := make([]int, 0, MaxLength)
	for _, word := range words {
		if word == 0 {
			break
		}
		indices = appendHalf(indices, uint16(word&0xffff))
		if high := uint16(word >> 16); high > 0 {
			indices = appendHalf(indices, high)
		}
		if len(indices) > MaxLength {
			return "", ErrTooLong
		}
	}

	var b strings.Builder
	for _, idx := range indices {
		c, ok := indexToChar(idx)
		if !ok {
			return "", fmt.Errorf("%w: index %d", ErrInvalidSymbol, idx)
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func appendHalf(indices []int, half uint16) []int {
	h := int(half)
	i0 := (h - 1) / (symbols * symbols)
	h -= i0 * symbols * symbols
	i1 := (h - 1) / symbols
	h -= i1 * symbols
	return append(indices, i0, i1, h-1)
}

func indexToChar(idx int) (byte, bool) {
	switch {
	case idx >= digitBase && idx < digitBase+10:
		return byte('0' + idx - digitBase), true
	case idx >= letterBase && idx < symbols:
		return byte('A' + idx - letterBase), true
	}
	return 0, false
}

func charToIndex(c byte) (int, bool) {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch {
	case c >= '0' && c <= '9':
		return digitBase + int(c-'0'), true
	case c >= 'A' && c <= 'Z':
		return letterBase + int(c-'A'), true
	}
	return 0, false
}

// EncodeWords packs s, whose length must be a multiple of three, into
// words in the layout DecodeWords expects.
func EncodeWords(s string) ([]uint32, error) {
	if len(s)%3 != 0 {
		return nil, fmt.Errorf("identifier length %d is not a multiple of 3", len(s))
	}
	if len(s) > MaxLength {
		return nil, ErrTooLong
	}
	var halves []uint16
	for i := 0; i < len(s); i += 3 {
		var idx [3]int
		for j := range idx {
			v, ok := charToIndex(s[i+j])
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, s[i+j])
			}
			idx[j] = v
		}
		halves = append(halves, uint16(idx[0]*symbols*symbols+idx[1]*symbols+idx[2]+1))
	}

	words := make([]uint32, 0, (len(halves)+1)/2)
	for i := 0; i < len(halves); i += 2 {
		w := uint32(halves[i])
		if i+1 < len(halves) {
			w |= uint32(halves[i+1]) << 16
		}
		words = append(words, w)
	}
	return words, nil
}

// Encode is EncodeWords in the textual form Decode accepts.
func Encode(s string) (string, error) {
	words, err := EncodeWords(s)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strconv.FormatUint(uint64(w), 16)
	}
	return strings.Join(parts, wordSeparator), nil
}
