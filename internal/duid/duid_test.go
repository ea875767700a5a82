package duid

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	testcases := []string{
		"",
		"ABC",
		"000",
		"ZZZ999",
		"Z9A0B1",
		"A1B2C3D4E",
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
	}
	for _, tc := range testcases {
		enc, err := Encode(tc)
		if err != nil {
			t.Errorf("Encode(%q): %v", tc, err)
			continue
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Errorf("Decode(%q) from %q: %v", enc, tc, err)
			continue
		}
		if dec != tc {
			t.Errorf("round trip of %q gave %q (words %q)", tc, dec, enc)
		}
	}
}

func TestDecodeLowercaseInputEncodes(t *testing.T) {
	enc, err := Encode("abc")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if dec != "ABC" {
		t.Errorf("expected ABC, got %q", dec)
	}
}

func TestDecodeInvalidSymbol(t *testing.T) {
	good, err := EncodeWords("ABCDEF")
	if err != nil {
		t.Fatal(err)
	}

	testcases := [][]uint32{
		// index 0 in the last position
		{1},
		// valid first word, broken second one
		{good[0], 0x00000001},
		// low half zero but high half set
		{0x12340000},
	}
	for _, words := range testcases {
		s, err := DecodeWords(words)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("DecodeWords(%x): expected ErrInvalidSymbol, got %v", words, err)
		}
		if s != "" {
			t.Errorf("DecodeWords(%x): partial output %q", words, s)
		}
	}
}

func TestDecodeStopsAtZeroWord(t *testing.T) {
	words, err := EncodeWords("ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	// anything after a zero word is ignored, even garbage
	words = append(words, 0, 1)
	s, err := DecodeWords(words)
	if err != nil {
		t.Fatal(err)
	}
	if s != "ABCDEF" {
		t.Errorf("expected ABCDEF, got %q", s)
	}
}

func TestDecodeText(t *testing.T) {
	testcases := []struct {
		in  string
		err error
	}{
		{"_", nil},
		{"zz", ErrInvalidWord},
		{"1ffffffff", ErrInvalidWord},
		{"10001_10001_10001_10001_10001_10001_10001", ErrTooLong},
	}
	for _, tc := range testcases {
		_, err := Decode(tc.in)
		if tc.err == nil && err != nil {
			t.Errorf("Decode(%q): unexpected %v", tc.in, err)
		}
		if tc.err != nil && !errors.Is(err, tc.err) {
			t.Errorf("Decode(%q): expected %v, got %v", tc.in, tc.err, err)
		}
	}
}
