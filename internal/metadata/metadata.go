// Package metadata writes the properties a device reports during one
// boot into a flat JSON object, one file per device serial number.
// Pairs are appended to the file as they arrive, so a device that
// disappears mid-boot still leaves what it reported behind.
package metadata

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FactoryUUID carries a packed identifier, see package duid.
const FactoryUUID = "FACTORY_UUID"

var ErrClosed = errors.New("metadata record closed")

type Pair struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

type Record struct {
	mutex  sync.Mutex
	w      io.WriteCloser
	path   string
	pairs  []Pair
	closed bool
}

// FileName is the file a device with the given serial number reports to.
func FileName(serial string) string {
	serial = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, serial)
	if serial == "" || serial == "." || serial == ".." {
		serial = "unknown"
	}
	return serial + ".json"
}

// Create starts the record for serial in dir.
func Create(dir, serial string) (*Record, error) {
	path := filepath.Join(dir, FileName(serial))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := New(f)
	r.path = path
	return r, nil
}

// New starts a record on w, which is closed together with the record.
func New(w io.WriteCloser) *Record {
	return &Record{w: w}
}

func (r *Record) Path() string {
	return r.path
}

// Add appends one property. Values are written as JSON strings.
func (r *Record) Add(property, value string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return ErrClosed
	}

	k, err := json.Marshal(property)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}

	sep := ","
	if len(r.pairs) == 0 {
		sep = "{"
	}
	line := sep + string(k) + ":" + string(v)
	if _, err := io.WriteString(r.w, line); err != nil {
		return err
	}
	r.pairs = append(r.pairs, Pair{Property: property, Value: value})
	return nil
}

// Pairs returns what was recorded so far, in order.
func (r *Record) Pairs() []Pair {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Pair(nil), r.pairs...)
}

// Close terminates the JSON object and closes the file.
func (r *Record) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	end := "}\n"
	if len(r.pairs) == 0 {
		end = "{}\n"
	}
	_, err := io.WriteString(r.w, end)
	if errClose := r.w.Close(); err == nil {
		err = errClose
	}
	return err
}
