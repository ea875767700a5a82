package logs

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryWriter keeps the log of a long running boot server in memory.
// The first lines (startup, configuration) are kept forever, the rest
// rotates so only the newest maxLines survive. Lines are optionally
// forwarded to another writer as they come.

// single lines longer than this are cut
const maxLineLength = 500

type MemoryWriter struct {
	mutex sync.Mutex

	start    [][]byte
	startMax int

	recent   [][]byte
	next     int // position in recent to overwrite once full
	maxLines int

	startTime time.Time
	printTime bool
	out       io.Writer
}

func NewMemoryWriter(size int, startSize int, printTime bool, out io.Writer) (*MemoryWriter, error) {
	if size < 1 || startSize < 1 {
		return nil, errors.New("memory writer sizes must be at least 1")
	}
	return &MemoryWriter{
		start:     make([][]byte, 0, startSize),
		startMax:  startSize,
		recent:    make([][]byte, 0, size),
		maxLines:  size,
		startTime: time.Now(),
		printTime: printTime,
		out:       out,
	}, nil
}

func (m *MemoryWriter) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > maxLineLength {
		p = p[:maxLineLength]
	}

	var line []byte
	if m.printTime {
		now := time.Now()
		line = []byte(fmt.Sprintf("[%.6f : %s] %s", now.Sub(m.startTime).Seconds(), now.Format("15:04:05"), p))
	} else {
		line = append([]byte(nil), p...)
	}

	m.mutex.Lock()
	switch {
	case len(m.start) < m.startMax:
		m.start = append(m.start, line)
	case len(m.recent) < m.maxLines:
		m.recent = append(m.recent, line)
	default:
		m.recent[m.next] = line
		m.next = (m.next + 1) % m.maxLines
	}
	m.mutex.Unlock()

	if m.out != nil {
		if _, err := m.out.Write(line); err != nil {
			fmt.Println(err)
		}
	}
	return n, nil
}

// Len is the number of lines currently kept.
func (m *MemoryWriter) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.start) + len(m.recent)
}

// writeTo writes header, then the newest lines first, then the
// preserved start lines, newest first as well.
func (m *MemoryWriter) writeTo(header string, w io.Writer) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		line := m.recent[(m.next+i)%len(m.recent)]
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "...\n"); err != nil {
		return err
	}
	for i := len(m.start) - 1; i >= 0; i-- {
		if _, err := w.Write(m.start[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryWriter) String(header string) (string, error) {
	var b bytes.Buffer
	if err := m.writeTo(header, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (m *MemoryWriter) Gzip(header string) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	gw.Name = "rpibootd.log"
	if err := m.writeTo(header, gw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
