package bootfiles

import (
	"bytes"
	"io"
)

// Origin tells where a resolved file came from.
type Origin int

const (
	OriginArchiveOverlay Origin = iota // <dir>/<chip prefix>/<name> next to a bundle
	OriginArchive                      // member of the bundle
	OriginDeviceOverlay                // <dir>/<usb path>/<name>
	OriginDirectory                    // <dir>/<name>
	OriginDefault                      // compiled-in image
)

func (o Origin) String() string {
	switch o {
	case OriginArchiveOverlay:
		return "archive overlay"
	case OriginArchive:
		return "archive"
	case OriginDeviceOverlay:
		return "device overlay"
	case OriginDirectory:
		return "directory"
	case OriginDefault:
		return "default"
	}
	return "unknown"
}

// File is an open boot file. Its size is known up front, because the
// device asks for the size before it asks for the content.
type File struct {
	name   string
	path   string
	origin Origin
	size   int64
	r      io.Reader
	c      io.Closer
}

func newMemoryFile(name, path string, origin Origin, data []byte) *File {
	return &File{
		name:   name,
		path:   path,
		origin: origin,
		size:   int64(len(data)),
		r:      bytes.NewReader(data),
	}
}

func (f *File) Name() string   { return f.name }
func (f *File) Path() string   { return f.path }
func (f *File) Origin() Origin { return f.origin }
func (f *File) Size() int64    { return f.size }

func (f *File) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

// ReadAll reads exactly Size bytes.
func (f *File) ReadAll() ([]byte, error) {
	buf := make([]byte, f.size)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *File) Close() error {
	if f.c == nil {
		return nil
	}
	c := f.c
	f.c = nil
	return c.Close()
}
