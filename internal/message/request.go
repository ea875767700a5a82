package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frames exchanged with the second stage once it runs. Everything is
// little endian, as the device writes its structs out raw.

const (
	commandLength  = 4
	FilenameLength = 256

	// FileRequestSize is the size of {int32 command; char fname[256]}
	FileRequestSize = commandLength + FilenameLength
)

type Command int32

const (
	CommandGetSize  Command = 0
	CommandReadFile Command = 1
	CommandDone     Command = 2
)

func (c Command) String() string {
	switch c {
	case CommandGetSize:
		return "GetFileSize"
	case CommandReadFile:
		return "ReadFile"
	case CommandDone:
		return "Done"
	}
	return fmt.Sprintf("Command(%d)", int32(c))
}

var ErrShortFrame = errors.New("file request frame too short")

type FileRequest struct {
	Command  Command
	Filename string
}

// ParseFileRequest decodes a request frame. The filename ends at the
// first NUL, or at the end of the field if there is none.
func ParseFileRequest(frame []byte) (FileRequest, error) {
	if len(frame) < commandLength {
		return FileRequest{}, ErrShortFrame
	}
	cmd := Command(int32(binary.LittleEndian.Uint32(frame[:commandLength])))

	name := frame[commandLength:]
	if len(name) > FilenameLength {
		name = name[:FilenameLength]
	}
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return FileRequest{
		Command:  cmd,
		Filename: string(name),
	}, nil
}

// MarshalBinary encodes the request the way the device sends it.
// Filenames longer than the field are cut so the frame keeps its NUL.
func (r FileRequest) MarshalBinary() ([]byte, error) {
	frame := make([]byte, FileRequestSize)
	binary.LittleEndian.PutUint32(frame[:commandLength], uint32(r.Command))
	name := r.Filename
	if len(name) > FilenameLength-1 {
		name = name[:FilenameLength-1]
	}
	copy(frame[commandLength:], name)
	return frame, nil
}

// Directives are requests whose filename reads *PROPERTY*VALUE; the
// second stage reports device properties to the host this way.

const directiveMarker = "*"

type Directive struct {
	Property string
	Value    string
}

func IsDirective(filename string) bool {
	return strings.HasPrefix(filename, directiveMarker)
}

// ParseDirective splits at the first marker after the leading one.
// Values that contain the marker themselves keep it.
func ParseDirective(filename string) (Directive, bool) {
	if !IsDirective(filename) {
		return Directive{}, false
	}
	property, value, _ := strings.Cut(filename[len(directiveMarker):], directiveMarker)
	return Directive{
		Property: property,
		Value:    value,
	}, true
}
