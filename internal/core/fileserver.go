package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/duid"
	"github.com/rpiboot/rpibootd/internal/logs"
	"github.com/rpiboot/rpibootd/internal/message"
	"github.com/rpiboot/rpibootd/internal/metadata"
)

// fileServer answers the requests of a running second stage until it
// says it is done.
type fileServer struct {
	dev      USBDevice
	target   bootfiles.Target
	resolver Resolver

	retryDelay  time.Duration
	metadataDir string

	log     *logs.Logger
	console *logs.Logger

	// file opened by the last GetSize, owned by the server
	file   *bootfiles.File
	record *metadata.Record

	served int
}

func (s *fileServer) serve(ctx context.Context) (err error) {
	defer func() {
		s.replaceFile(nil)
		if errClose := s.closeRecord(); err == nil {
			err = errClose
		}
	}()

	buf := make([]byte, message.FileRequestSize)
	for {
		n, err := readFrame(s.dev, buf)
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				s.log.Log("device went away")
				return nil
			}
			s.log.Logf("read failed, retrying: %s", err)
			if err := sleep(ctx, s.retryDelay); err != nil {
				return err
			}
			continue
		}
		req, err := message.ParseFileRequest(buf[:n])
		if err != nil {
			return &ShortTransferError{Stage: "file request", Want: message.FileRequestSize, Got: n}
		}
		s.log.Logf("received %s: %s", req.Command, req.Filename)

		// an empty name also means done
		if req.Filename == "" {
			return ack(s.dev)
		}

		if d, ok := message.ParseDirective(req.Filename); ok {
			s.directive(d)
			if err := ack(s.dev); err != nil {
				return err
			}
			continue
		}

		switch req.Command {
		case message.CommandGetSize:
			err = s.getSize(req.Filename)
		case message.CommandReadFile:
			err = s.readFile(req.Filename)
		case message.CommandDone:
			s.log.Log("done")
			return nil
		default:
			return &ProtocolError{Command: req.Command}
		}
		if err != nil {
			return err
		}
	}
}

func (s *fileServer) getSize(name string) error {
	s.replaceFile(nil)
	f, err := s.resolver.Resolve(s.target, name)
	if err != nil {
		s.console.Logf("cannot open file %s", name)
		s.log.Logf("resolve %s: %s", name, err)
		return ack(s.dev)
	}
	s.replaceFile(f)
	s.log.Logf("file size = %d bytes", f.Size())
	return sendSize(s.dev, f.Size())
}

func (s *fileServer) readFile(name string) error {
	if s.file == nil {
		s.log.Logf("no file %s open", name)
		return ack(s.dev)
	}
	s.console.Logf("file read: %s", name)

	data, err := s.file.ReadAll()
	s.replaceFile(nil)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	n, err := writeFrame(s.dev, data)
	if err != nil {
		return fmt.Errorf("sending %s: %w", name, err)
	}
	if n != len(data) {
		return &ShortTransferError{Stage: name, Want: len(data), Got: n}
	}
	s.served++
	return nil
}

// replaceFile closes the open file, if any, and keeps f instead.
func (s *fileServer) replaceFile(f *bootfiles.File) {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.log.Logf("closing %s: %s", s.file.Path(), err)
		}
	}
	s.file = f
}

func (s *fileServer) directive(d message.Directive) {
	value := d.Value
	if d.Property == metadata.FactoryUUID {
		decoded, err := duid.Decode(value)
		if err != nil {
			s.console.Logf("cannot decode %s %q: %s", d.Property, value, err)
			return
		}
		value = decoded
	}
	s.console.Logf("%s: %s", d.Property, value)

	if s.metadataDir == "" {
		return
	}
	if s.record == nil {
		serial, err := s.dev.SerialNumber()
		if err != nil {
			s.log.Logf("no serial number: %s", err)
		}
		r, err := metadata.Create(s.metadataDir, serial)
		if err != nil {
			s.console.Logf("cannot create metadata file: %s", err)
			s.metadataDir = ""
			return
		}
		s.log.Logf("recording metadata to %s", r.Path())
		s.record = r
	}
	if err := s.record.Add(d.Property, value); err != nil {
		s.log.Logf("metadata: %s", err)
	}
}

func (s *fileServer) closeRecord() error {
	if s.record == nil {
		return nil
	}
	r := s.record
	s.record = nil
	return r.Close()
}
