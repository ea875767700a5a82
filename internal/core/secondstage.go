package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/logs"
	"github.com/rpiboot/rpibootd/internal/message"
)

// signatureFile holds the header signature for signed boot.
const signatureFile = "bootsig.bin"

// BootProgram is a second stage image together with its header.
type BootProgram struct {
	Header  message.BootMessage
	Payload []byte
}

// loadSecondStage reads the second stage image for the candidate's
// chip, and its signature if signed boot is on.
func loadSecondStage(r Resolver, c *Candidate, signed bool, log *logs.Logger) (*BootProgram, error) {
	info := c.Generation.Info()
	target := bootfiles.Target{
		Generation: c.Generation,
		Path:       c.Info.Path,
	}

	payload, err := readBootFile(r, target, info.SecondStage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSecondStage, err)
	}
	p := &BootProgram{
		Header:  message.BootMessage{Length: int32(len(payload))},
		Payload: payload,
	}

	if signed && info.SignedHeader {
		sig, err := readBootFile(r, target, signatureFile)
		if err != nil {
			return nil, fmt.Errorf("signed boot: %w", err)
		}
		if len(sig) < message.SignatureLength {
			log.Logf("%s has only %d bytes", signatureFile, len(sig))
		}
		copy(p.Header.Signature[:], sig)
	}
	return p, nil
}

func readBootFile(r Resolver, target bootfiles.Target, name string) ([]byte, error) {
	f, err := r.Resolve(target, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadAll()
}

// pushSecondStage sends the header and the image, waits for the
// second stage to start and reads back its status.
func pushSecondStage(
	ctx context.Context,
	dev USBDevice,
	p *BootProgram,
	settle time.Duration,
	log *logs.Logger,
) (int32, error) {
	header, err := p.Header.MarshalBinary()
	if err != nil {
		return 0, err
	}

	log.Log("writing boot message")
	n, err := writeFrame(dev, header)
	if err != nil {
		return 0, fmt.Errorf("writing boot message: %w", err)
	}
	if n != len(header) {
		return 0, &ShortTransferError{Stage: "boot message", Want: len(header), Got: n}
	}

	log.Logf("writing %d bytes", len(p.Payload))
	n, err = writeFrame(dev, p.Payload)
	if err != nil {
		return 0, fmt.Errorf("writing second stage: %w", err)
	}
	if n != len(p.Payload) {
		return 0, &ShortTransferError{Stage: "second stage", Want: len(p.Payload), Got: n}
	}

	if err := sleep(ctx, settle); err != nil {
		return 0, err
	}

	buf := make([]byte, message.StatusSize)
	n, err = readFrame(dev, buf)
	if err != nil {
		return 0, fmt.Errorf("reading status: %w", err)
	}
	if n != len(buf) {
		return 0, &ShortTransferError{Stage: "status", Want: len(buf), Got: n}
	}
	status, err := message.ParseStatus(buf)
	if err != nil {
		return 0, err
	}
	if status != 0 {
		return status, &StatusError{Status: status}
	}
	log.Logf("second stage running, read %d bytes of status", n)
	return 0, nil
}
