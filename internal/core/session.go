package core

import (
	"context"
	"sync"
	"time"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/chip"
	"github.com/rpiboot/rpibootd/internal/logs"
)

type Stage string

const (
	StageSecondStage Stage = "second stage"
	StageFileServer  Stage = "file server"
)

// Attempt is one device handled by the session, as shown on the
// status page.
type Attempt struct {
	Time        time.Time `json:"time"`
	Path        string    `json:"path"`
	Generation  string    `json:"generation"`
	SerialIndex int       `json:"serialIndex"`
	Stage       Stage     `json:"stage"`
	Files       int       `json:"files"`
	Error       string    `json:"error,omitempty"`
}

const historySize = 100

type Options struct {
	Selector Selector
	Resolver Resolver

	Signed      bool
	MetadataDir string // empty disables metadata files

	// keep waiting for devices after a file server session
	Loop bool

	PollInterval time.Duration
	SettleDelay  time.Duration // after every attempt
	StatusDelay  time.Duration // before reading the second stage status
	RetryDelay   time.Duration // after a failed request read
}

type Session struct {
	bus  USBBus
	opts Options

	log     *logs.Logger // detailed
	console *logs.Logger // what the operator sees
	busLog  *logs.Logger // device enumeration, usually nil

	// serial number index of the last acquired device
	lastSerial int

	historyMutex sync.Mutex
	history      []Attempt
}

func New(bus USBBus, opts Options, log, console *logs.Logger) *Session {
	return &Session{
		bus:        bus,
		opts:       opts,
		log:        log,
		console:    console,
		lastSerial: -1,
	}
}

// SetBusLogger sets where every enumerated device and selection
// decision is logged. By default nothing is.
func (s *Session) SetBusLogger(l *logs.Logger) {
	s.busLog = l
}

// isSecondStageIndex tells from the serial number index whether the
// ROM is still waiting for its second stage.
func isSecondStageIndex(index int) bool {
	return index == 0 || index == 3
}

// Run boots devices until the loop policy says stop, ctx is cancelled
// or a fatal error occurs. Cancellation is not an error.
func (s *Session) Run(ctx context.Context) error {
	for {
		s.console.Log("waiting for BCM2835/6/7/2711/2712...")
		c, index, err := s.acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = s.dispatch(ctx, c, index)
		closeDevice(c.Device, s.log)
		if err != nil {
			return err
		}

		if err := sleep(ctx, s.opts.SettleDelay); err != nil {
			return nil
		}
		if !s.opts.Loop && index != 0 {
			return nil
		}
	}
}

// acquire polls until a new device is found and claimed.
func (s *Session) acquire(ctx context.Context) (*Candidate, int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		c, err := s.opts.Selector.Find(s.bus, s.busLog)
		if err != nil {
			if isFatal(err) {
				return nil, 0, err
			}
			s.log.Logf("find: %s", err)
		} else if c != nil {
			if index, ok := s.prepare(c); ok {
				s.lastSerial = index
				return c, index, nil
			}
		}
		if err := sleep(ctx, s.opts.PollInterval); err != nil {
			return nil, 0, err
		}
	}
}

// prepare claims the boot interface. Devices that have not
// re-enumerated since the last attempt are let go.
func (s *Session) prepare(c *Candidate) (int, bool) {
	index, err := c.Device.SerialIndex()
	if err != nil {
		s.log.Logf("reading device descriptor: %s", err)
		closeDevice(c.Device, s.log)
		return 0, false
	}
	s.log.Logf("found serial number %d", index)
	if index == s.lastSerial {
		s.log.Log("device has not re-enumerated yet")
		closeDevice(c.Device, s.log)
		return 0, false
	}

	count, err := c.Device.InterfaceCount()
	if err != nil {
		s.console.Logf("failed to read config descriptor: %s", err)
		closeDevice(c.Device, s.log)
		return 0, false
	}
	ep := chip.EndpointsFor(count)
	if err := c.Device.Claim(ep); err != nil {
		s.console.Logf("failed to claim interface %d: %s", ep.Interface, err)
		closeDevice(c.Device, s.log)
		return 0, false
	}
	s.log.Logf("claimed interface %d, endpoints %d/%d", ep.Interface, ep.Out, ep.In)
	return index, true
}

// dispatch runs one of the two protocols on an acquired device. Only
// errors that must end the run are returned.
func (s *Session) dispatch(ctx context.Context, c *Candidate, index int) error {
	a := Attempt{
		Time:        time.Now(),
		Path:        c.Info.Path,
		Generation:  c.Generation.String(),
		SerialIndex: index,
	}

	var err error
	if isSecondStageIndex(index) {
		a.Stage = StageSecondStage
		err = s.secondStage(ctx, c)
	} else {
		a.Stage = StageFileServer
		s.console.Log("second stage boot server")
		fs := &fileServer{
			dev: c.Device,
			target: bootfiles.Target{
				Generation: c.Generation,
				Path:       c.Info.Path,
			},
			resolver:    s.opts.Resolver,
			retryDelay:  s.opts.RetryDelay,
			metadataDir: s.opts.MetadataDir,
			log:         s.log,
			console:     s.console,
		}
		err = fs.serve(ctx)
		a.Files = fs.served
		if err == nil {
			s.console.Log("second stage boot server done")
		}
	}

	if err != nil {
		a.Error = err.Error()
		s.console.Logf("%s on %s failed: %s", a.Stage, a.Path, err)
	}
	s.addAttempt(a)

	if a.Stage == StageSecondStage && isFatal(err) {
		return err
	}
	return nil
}

func (s *Session) secondStage(ctx context.Context, c *Candidate) error {
	p, err := loadSecondStage(s.opts.Resolver, c, s.opts.Signed, s.log)
	if err != nil {
		return err
	}
	s.console.Logf("sending %s", c.Generation.Info().SecondStage)
	if _, err := pushSecondStage(ctx, c.Device, p, s.opts.StatusDelay, s.log); err != nil {
		return err
	}
	s.console.Log("second stage sent")
	return nil
}

func (s *Session) addAttempt(a Attempt) {
	s.historyMutex.Lock()
	defer s.historyMutex.Unlock()
	s.history = append(s.history, a)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

// History returns the recent attempts, oldest first.
func (s *Session) History() []Attempt {
	s.historyMutex.Lock()
	defer s.historyMutex.Unlock()
	return append([]Attempt(nil), s.history...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
