// Package config holds everything that controls a run. A Config is
// built once, from defaults, an optional YAML file and the command
// line, and is not changed afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/chip"
	"github.com/rpiboot/rpibootd/internal/core"
)

const (
	DefaultPollInterval = 500 * time.Microsecond
	DefaultDefaultsDir  = "/usr/share/rpiboot"
	DefaultStatusAddr   = "127.0.0.1:21330"

	maxPort = 255
)

var (
	ErrOverlayWithoutDirectory = errors.New("overlay needs a boot file directory")
	ErrSerialAndTopology       = errors.New("serial number and topology selection exclude each other")
	ErrInvalidPort             = errors.New("invalid port number")
	ErrInvalidDelay            = errors.New("delays must not be negative")
	ErrInvalidPollInterval     = errors.New("poll interval must be positive")
	ErrNotDirectory            = errors.New("not a directory")
)

type Config struct {
	// boot files
	Directory   string `yaml:"directory"`
	Overlay     bool   `yaml:"overlay"`
	Archive     string `yaml:"archive"`
	DefaultsDir string `yaml:"defaults"`
	Signed      bool   `yaml:"signed"`

	// device selection
	Port   int    `yaml:"port"`
	Path   string `yaml:"path"`
	Serial string `yaml:"serial"`

	MetadataDir string `yaml:"metadata"`

	Loop         bool          `yaml:"loop"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	StatusDelay  time.Duration `yaml:"status_delay"`
	RetryDelay   time.Duration `yaml:"retry_delay"`

	// 0 quiet, 1 verbose, 2 also lists every USB device
	Verbose    int    `yaml:"verbose"`
	LogFile    string `yaml:"log_file"`
	StatusAddr string `yaml:"status"`
}

func Default() Config {
	return Config{
		DefaultsDir:  DefaultDefaultsDir,
		Port:         core.NoPort,
		PollInterval: DefaultPollInterval,
		SettleDelay:  time.Second,
		StatusDelay:  time.Second,
		RetryDelay:   time.Second,
	}
}

// Load reads a YAML file over base. Unknown keys are an error.
func Load(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	return Parse(raw, base)
}

func Parse(raw []byte, base Config) (Config, error) {
	c := base
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return base, fmt.Errorf("parsing config: %w", err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Overlay && c.Directory == "" {
		return ErrOverlayWithoutDirectory
	}
	if c.Serial != "" && (c.Path != "" || c.Port != core.NoPort) {
		return ErrSerialAndTopology
	}
	if c.Port < core.NoPort || c.Port > maxPort {
		return fmt.Errorf("%w %d", ErrInvalidPort, c.Port)
	}
	if c.PollInterval == 0 {
		return ErrInvalidPollInterval
	}
	if c.PollInterval < 0 || c.SettleDelay < 0 || c.StatusDelay < 0 || c.RetryDelay < 0 {
		return ErrInvalidDelay
	}
	for _, dir := range []string{c.Directory, c.MetadataDir} {
		if dir == "" {
			continue
		}
		st, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !st.IsDir() {
			return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
	}
	return nil
}

func (c Config) Selector() core.Selector {
	s := core.Selector{
		Mode:       core.ByTopology,
		VendorID:   chip.VendorBroadcom,
		ProductIDs: chip.ProductIDs(),
		Port:       c.Port,
		Path:       c.Path,
	}
	if c.Serial != "" {
		s.Mode = core.BySerial
		s.Serial = c.Serial
	}
	return s
}

func (c Config) ResolverOptions(defaults fs.FS) bootfiles.Options {
	return bootfiles.Options{
		Directory: c.Directory,
		Archive:   c.Archive,
		Overlay:   c.Overlay,
		Defaults:  defaults,
	}
}

func (c Config) SessionOptions(r core.Resolver) core.Options {
	return core.Options{
		Selector:     c.Selector(),
		Resolver:     r,
		Signed:       c.Signed,
		MetadataDir:  c.MetadataDir,
		Loop:         c.Loop,
		PollInterval: c.PollInterval,
		SettleDelay:  c.SettleDelay,
		StatusDelay:  c.StatusDelay,
		RetryDelay:   c.RetryDelay,
	}
}
