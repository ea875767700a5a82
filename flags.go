package main

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rpiboot/rpibootd/internal/config"
)

// microseconds is a duration given on the command line as a number
// of microseconds.
type microseconds struct {
	d *time.Duration
}

func (m microseconds) String() string {
	if m.d == nil {
		return "0"
	}
	return strconv.FormatInt(m.d.Microseconds(), 10)
}

func (m microseconds) Set(value string) error {
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return err
	}
	*m.d = time.Duration(us) * time.Microsecond
	return nil
}

type initOptions struct {
	configFile  string
	verbose     bool
	veryVerbose bool
	versionFlag bool
}

func bindFlags(fs *flag.FlagSet, c *config.Config, o *initOptions) {
	fs.StringVar(
		&(o.configFile),
		"c",
		"",
		"Read settings from a YAML file; flags given on the command line win",
	)
	fs.StringVar(
		&(c.Directory),
		"d",
		c.Directory,
		"Use files from this directory instead of the defaults",
	)
	fs.BoolVar(
		&(c.Overlay),
		"o",
		c.Overlay,
		"Use files from <dir>/<usb path> first, if they exist (needs -d)",
	)
	fs.StringVar(
		&(c.Archive),
		"b",
		c.Archive,
		"Boot from a bundle of boot files",
	)
	fs.StringVar(
		&(c.DefaultsDir),
		"defaults",
		c.DefaultsDir,
		"Directory holding the default images under msd/",
	)
	fs.BoolVar(
		&(c.Signed),
		"s",
		c.Signed,
		"Sign the second stage header using bootsig.bin",
	)
	fs.BoolVar(
		&(c.Loop),
		"loop",
		c.Loop,
		"Keep waiting for new devices after booting one",
	)
	fs.Var(
		microseconds{&c.PollInterval},
		"m",
		"Microseconds between checks for new devices",
	)
	fs.IntVar(
		&(c.Port),
		"port",
		c.Port,
		"Only boot the device on this hub port, -1 for any",
	)
	fs.StringVar(
		&(c.Path),
		"p",
		c.Path,
		"Only boot the device at this USB path, e.g. 1-1.3",
	)
	fs.StringVar(
		&(c.Serial),
		"i",
		c.Serial,
		"Only boot the device with this serial number",
	)
	fs.StringVar(
		&(c.MetadataDir),
		"j",
		c.MetadataDir,
		"Write device metadata as JSON files into this directory",
	)
	fs.StringVar(
		&(c.StatusAddr),
		"status",
		c.StatusAddr,
		"Serve a status page on this address, e.g. "+config.DefaultStatusAddr,
	)
	fs.StringVar(
		&(c.LogFile),
		"l",
		c.LogFile,
		"Log into a file, rotating after 20MB",
	)
	fs.BoolVar(
		&(o.verbose),
		"v",
		false,
		"Write verbose logs to either stderr or logfile",
	)
	fs.BoolVar(
		&(o.veryVerbose),
		"vv",
		false,
		"Like -v, and list every USB device seen",
	)
	fs.BoolVar(
		&(o.versionFlag),
		"version",
		false,
		"Write version",
	)
}

// parseFlags reads the command line twice: once to find the config
// file, then over the loaded file so explicit flags override it.
func parseFlags(args []string) (config.Config, initOptions, error) {
	var o initOptions
	c := config.Default()

	pre := flag.NewFlagSet(args[0], flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	bindFlags(pre, &c, &o)
	// errors are reported by the second pass
	_ = pre.Parse(args[1:])

	if o.configFile != "" {
		loaded, err := config.Load(o.configFile, config.Default())
		if err != nil {
			return c, o, err
		}
		c = loaded
	}

	o = initOptions{}
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	fs.SetOutput(os.Stderr)
	bindFlags(fs, &c, &o)
	if err := fs.Parse(args[1:]); err != nil {
		return c, o, err
	}

	switch {
	case o.veryVerbose:
		c.Verbose = 2
	case o.verbose && c.Verbose < 1:
		c.Verbose = 1
	}
	return c, o, nil
}
