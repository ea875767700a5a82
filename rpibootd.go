package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rpiboot/rpibootd/internal/bootfiles"
	"github.com/rpiboot/rpibootd/internal/config"
	"github.com/rpiboot/rpibootd/internal/core"
	"github.com/rpiboot/rpibootd/internal/server"
	"github.com/rpiboot/rpibootd/internal/usb"
)

const version = "1.0.0"

func main() {
	c, o, err := parseFlags(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.versionFlag {
		fmt.Printf("rpibootd version %s\n", version)
		return
	}

	l := initLoggers(c.LogFile, c.Verbose > 0)
	if err := c.Validate(); err != nil {
		l.stderrLogger.Fatalf("config: %s", err)
	}

	if err := run(c, l); err != nil {
		l.stderrLogger.Printf("rpibootd: %s", err)
		os.Exit(1)
	}
	l.detail.Log("main ended successfully")
}

func run(c config.Config, l *loggers) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.detail.Logf("rpibootd %s starting, %+v", version, c)

	resolver := bootfiles.New(c.ResolverOptions(os.DirFS(c.DefaultsDir)), l.detail)

	// the device list is only written to the detailed log with -vv
	busLogger := l.detail
	if c.Verbose < 2 {
		busLogger = nil
	}
	l.detail.Log("initing libusb")
	bus := usb.InitLibUSB(l.detail, c.Verbose > 0)
	defer func() {
		if err := bus.Close(); err != nil {
			l.detail.Logf("closing libusb: %s", err)
		}
	}()

	opts := c.SessionOptions(resolver)
	session := core.New(bus, opts, l.detail, l.console)
	session.SetBusLogger(busLogger)

	if c.StatusAddr != "" {
		l.detail.Log("creating HTTP server")
		s, err := server.New(c.StatusAddr, session, l.stderrWriter, l.short, l.long, version)
		if err != nil {
			return err
		}
		go func() {
			l.detail.Log("running HTTP server")
			if err := s.Run(ctx); err != nil {
				l.stderrLogger.Printf("status server: %s", err)
			}
		}()
	}

	return session.Run(ctx)
}
