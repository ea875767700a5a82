package main

import (
	"io"
	"log"
	"os"

	"github.com/rpiboot/rpibootd/internal/logs"
	"gopkg.in/natefinch/lumberjack.v2"
)

type loggers struct {
	stderrWriter io.Writer   // short messages, stderr or the log file
	stderrLogger *log.Logger // logger for stderrWriter

	short *logs.MemoryWriter // what the status page shows
	long  *logs.MemoryWriter // detailed log, downloadable from the status page

	console *logs.Logger // operator messages, into stderrWriter and short
	detail  *logs.Logger // every protocol step, into long
}

func initLoggers(logfile string, verbose bool) *loggers {
	var l loggers
	if logfile != "" {
		l.stderrWriter = &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
	} else {
		l.stderrWriter = os.Stderr
	}

	l.stderrLogger = log.New(l.stderrWriter, "", log.LstdFlags)
	short, err := logs.NewMemoryWriter(2000, 200, false, nil)
	if err != nil {
		l.stderrLogger.Fatalf("writer: %s", err)
	}

	verboseWriter := l.stderrWriter
	if !verbose {
		verboseWriter = nil
	}

	long, err := logs.NewMemoryWriter(90000, 200, true, verboseWriter)
	if err != nil {
		l.stderrLogger.Fatalf("writer: %s", err)
	}
	l.short, l.long = short, long

	consoleWriter := io.MultiWriter(l.stderrWriter, short, long)
	if verbose {
		// long already forwards to stderr
		consoleWriter = io.MultiWriter(short, long)
	}
	l.console = &logs.Logger{Writer: consoleWriter, Plain: true}
	l.detail = &logs.Logger{Writer: long}
	return &l
}
