package logs

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
)

const modulePrefix = "github.com/rpiboot/rpibootd/"

// Logger writes one line per call. Unless Plain is set, every line is
// prefixed with the file, line and function of the caller, so the
// detailed log can be followed step by step through the protocol.
// A nil Logger, or one without a Writer, discards everything.
type Logger struct {
	Writer io.Writer
	Plain  bool
	mutex  sync.Mutex
}

func findInternalPrefix() string {
	pc := make([]uintptr, 15)
	n := runtime.Callers(1, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()
	return strings.TrimSuffix(frame.File, "internal/logs/logger.go")
}

var internalPrefix = findInternalPrefix()

func (l *Logger) Log(s string) {
	l.logIn(s, 3)
}

func (l *Logger) Logf(format string, args ...interface{}) {
	l.logIn(fmt.Sprintf(format, args...), 3)
}

// Write lets the logger be handed to code that only knows io.Writer.
func (l *Logger) Write(p []byte) (int, error) {
	l.logIn(string(p), 3)
	return len(p), nil
}

func (l *Logger) enabled() bool {
	return l != nil && l.Writer != nil
}

func (l *Logger) logIn(s string, callers int) {
	if !l.enabled() {
		return
	}
	s = strings.TrimSuffix(s, "\n")
	if l.Plain {
		l.println(s)
		return
	}
	pc := make([]uintptr, 15)
	n := runtime.Callers(callers, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()
	file := strings.TrimPrefix(frame.File, internalPrefix)
	function := strings.TrimPrefix(frame.Function, modulePrefix)
	l.println(fmt.Sprintf("[%s %d %s] %s", file, frame.Line, function, s))
}

func (l *Logger) println(s string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	_, err := l.Writer.Write([]byte(s + "\n"))
	if err != nil {
		// nowhere else to report it
		fmt.Println(err)
	}
}
