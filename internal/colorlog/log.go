// Package colorlog is a small level-based, colorized logger: a handful of
// Lvl1..Lvl3 functions gated by a global debug level, colorized with
// go-colortext, with no external log-framework dependency.
package colorlog

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"time"

	ct "github.com/daviddengcn/go-colortext"
)

const (
	lvlWarn = iota - 10
	lvlError
	lvlFatal
	lvlInfo
)

var mut sync.Mutex
var debugLvl = 1
var regexpPaths = regexp.MustCompile(".*/")

func init() {
	if v := os.Getenv("DEBUG_LVL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			debugLvl = n
		}
	}
}

// SetDebugVisible changes the global level; only Lvl<=level messages print.
func SetDebugVisible(level int) {
	mut.Lock()
	debugLvl = level
	mut.Unlock()
}

// DebugVisible returns the current global debug level.
func DebugVisible() int {
	mut.Lock()
	defer mut.Unlock()
	return debugLvl
}

func write(level int, tag string, color ct.Color, args ...interface{}) {
	mut.Lock()
	defer mut.Unlock()
	if level > debugLvl {
		return
	}
	pc, _, line, _ := runtime.Caller(3)
	name := regexpPaths.ReplaceAllString(runtime.FuncForPC(pc).Name(), "")
	ct.Foreground(color, true)
	fmt.Fprintf(os.Stderr, "%-2s %s %s:%d - ", tag, time.Now().Format("15:04:05.000"), name, line)
	ct.ResetColor()
	fmt.Fprintln(os.Stderr, args...)
}

func writef(level int, tag string, color ct.Color, format string, args ...interface{}) {
	write(level, tag, color, fmt.Sprintf(format, args...))
}

// Lvl1 prints informational output that is on by default.
func Lvl1(args ...interface{}) { write(1, "I", ct.Green, args...) }

// Lvl2 is more verbose, off by default.
func Lvl2(args ...interface{}) { write(2, "I", ct.Green, args...) }

// Lvl3 is for debugging a single component.
func Lvl3(args ...interface{}) { write(3, "I", ct.Green, args...) }

// Lvl1f is Lvl1 with a format string.
func Lvl1f(format string, args ...interface{}) { writef(1, "I", ct.Green, format, args...) }

// Lvl2f is Lvl2 with a format string.
func Lvl2f(format string, args ...interface{}) { writef(2, "I", ct.Green, format, args...) }

// Lvl3f is Lvl3 with a format string.
func Lvl3f(format string, args ...interface{}) { writef(3, "I", ct.Green, format, args...) }

// Info always prints, in cyan.
func Info(args ...interface{}) { write(lvlInfo, "I", ct.Cyan, args...) }

// Warn always prints, in yellow.
func Warn(args ...interface{}) { write(lvlWarn, "W", ct.Yellow, args...) }

// Warnf is Warn with a format string.
func Warnf(format string, args ...interface{}) { writef(lvlWarn, "W", ct.Yellow, format, args...) }

// Error always prints, in red.
func Error(args ...interface{}) { write(lvlError, "E", ct.Red, args...) }

// Errorf is Error with a format string.
func Errorf(format string, args ...interface{}) { writef(lvlError, "E", ct.Red, format, args...) }

// Fatal logs in red and exits the process.
func Fatal(args ...interface{}) {
	write(lvlFatal, "F", ct.Red, args...)
	os.Exit(1)
}

// ErrFatal logs and exits the process if err is non-nil; otherwise a no-op.
func ErrFatal(err error, args ...interface{}) {
	if err == nil {
		return
	}
	all := append(args, err)
	write(lvlFatal, "F", ct.Red, all...)
	os.Exit(1)
}
