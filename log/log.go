// Package log provides the colorized, level-toggled logging used across the
// controller and agent daemons.
package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/starkandwayne/goutils/ansi"
	"golang.org/x/term"
)

// DebugOn toggles debug-level output. Flipped by CONVERGENT_DEBUG.
var DebugOn = envFlag("CONVERGENT_DEBUG")

// TraceOn toggles trace-level output (very verbose). Flipped by CONVERGENT_TRACE.
var TraceOn = envFlag("CONVERGENT_TRACE")

var dontPrintWarnings bool

func envFlag(name string) bool {
	val := os.Getenv(name)
	return val != "" && strings.ToLower(val) != "false" && val != "0"
}

// SilenceWarnings suppresses Warn output when should is true.
func SilenceWarnings(should bool) {
	dontPrintWarnings = should
}

// AutoColor enables ansi coloring when stderr is a terminal, matching the
// --color=auto behavior daemons expose on their command line.
func AutoColor() {
	ansi.Color(isatty.IsTerminal(os.Stderr.Fd()))
}

// SetColor forces ansi coloring on or off.
func SetColor(on bool) {
	ansi.Color(on)
}

// Action names a unit of work a subsystem performed, for the structured
// per-action logging the broadcast and receiver loops emit (connection
// accepted, update scheduled, fragment applied, and so on).
type Action struct {
	Name   string
	Fields map[string]interface{}
}

// NewAction starts a structured action record.
func NewAction(name string) *Action {
	return &Action{Name: name, Fields: map[string]interface{}{}}
}

// With attaches a field to the action and returns it for chaining.
func (a *Action) With(key string, value interface{}) *Action {
	a.Fields[key] = value
	return a
}

// Log emits the action at TRACE level as "name key=value key=value ...".
func (a *Action) Log() {
	if !TraceOn {
		return
	}
	var b strings.Builder
	b.WriteString(a.Name)
	for k, v := range a.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	TRACE("%s", b.String())
}

func width() int {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func wrap(s string) string {
	w := width()
	if w <= 0 {
		return s
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		for len(line) > w {
			out = append(out, line[:w])
			line = line[w:]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// DEBUG prints a debug message if DebugOn is set.
func DEBUG(format string, args ...interface{}) {
	if !DebugOn {
		return
	}
	PrintfStdErr(ansi.Sprintf("@c{DEBUG} "+format+"\n", args...))
}

// TRACE prints a trace message if TraceOn is set.
func TRACE(format string, args ...interface{}) {
	if !TraceOn {
		return
	}
	PrintfStdErr(ansi.Sprintf("@m{TRACE} "+format+"\n", args...))
}

// INFO prints an informational message unconditionally.
func INFO(format string, args ...interface{}) {
	PrintfStdErr(ansi.Sprintf("@g{info}  "+format+"\n", args...))
}

// WARN prints a warning message, unless silenced.
func WARN(format string, args ...interface{}) {
	if dontPrintWarnings {
		return
	}
	PrintfStdErr(ansi.Sprintf("@Y{warning:} "+format+"\n", args...))
}

// PrintfStdErr writes an already-formatted string to stderr, wrapped to the
// terminal width when stderr is a TTY and to 80 columns otherwise.
func PrintfStdErr(s string, args ...interface{}) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	fmt.Fprint(os.Stderr, wrap(s))
}
