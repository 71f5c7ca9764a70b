// Package monitoring holds the diagnostic logging hook shared by the sweep,
// results and report packages. Library code never picks a logging backend;
// the CLIs point Logf at their own logger.
package monitoring

import (
	"fmt"
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes every message with "[name] " and
// forwards to whatever Logf is at call time, so later SetLogger calls are
// honoured.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Printer adapts a structured "msg, keyvals..." logger (such as
// charmbracelet/log's Info) into a Logf-compatible function. A leading
// "[component]" tag is lifted into a "component" key.
func Printer(emit func(msg interface{}, keyvals ...interface{})) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		msg := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
		if strings.HasPrefix(msg, "[") {
			if end := strings.Index(msg, "] "); end > 1 {
				emit(msg[end+2:], "component", msg[1:end])
				return
			}
		}
		emit(msg)
	}
}
