package main

import (
	"io"
	"log"
	"os"
	"strings"
)

// Logger is a two-level console logger. Debug output is dropped entirely
// unless the run was started with --logging-level DEBUG.
type Logger struct {
	console *log.Logger
	debug   *log.Logger
}

func NewLogger(level string, consoleWriter io.Writer) *Logger {
	if consoleWriter == nil {
		consoleWriter = os.Stdout
	}
	l := &Logger{
		console: log.New(consoleWriter, "[INFO] ", log.LstdFlags),
	}
	if strings.EqualFold(level, "DEBUG") {
		l.debug = log.New(consoleWriter, "[DEBUG] ", log.Lmicroseconds)
	}
	return l
}

func (l *Logger) Infof(format string, v ...any) {
	if l.console != nil {
		l.console.Printf(format, v...)
	}
}

func (l *Logger) Debugf(format string, v ...any) {
	if l.debug != nil {
		l.debug.Printf(format, v...)
	}
}

func (l *Logger) Fatalf(format string, v ...any) {
	if l.console != nil {
		l.console.Fatalf(format, v...)
	}
	os.Exit(1)
}
