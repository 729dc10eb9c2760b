// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides leveled logging for the daemon and its components.
// Messages below the configured threshold are dropped; the message text is
// formatted before the threshold check.
// Time/date stamps are off by default because systemd prepends its own;
// the sd-daemon priority prefixes (<7>[DEBUG] etc.) let journald map each
// line to a syslog severity either way.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level orders severities from most to least verbose.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

// ParseLevel maps the -loglevel flag vocabulary to a Level. Unknown
// values fall back to debug so a typo surfaces everything rather than
// hiding it.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "err", "error", "fatal":
		return LevelError
	case "crit":
		return LevelCrit
	default:
		fmt.Fprintf(os.Stderr, "pkg/log: invalid loglevel %q, using debug\n", s)
		return LevelDebug
	}
}

// prefixes follow https://www.freedesktop.org/software/systemd/man/sd-daemon.html
var prefixes = [...]string{
	LevelDebug: "<7>[DEBUG]    ",
	LevelInfo:  "<6>[INFO]     ",
	LevelWarn:  "<4>[WARNING]  ",
	LevelError: "<3>[ERROR]    ",
	LevelCrit:  "<2>[CRITICAL] ",
}

// callsite flags per level: errors carry the full file path, warnings
// just the basename, chatter none at all.
var callsite = [...]int{
	LevelDebug: 0,
	LevelInfo:  0,
	LevelWarn:  log.Lshortfile,
	LevelError: log.Llongfile,
	LevelCrit:  log.Llongfile,
}

var (
	threshold = LevelDebug
	out       io.Writer = os.Stderr
	loggers   [len(prefixes)]*log.Logger
)

func init() {
	rebuild(false)
}

func rebuild(logdate bool) {
	for lvl := range loggers {
		flags := callsite[lvl]
		if logdate {
			flags |= log.LstdFlags
		}
		loggers[lvl] = log.New(out, prefixes[lvl], flags)
	}
}

// Init sets the level threshold and whether lines carry a date/time
// stamp. It is meant to be called once, from main, before the first log
// call from any component goroutine.
func Init(lvl string, logdate bool) {
	threshold = ParseLevel(lvl)
	rebuild(logdate)
}

// SetOutput redirects all levels to w. Tests use this to capture output.
func SetOutput(w io.Writer) {
	out = w
	rebuild(false)
}

func emit(lvl Level, msg string) {
	if lvl < threshold {
		return
	}
	loggers[lvl].Output(3, msg)
}

func Debug(v ...any) { emit(LevelDebug, fmt.Sprint(v...)) }
func Info(v ...any)  { emit(LevelInfo, fmt.Sprint(v...)) }
func Warn(v ...any)  { emit(LevelWarn, fmt.Sprint(v...)) }
func Error(v ...any) { emit(LevelError, fmt.Sprint(v...)) }
func Crit(v ...any)  { emit(LevelCrit, fmt.Sprint(v...)) }

func Debugf(format string, v ...any) { emit(LevelDebug, fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { emit(LevelInfo, fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { emit(LevelWarn, fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { emit(LevelError, fmt.Sprintf(format, v...)) }
func Critf(format string, v ...any)  { emit(LevelCrit, fmt.Sprintf(format, v...)) }

// Fatal logs at the error level and stops the process.
func Fatal(v ...any) {
	Error(v...)
	os.Exit(1)
}

func Fatalf(format string, v ...any) {
	Errorf(format, v...)
	os.Exit(1)
}
