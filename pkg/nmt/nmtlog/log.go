// Copyright 2021 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nmtlog is the leveled logger used across the native memory
// tracker packages. It never owns process-wide logging configuration;
// the host runtime installs a backend with SetLogger. Unlike a
// general-purpose logging facade, nmt only ever logs at three levels -
// a debug trace of internal bookkeeping, a warning when a caller hands
// it something irregular, and an error when a recording call is
// dropped - so Logger carries only those three.
package nmtlog

import (
	stdlog "log"
)

// Logger is the interface the nmt packages log through.
type Logger interface {
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// level names the three severities nmt ever logs at, used both to
// gate Debugf on debugEnabled and to build the line prefix.
type level int

const (
	levelDebug level = iota
	levelWarn
	levelError
)

func (lv level) prefix() string {
	switch lv {
	case levelDebug:
		return "DEBUG: nmt "
	case levelWarn:
		return "WARN: nmt "
	default:
		return "ERROR: nmt "
	}
}

type logger struct {
	backend *stdlog.Logger
}

func (l *logger) logf(lv level, format string, v ...interface{}) {
	if l.backend == nil {
		return
	}
	if lv == levelDebug && !debugEnabled {
		return
	}
	l.backend.Printf(lv.prefix()+format, v...)
}

func (l *logger) Debugf(format string, v ...interface{}) { l.logf(levelDebug, format, v...) }
func (l *logger) Warnf(format string, v ...interface{})  { l.logf(levelWarn, format, v...) }
func (l *logger) Errorf(format string, v ...interface{}) { l.logf(levelError, format, v...) }

var log Logger = &logger{}
var debugEnabled bool

// SetLogger installs the backend used for all nmt logging.
func SetLogger(l *stdlog.Logger) {
	log = &logger{backend: l}
}

// SetDebug toggles emission of Debugf messages.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}

// Get returns the currently installed logger.
func Get() Logger {
	return log
}
