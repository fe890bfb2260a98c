// Copyright 2024 The Judgebox Authors.
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

// Package log is the leveled logger used across the caller and
// supervisor process generations. It is never used inside the
// sandboxed child after pivot_root: the new root may not contain a
// writable log sink, so child-side failures are reported over the
// result pipe instead (see package protocol).
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	std = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// SetDebug toggles Debugf visibility. Judges typically run with
// it off; it is useful when diagnosing a launch pipeline failure.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	if on {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

// EnableJournal adds a journald hook so logs survive even when stdout
// and stderr have been redirected away from a terminal, matching the
// way long-running daemons in the pack emit diagnostics.
func EnableJournal() error {
	hook, err := newJournalHook()
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	std.AddHook(hook)
	return nil
}

func entry() *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return logrus.NewEntry(std)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { entry().Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { entry().Infof(format, args...) }

// Warningf logs at warning level.
func Warningf(format string, args ...interface{}) { entry().Warningf(format, args...) }
