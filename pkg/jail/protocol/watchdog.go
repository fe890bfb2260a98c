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

package protocol

import (
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	installOnce sync.Once

	watchdogMu sync.Mutex
	active     *Watchdog
)

// installHandler registers the process-wide SIGALRM handler exactly
// once. It is harmless if no Watchdog is ever armed (no-op signals are
// simply dropped), so there is no corresponding teardown.
func installHandler() {
	installOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		notifySigalrm(ch)
		go func() {
			for range ch {
				watchdogMu.Lock()
				w := active
				watchdogMu.Unlock()
				if w != nil {
					w.fire()
				}
			}
		}()
	})
}

// Watchdog is the wall-clock timeout for a single sandboxed run. Only
// one Watchdog is ever armed at a time per process, matching the
// single-threaded, single-invocation-per-process concurrency model.
type Watchdog struct {
	fired     chan struct{}
	closeOnce sync.Once
	timer     *time.Timer
}

// Arm starts the wall-clock timer: after d elapses, SIGALRM is raised
// against this process, observed by the shared handler goroutine, and
// Fired is closed.
func Arm(d time.Duration) *Watchdog {
	installHandler()

	w := &Watchdog{fired: make(chan struct{})}
	watchdogMu.Lock()
	active = w
	watchdogMu.Unlock()

	pid := os.Getpid()
	w.timer = time.AfterFunc(d, func() {
		_ = unix.Kill(pid, unix.SIGALRM)
	})
	return w
}

// Fired is closed once the wall-clock timer has elapsed.
func (w *Watchdog) Fired() <-chan struct{} { return w.fired }

func (w *Watchdog) fire() {
	w.closeOnce.Do(func() { close(w.fired) })
}

// Disarm stops the timer (if it hasn't fired yet) and detaches this
// Watchdog from the shared handler. Safe to call more than once.
func (w *Watchdog) Disarm() {
	if w.timer != nil {
		w.timer.Stop()
	}
	watchdogMu.Lock()
	if active == w {
		active = nil
	}
	watchdogMu.Unlock()
}
