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

// Package reexec lets the calling binary launch a fresh copy of itself
// under a different process image, dispatched by argv[0], instead of
// calling clone(2) directly: once a Go program has more than one OS
// thread running (which the runtime starts well before main even
// begins), fork() without an immediate exec() is unsafe, so every
// generation past the caller is a real exec of /proc/self/exe rather
// than a raw fork.
//
// A host binary that embeds this package must call Init at the very
// top of its own main, before doing anything else:
//
//	func main() {
//		if reexec.Init() {
//			return
//		}
//		... normal program ...
//	}
package reexec

import (
	"os"
	"os/exec"
)

var registered = make(map[string]func())

// Register associates name with an entry point. Command(name, ...)
// launches a fresh copy of the running binary with argv[0] set to name;
// Init, called from that fresh copy, dispatches to the registered func
// and never returns to the caller's normal main.
func Register(name string, entryPoint func()) {
	registered[name] = entryPoint
}

// Init checks whether the running process was launched by Command under
// a registered name, and if so runs the matching entry point and
// reports true. The entry point is expected to end the process itself
// (via os.Exit or by falling off the end of main); Init does not exit
// on its caller's behalf.
func Init() bool {
	entryPoint, ok := registered[os.Args[0]]
	if !ok {
		return false
	}
	entryPoint()
	return true
}

// Command builds an *exec.Cmd that re-execs the running binary with
// argv[0] set to name, so the child's Init call dispatches to name's
// registered entry point. Remaining args are passed through as the
// child's os.Args[1:].
func Command(name string, args ...string) *exec.Cmd {
	cmd := &exec.Cmd{
		Path: self(),
		Args: append([]string{name}, args...),
	}
	return cmd
}

// self resolves the running binary's own executable path, preferring
// /proc/self/exe (stable across argv[0] rewriting and $PATH changes)
// and falling back to os.Args[0] resolution if that is unavailable.
func self() string {
	if p, err := os.Readlink("/proc/self/exe"); err == nil {
		return p
	}
	if lp, err := exec.LookPath(os.Args[0]); err == nil {
		return lp
	}
	return os.Args[0]
}
