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

package kernel

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// RedirectFDs dup2s stdin/stdout/stderr onto the given paths (an empty
// path leaves that fd untouched). When swapStdoutFirst is set, stdout is
// opened before stdin: a pair of sandboxed peers that redirect stdin
// from one FIFO and stdout to another can deadlock in open(2) — a FIFO's
// open blocks until the other end is also open — unless their open
// order is staggered across the pair, which is exactly what
// Config.SwapRedirects asks one half of the pair to do.
func RedirectFDs(stdinPath, stdoutPath, stderrPath string, swapStdoutFirst bool) error {
	if swapStdoutFirst {
		if err := redirectOne(stdoutPath, unix.Stdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err != nil {
			return err
		}
		if err := redirectOne(stdinPath, unix.Stdin, os.O_RDONLY); err != nil {
			return err
		}
	} else {
		if err := redirectOne(stdinPath, unix.Stdin, os.O_RDONLY); err != nil {
			return err
		}
		if err := redirectOne(stdoutPath, unix.Stdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err != nil {
			return err
		}
	}
	if err := redirectOne(stderrPath, unix.Stderr, os.O_WRONLY|os.O_CREATE|os.O_TRUNC); err != nil {
		return err
	}
	return nil
}

func redirectOne(path string, fd int, flags int) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for redirect: %w", path, err)
	}
	defer f.Close()
	if err := unix.Dup2(int(f.Fd()), fd); err != nil {
		return fmt.Errorf("dup2 %s onto fd %d: %w", path, fd, err)
	}
	return nil
}
