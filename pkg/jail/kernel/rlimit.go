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

	"golang.org/x/sys/unix"

	"github.com/judgehost/iajail/pkg/jail/config"
)

// SetStackLimit applies the configured stack rlimit to the calling
// process, hard and soft together, so the sandboxed program cannot
// raise it back before exec. A nil limit leaves the inherited rlimit
// untouched.
func SetStackLimit(limit *config.SpaceUsage) error {
	if limit == nil {
		return nil
	}
	n := limit.Bytes()
	rlim := unix.Rlimit{Cur: n, Max: n}
	if err := unix.Setrlimit(unix.RLIMIT_STACK, &rlim); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_STACK: %w", err)
	}
	return nil
}

// MoveToOwnProcessGroup puts the calling process in a new process group
// led by itself, so a non-interactive sandboxed program cannot send
// signals to its supervisor by targeting process group 0.
func MoveToOwnProcessGroup() error {
	if err := unix.Setpgid(0, 0); err != nil {
		return fmt.Errorf("setpgid: %w", err)
	}
	return nil
}
