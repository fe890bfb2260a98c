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

	"github.com/syndtr/gocapability/capability"
)

// DropAllCapabilities clears every capability set for the calling
// process. It runs last, right before exec_command: the child already
// has root-in-namespace via the uid/gid map, so it needs no capability
// at all once the target program starts, and dropping late keeps every
// earlier primitive (mount, pivot_root, setrlimit) working with the
// capabilities it actually needs.
func DropAllCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("capability.NewPid2: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("capability.Load: %w", err)
	}
	caps.Clear(capability.CAPS | capability.BOUNDING | capability.AMBIENT)
	if err := caps.Apply(capability.CAPS | capability.BOUNDING | capability.AMBIENT); err != nil {
		return fmt.Errorf("capability.Apply: %w", err)
	}
	return nil
}
