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

	"github.com/containerd/console"
)

// Pty is an allocated pseudo-terminal pair: Parent is held by the
// supervisor, ChildPath is the path the sandboxed child should open and
// redirect its stdio onto in place of the plain-file redirects.
type Pty struct {
	Parent    console.Console
	ChildPath string
}

// AllocatePty opens a new pty pair. The launch pipeline does not call
// it: interactive and non-interactive runs alike get only the plain
// file/FIFO redirects their Config names.
func AllocatePty() (*Pty, error) {
	parent, childPath, err := console.NewPty()
	if err != nil {
		return nil, fmt.Errorf("allocate pty: %w", err)
	}
	return &Pty{Parent: parent, ChildPath: childPath}, nil
}
