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

// Package cleanup provides a scoped, stack-ordered teardown helper.
//
// It exists so that the resources the supervisor acquires before the
// sandboxed child starts (the cgroup leaves and the pipes to the child)
// are released on every early exit path — including a panic — by
// pairing each acquisition with a deferred Clean call that a later
// Release cancels once the resource has been handed off successfully.
package cleanup

// Cleanup runs a stack of functions in LIFO order unless Release is
// called first.
type Cleanup struct {
	funcs []func()
}

// Make returns a Cleanup whose first (and only) action is f.
func Make(f func()) *Cleanup {
	return &Cleanup{funcs: []func(){f}}
}

// Add appends another action to run, LIFO, when Clean is called.
func (c *Cleanup) Add(f func()) {
	c.funcs = append(c.funcs, f)
}

// Clean runs all registered actions in reverse registration order, then
// clears the stack so a repeated call is a no-op.
func (c *Cleanup) Clean() {
	for i := len(c.funcs) - 1; i >= 0; i-- {
		c.funcs[i]()
	}
	c.funcs = nil
}

// Release discards all registered actions without running them. Call it
// once the resources being tracked have been handed off to a longer-lived
// owner (or the operation succeeded and no teardown is needed).
func (c *Cleanup) Release() {
	c.funcs = nil
}
