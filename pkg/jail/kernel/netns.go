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

	"github.com/vishvananda/netlink"
)

// BringUpLoopback brings the loopback interface up inside the calling
// process's (freshly unshared) network namespace. A brand new
// CLONE_NEWNET namespace starts with lo present but administratively
// down; spec.md says nothing about this, but a sandboxed program that
// reaches for 127.0.0.1 with share_net=Unshare would otherwise fail for
// a reason that has nothing to do with the policy it was given.
func BringUpLoopback() error {
	link, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("lookup lo: %w", err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring up lo: %w", err)
	}
	return nil
}
