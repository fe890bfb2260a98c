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
	"os"

	"golang.org/x/sys/unix"
)

// KillOnParentDeath arranges for the calling process to receive SIGKILL
// the moment its parent dies, then immediately re-checks its parent:
// prctl(PR_SET_PDEATHSIG) only takes effect going forward, so a parent
// that died between the fork and this call would otherwise be missed.
// Re-reading getppid() after the prctl call closes that window: if the
// parent has already changed (reparented to init), no death signal
// will ever arrive, so the process sends itself SIGKILL instead.
func KillOnParentDeath(originalPpid int) error {
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		return err
	}
	if os.Getppid() != originalPpid {
		return unix.Kill(os.Getpid(), unix.SIGKILL)
	}
	return nil
}
