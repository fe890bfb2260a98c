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

// Package kernel holds the Linux-specific primitives the supervisor and
// sandboxed child invoke directly: namespace setup, mount/pivot_root,
// uid/gid mapping, fd redirection, rlimits, capability dropping and
// loopback bring-up. Every primitive here runs inside one of the
// generations created by package pipeline, which is its only caller in
// this module.
package kernel

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OuterCloneFlags is the namespace set the supervisor generation is
// created with: a private mount namespace (so later bind mounts and
// pivot_root never leak to the caller) and a fresh user namespace (so
// the mapped root inside the sandbox is not real root on the host).
// Network and pid namespaces are deliberately not part of the outer
// clone: pid isolation belongs to the inner clone only, and network
// isolation is the per-run ShareNet choice applied there too.
const OuterCloneFlags = unix.CLONE_NEWNS | unix.CLONE_NEWUSER

// InnerCloneFlags is the namespace set the sandboxed child generation is
// created with: always a fresh pid namespace, and a fresh net namespace
// only when shareNet requests it.
func InnerCloneFlags(unshareNet bool) uintptr {
	flags := uintptr(unix.CLONE_NEWPID)
	if unshareNet {
		flags |= unix.CLONE_NEWNET
	}
	return flags
}

// WriteUidGidMaps maps hostUID/hostGID to uid/gid 0 inside the calling
// process's own user namespace, one-to-one, and disables setgroups so
// the gid_map write is permitted without CAP_SETGID in the parent
// namespace. It must run inside the namespace it is mapping (i.e. in
// the supervisor, right after the outer clone), not from the caller.
func WriteUidGidMaps(hostUID, hostGID int) error {
	if err := os.WriteFile("/proc/self/setgroups", []byte("deny"), 0o644); err != nil {
		return fmt.Errorf("write /proc/self/setgroups: %w", err)
	}
	if err := writeIDMap("/proc/self/uid_map", hostUID); err != nil {
		return err
	}
	if err := writeIDMap("/proc/self/gid_map", hostGID); err != nil {
		return err
	}
	return nil
}

// UnshareCgroupNamespace detaches the calling process's view of the
// cgroup hierarchy from the host's. It must run only after the process
// has already joined its leaf cgroup (cgroup.procs is written against
// the pre-unshare hierarchy): unsharing first would mean joining a
// cgroup the process can no longer see by its real host path.
func UnshareCgroupNamespace() error {
	if err := unix.Unshare(unix.CLONE_NEWCGROUP); err != nil {
		return fmt.Errorf("unshare cgroup namespace: %w", err)
	}
	return nil
}

func writeIDMap(path string, hostID int) error {
	line := fmt.Sprintf("0 %d 1\n", hostID)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
