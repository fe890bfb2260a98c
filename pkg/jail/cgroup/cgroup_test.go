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

// These tests exercise the Controller's file-level contract against
// plain temp directories standing in for cgroupfs mounts; they do not
// require root or a real cgroup v1 hierarchy, since Controller never
// does anything cgroup-specific beyond reading and writing the files
// spec.md names.
package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/judgehost/iajail/pkg/jail/config"
)

func TestCreateJoinConfigureUsageDestroy(t *testing.T) {
	root := t.TempDir()
	cpuacct := filepath.Join(root, "cpuacct")
	memory := filepath.Join(root, "memory")
	pids := filepath.Join(root, "pids")
	for _, dir := range []string{cpuacct, memory, pids} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	// Stand-in cgroupfs "files" a real kernel would already provide.
	mustWrite(t, filepath.Join(cpuacct, "cpuacct.usage"), "0")
	mustWrite(t, filepath.Join(memory, "memory.max_usage_in_bytes"), "0")

	paths := config.ControllerPath{CPUAcct: cpuacct, Memory: memory, Pids: pids}
	ctl := New(paths, "test-instance", false)

	if err := ctl.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, dir := range []string{cpuacct, memory, pids} {
		leaf := filepath.Join(dir, "test-instance")
		if _, err := os.Stat(leaf); err != nil {
			t.Fatalf("leaf %s was not created: %v", leaf, err)
		}
		// The create file files used by cpuacct.usage/memory.max_usage_in_bytes
		// live at the leaf in a real cgroupfs; seed them so Configure/Usage
		// below have something to read and write.
		mustWrite(t, filepath.Join(leaf, "cpuacct.usage"), "0")
		mustWrite(t, filepath.Join(leaf, "memory.max_usage_in_bytes"), "0")
	}

	pidsLimit := 16
	memLimit := config.FromMebibytes(256)
	if err := ctl.Configure(config.Limits{Pids: &pidsLimit, Memory: &memLimit}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	pidsMaxFile := filepath.Join(pids, "test-instance", "pids.max")
	got := mustRead(t, pidsMaxFile)
	if got != strconv.Itoa(pidsLimit) {
		t.Fatalf("pids.max = %q, want %q", got, strconv.Itoa(pidsLimit))
	}

	memLimitFile := filepath.Join(memory, "test-instance", "memory.limit_in_bytes")
	got = mustRead(t, memLimitFile)
	if got != strconv.FormatUint(memLimit.Bytes(), 10) {
		t.Fatalf("memory.limit_in_bytes = %q, want %q", got, strconv.FormatUint(memLimit.Bytes(), 10))
	}

	swappinessFile := filepath.Join(memory, "test-instance", "memory.swappiness")
	if got := mustRead(t, swappinessFile); got != "0" {
		t.Fatalf("memory.swappiness = %q, want %q", got, "0")
	}

	// Join is exercised through a brand new Controller value, not ctl,
	// to mirror the real topology: Create runs in the supervisor
	// process, Join runs in the sandboxed child after a re-exec into a
	// separate address space, so it must never depend on an in-memory
	// leaves map populated by a Create call it never made.
	joiner := New(paths, "test-instance", false)
	if err := joiner.Join(os.Getpid()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	procsFile := filepath.Join(cpuacct, "test-instance", "cgroup.procs")
	if got := mustRead(t, procsFile); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("cgroup.procs = %q, want own pid", got)
	}

	mustWrite(t, filepath.Join(cpuacct, "test-instance", "cpuacct.usage"), "1500000000")
	mustWrite(t, filepath.Join(memory, "test-instance", "memory.max_usage_in_bytes"), strconv.FormatUint(config.FromMebibytes(42).Bytes(), 10))

	usage, err := ctl.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.UserTime.Seconds() != 1.5 {
		t.Fatalf("Usage().UserTime = %v, want 1.5s", usage.UserTime)
	}
	if usage.Memory.Bytes() != config.FromMebibytes(42).Bytes() {
		t.Fatalf("Usage().Memory = %v, want 42MiB", usage.Memory)
	}

	// Real cgroup v1 control files are not ordinary directory entries:
	// an empty leaf rmdir's cleanly even though "cat leaf/*" shows
	// content. The plain files this test wrote to stand in for them
	// would block a plain os.Remove, so clear them first to keep the
	// fake cgroupfs honest about what Destroy actually assumes.
	for _, dir := range []string{cpuacct, memory, pids} {
		entries, err := os.ReadDir(filepath.Join(dir, "test-instance"))
		if err != nil {
			t.Fatalf("readdir: %v", err)
		}
		for _, e := range entries {
			if err := os.Remove(filepath.Join(dir, "test-instance", e.Name())); err != nil {
				t.Fatalf("remove %s: %v", e.Name(), err)
			}
		}
	}

	if err := ctl.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cpuacct, "test-instance")); !os.IsNotExist(err) {
		t.Fatal("Destroy should have removed the leaf directory")
	}
}

func TestDisabledControllerIsSkipped(t *testing.T) {
	root := t.TempDir()
	memory := filepath.Join(root, "memory")
	if err := os.MkdirAll(memory, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ctl := New(config.ControllerPath{Memory: memory}, "only-memory", false)
	if err := ctl.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mustWrite(t, filepath.Join(memory, "only-memory", "memory.max_usage_in_bytes"), "0")
	if err := ctl.Join(os.Getpid()); err != nil {
		t.Fatalf("Join: %v", err)
	}

	usage, err := ctl.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.UserTime != 0 {
		t.Fatalf("UserTime should be zero with cpuacct disabled, got %v", usage.UserTime)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(raw)
}
