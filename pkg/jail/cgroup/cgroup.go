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

// Package cgroup is the cgroup v1 controller: it creates, joins,
// configures, measures and tears down one leaf cgroup per enabled
// controller (cpuacct, memory, pids) under the caller-supplied parent
// directories in config.ControllerPath.
//
// It talks to cgroupfs directly with plain file operations rather than
// through a cgroup client library — see DESIGN.md for why
// github.com/containerd/cgroups' path-joining model does not fit an
// arbitrary, independently-optional, pre-created parent directory per
// controller.
package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"

	"github.com/judgehost/iajail/pkg/jail/config"
	"github.com/judgehost/iajail/pkg/jail/jailerr"
)

// Usage is the subset of a run's resource usage this package can
// measure: CPU time actually consumed and peak memory footprint.
type Usage struct {
	UserTime time.Duration
	Memory   config.SpaceUsage
}

// Controller owns the leaf cgroup directories for a single sandboxed
// run, one per enabled controller.
type Controller struct {
	paths      config.ControllerPath
	instance   string
	clearUsage bool

	leaves map[string]string // controller name -> leaf directory
}

const lockFileName = ".judgebox-leaf.lock"

// New prepares a Controller for instance under the given parent paths.
// A zero-value field in paths disables that controller entirely: no
// directory is created or joined for it, and its Usage contribution is
// left at zero.
func New(paths config.ControllerPath, instance string, clearUsage bool) *Controller {
	return &Controller{paths: paths, instance: instance, clearUsage: clearUsage, leaves: map[string]string{}}
}

// Create makes the leaf directory for every enabled controller. A
// github.com/gofrs/flock lock on the parent directory serializes
// concurrent Create calls targeting the same parent, since mkdir of a
// leaf that two invocations pick concurrently (an instance name
// collision, or two runners racing to initialize the same parent's
// first leaf) is otherwise a benign-looking race with a confusing
// failure mode.
func (c *Controller) Create() error {
	for name, parent := range c.enabledParents() {
		if err := c.createLeaf(name, parent); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) createLeaf(name, parent string) error {
	lock := flock.New(filepath.Join(parent, lockFileName))
	if err := lock.Lock(); err != nil {
		return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: lock.Path(), Err: err})
	}
	defer lock.Unlock()

	leaf := filepath.Join(parent, c.instance)
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: leaf, Err: err})
	}
	c.leaves[name] = leaf
	return nil
}

// Join adds pid to every enabled controller's leaf cgroup. Per spec.md's
// ordering contract, the sandboxed child must join before it unshares
// its cgroup namespace or pivots its root: cgroup.procs is written from
// outside any namespace the join itself would otherwise hide the target
// pid behind.
//
// Join derives each leaf path from enabledParents/instance rather than
// reading c.leaves: the caller that runs Create (the supervisor) and
// the caller that runs Join (the sandboxed child, after a re-exec into
// a separate address space) are different processes, so an in-memory
// map populated by one is empty in the other. The leaf path is a pure
// function of paths and instance, so recomputing it needs no state
// Create left behind.
func (c *Controller) Join(pid int) error {
	for _, parent := range c.enabledParents() {
		leaf := filepath.Join(parent, c.instance)
		file := filepath.Join(leaf, "cgroup.procs")
		if err := writeFile(file, strconv.Itoa(pid)); err != nil {
			return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: file, Err: err})
		}
	}
	return nil
}

// Configure writes the resource limits to each enabled controller and,
// if clearUsage was requested, resets that controller's cumulative
// usage counters to zero immediately beforehand so Usage reports only
// what this run consumed.
func (c *Controller) Configure(limits config.Limits) error {
	if leaf, ok := c.leaves["cpuacct"]; ok && c.clearUsage {
		if err := writeFile(filepath.Join(leaf, "cpuacct.usage"), "0"); err != nil {
			return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: "cpuacct.usage", Err: err})
		}
	}

	if leaf, ok := c.leaves["memory"]; ok {
		if c.clearUsage {
			if err := writeFile(filepath.Join(leaf, "memory.max_usage_in_bytes"), "0"); err != nil {
				return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: "memory.max_usage_in_bytes", Err: err})
			}
		}
		if limits.Memory != nil {
			file := filepath.Join(leaf, "memory.limit_in_bytes")
			if err := writeFile(file, strconv.FormatUint(limits.Memory.Bytes(), 10)); err != nil {
				return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: file, Err: err})
			}

			// Without swappiness pinned to zero a memory-pressured child
			// swaps instead of hitting memory.limit_in_bytes, so the cap
			// never trips. memory.memsw.limit_in_bytes only exists when
			// the kernel was built with swap accounting; write it too
			// when present so swap can't be used to dodge the cap either.
			swappiness := filepath.Join(leaf, "memory.swappiness")
			if err := writeFile(swappiness, "0"); err != nil {
				return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: swappiness, Err: err})
			}
			memsw := filepath.Join(leaf, "memory.memsw.limit_in_bytes")
			if _, err := os.Stat(memsw); err == nil {
				if err := writeFile(memsw, strconv.FormatUint(limits.Memory.Bytes(), 10)); err != nil {
					return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: memsw, Err: err})
				}
			}
		}
	}

	if leaf, ok := c.leaves["pids"]; ok && limits.Pids != nil {
		file := filepath.Join(leaf, "pids.max")
		if err := writeFile(file, strconv.Itoa(*limits.Pids)); err != nil {
			return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpWrite, File: file, Err: err})
		}
	}

	return nil
}

// Usage reads back the cumulative CPU time and peak memory this
// controller's leaves have recorded.
func (c *Controller) Usage() (Usage, error) {
	var u Usage

	if leaf, ok := c.leaves["cpuacct"]; ok {
		ns, err := readUint(filepath.Join(leaf, "cpuacct.usage"))
		if err != nil {
			return Usage{}, jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpRead, File: "cpuacct.usage", Err: err})
		}
		u.UserTime = time.Duration(ns)
	}

	if leaf, ok := c.leaves["memory"]; ok {
		bytes, err := readUint(filepath.Join(leaf, "memory.max_usage_in_bytes"))
		if err != nil {
			return Usage{}, jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpRead, File: "memory.max_usage_in_bytes", Err: err})
		}
		u.Memory = config.FromBytes(bytes)
	}

	return u, nil
}

// Destroy removes every leaf directory this Controller created. A leaf
// can briefly return EBUSY after its last process exits (the kernel
// reclaims cgroup accounting state asynchronously), so removal is
// retried with bounded exponential backoff rather than failing the
// whole teardown on the first attempt.
func (c *Controller) Destroy() error {
	for name, leaf := range c.leaves {
		op := func() error { return os.Remove(leaf) }
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 2 * time.Second
		if err := backoff.Retry(op, b); err != nil {
			return jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpLeafBusy, File: leaf, Err: err})
		}
		delete(c.leaves, name)
	}
	return nil
}

func (c *Controller) enabledParents() map[string]string {
	parents := map[string]string{}
	if c.paths.CPUAcct != "" {
		parents["cpuacct"] = c.paths.CPUAcct
	}
	if c.paths.Memory != "" {
		parents["memory"] = c.paths.Memory
	}
	if c.paths.Pids != "" {
		parents["pids"] = c.paths.Pids
	}
	return parents
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func readUint(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
}
