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

package pipeline

import (
	"os"

	"github.com/judgehost/iajail/pkg/jail/cgroup"
	"github.com/judgehost/iajail/pkg/jail/config"
	"github.com/judgehost/iajail/pkg/jail/jailerr"
	"github.com/judgehost/iajail/pkg/jail/kernel"
	"github.com/judgehost/iajail/pkg/jail/protocol"
	"github.com/judgehost/iajail/pkg/jail/reexec"
)

// childEntryPoint is the registered name the supervisor re-execs under
// to reach childMain. It is never a path a user could type; it only
// ever appears as argv[0] of a process this module itself launched.
const childEntryPoint = "judgebox-child"

func init() {
	reexec.Register(childEntryPoint, childMain)
}

// The two inherited fds every child process receives, in the order
// the supervisor sets them up as ExtraFiles before starting it.
const (
	childConfigFD = 3
	childResultFD = 4
)

// childMain is the inner clone's entire body. It never returns: on a
// successful exec_command the process image is replaced outright. If
// its config cannot be read or rebuilt it exits 97 without writing a
// result; on any later failure before exec, it reports a ChildError
// over the inherited result pipe and exits nonzero.
func childMain() {
	configFile := os.NewFile(uintptr(childConfigFD), "config")
	resultFile := os.NewFile(uintptr(childResultFD), "result")

	var wire configWire
	if err := readFramed(configFile, &wire); err != nil {
		os.Exit(97)
	}
	cfg, err := wire.toConfig()
	if err != nil {
		os.Exit(97)
	}

	// The remaining stages are a strict linear pipeline — redirects,
	// stack rlimit, cgroup join, cgroup unshare, private remount, bind
	// mounts + pivot_root, proc mount, loopback bring-up (unshared net
	// only), process group, capability drop, exec — and must not be
	// reordered: each stage's isolation guarantee depends on every
	// earlier one already having run (cgroup.procs must be written
	// while the host cgroup path is still reachable, pivot_root must
	// see the bind mounts already in place, and so on).
	if err := kernel.RedirectFDs(cfg.RedirectStdin(), cfg.RedirectStdout(), cfg.RedirectStderr(), cfg.SwapRedirects()); err != nil {
		die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindRedirect, Err: err}))
	}

	if err := kernel.SetStackLimit(cfg.Limits().Stack); err != nil {
		die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindRlimit, Err: err}))
	}

	ctl := cgroup.New(cfg.ControllerPath(), cfg.InstanceName(), cfg.ClearUsage())
	if err := ctl.Join(os.Getpid()); err != nil {
		var childErr *jailerr.ChildError
		if ce, ok := err.(*jailerr.ChildError); ok {
			childErr = ce
		} else {
			childErr = jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err})
		}
		die(resultFile, childErr)
	}
	if err := kernel.UnshareCgroupNamespace(); err != nil {
		die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err}))
	}

	if err := kernel.RemountPrivate(); err != nil {
		die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err}))
	}

	if cfg.NewRoot() != "" {
		if err := kernel.BindNewRootOntoSelf(cfg.NewRoot()); err != nil {
			die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err}))
		}
		for _, m := range cfg.Mounts() {
			if err := kernel.BindMount(cfg.NewRoot(), m); err != nil {
				die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err}))
			}
		}
		if err := kernel.PivotRoot(cfg.NewRoot()); err != nil {
			die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindPivotRoot, Err: err}))
		}
		if err := kernel.MountProc(); err != nil {
			die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err}))
		}
	} else if err := kernel.MountProc(); err != nil {
		die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindMount, Err: err}))
	}

	if cfg.ShareNet() == config.ShareNetUnshare {
		if err := kernel.BringUpLoopback(); err != nil {
			die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindNetlink, Err: err}))
		}
	}

	if !cfg.Interactive() {
		if err := kernel.MoveToOwnProcessGroup(); err != nil {
			die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindProcessGroup, Err: err}))
		}
	}

	if err := kernel.DropAllCapabilities(); err != nil {
		die(resultFile, jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindCapability, Err: err}))
	}

	ffiErr := kernel.ExecCommand(cfg.Command(), append([]string{cfg.Command()}, cfg.Args()...), kernel.ResolveEnv(cfg.Environment()))
	die(resultFile, jailerr.FromFFI(ffiErr))
}

func die(resultFile *os.File, childErr *jailerr.ChildError) {
	_ = protocol.WriteResult(resultFile, false, childErr)
	os.Exit(98)
}
