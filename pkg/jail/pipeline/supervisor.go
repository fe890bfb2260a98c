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
	"os/exec"
	"syscall"
	"time"

	"github.com/judgehost/iajail/pkg/log"

	"github.com/judgehost/iajail/pkg/jail/cgroup"
	"github.com/judgehost/iajail/pkg/jail/cleanup"
	"github.com/judgehost/iajail/pkg/jail/jailerr"
	"github.com/judgehost/iajail/pkg/jail/kernel"
	"github.com/judgehost/iajail/pkg/jail/protocol"
	"github.com/judgehost/iajail/pkg/jail/reexec"
)

const supervisorEntryPoint = "judgebox-supervisor"

func init() {
	reexec.Register(supervisorEntryPoint, supervisorMain)
}

// The fds the caller sets up as ExtraFiles before starting the
// supervisor, in order.
const (
	supervisorRequestFD = 3
	supervisorReportFD  = 4
)

// supervisorMain is the outer clone's entire body. It owns the cgroup
// leaf's lifetime (create before the child starts, destroy after the
// child and its usage have both been observed), starts the sandboxed
// child as its own direct exec.Cmd child (so Cmd.Wait reports the
// child's real exit status with no extra channel needed), runs the
// wall-clock watchdog, and reports the settled outcome back to the
// caller. It always calls os.Exit itself; it never returns to a normal
// main.
func supervisorMain() {
	requestFile := os.NewFile(uintptr(supervisorRequestFD), "request")
	reportFile := os.NewFile(uintptr(supervisorReportFD), "report")

	var req supervisorRequest
	if err := readFramed(requestFile, &req); err != nil {
		os.Exit(96)
	}

	if err := kernel.KillOnParentDeath(req.CallerPid); err != nil {
		log.Warningf("kill-on-parent-death setup failed: %v", err)
	}
	if err := kernel.WriteUidGidMaps(req.HostUID, req.HostGID); err != nil {
		sendReport(reportFile, report{OK: false, ChildErr: jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindUidGidMap, Err: err})})
		os.Exit(95)
	}

	cfg, err := req.Config.toConfig()
	if err != nil {
		sendReport(reportFile, report{OK: false, ChildErr: jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindClone, Err: err})})
		os.Exit(95)
	}

	ctl := cgroup.New(cfg.ControllerPath(), cfg.InstanceName(), cfg.ClearUsage())
	if err := ctl.Create(); err != nil {
		sendReport(reportFile, report{OK: false, ChildErr: err.(*jailerr.ChildError)})
		os.Exit(95)
	}
	// teardown collects every host-visible resource acquired from here
	// on, in acquisition order, so a failure on any later step tears
	// everything back down with one call instead of a hand-maintained
	// chain of early-exit cleanup. Released once the child has started
	// successfully and ownership of what's left (the cgroup leaf, the
	// parent's pipe ends) passes to the steady-state wait below.
	teardown := cleanup.Make(func() { _ = ctl.Destroy() })
	defer teardown.Clean()

	if err := ctl.Configure(cfg.Limits()); err != nil {
		teardown.Clean()
		sendReport(reportFile, report{OK: false, ChildErr: err.(*jailerr.ChildError)})
		os.Exit(95)
	}

	childConfigR, childConfigW, err := os.Pipe()
	if err != nil {
		teardown.Clean()
		os.Exit(95)
	}
	teardown.Add(func() { childConfigR.Close(); childConfigW.Close() })

	childResultR, childResultW, err := os.Pipe()
	if err != nil {
		teardown.Clean()
		os.Exit(95)
	}
	teardown.Add(func() { childResultR.Close(); childResultW.Close() })

	childCmd := reexec.Command(childEntryPoint)
	childCmd.ExtraFiles = []*os.File{childConfigR, childResultW}
	childCmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: kernel.InnerCloneFlags(req.UnshareNet),
		Pdeathsig:  syscall.SIGKILL,
	}

	if err := childCmd.Start(); err != nil {
		teardown.Clean()
		sendReport(reportFile, report{OK: false, ChildErr: jailerr.FromFFI(&jailerr.FFIError{Kind: jailerr.KindClone, Err: err})})
		os.Exit(95)
	}
	teardown.Release()
	childConfigR.Close()
	childResultW.Close()

	if err := writeFramed(childConfigW, req.Config); err != nil {
		log.Warningf("write child config: %v", err)
	}
	childConfigW.Close()

	start := time.Now()
	waitCh := make(chan error, 1)
	go func() { waitCh <- childCmd.Wait() }()

	var watchdog *protocol.Watchdog
	if cfg.Limits().WallTime != nil {
		watchdog = protocol.Arm(*cfg.Limits().WallTime)
		defer watchdog.Disarm()
	}

	var (
		waitErr       error
		watchdogFired bool
	)
	if watchdog != nil {
		select {
		case waitErr = <-waitCh:
		case <-watchdog.Fired():
			watchdogFired = true
			_ = childCmd.Process.Kill()
			waitErr = <-waitCh
		}
	} else {
		waitErr = <-waitCh
	}
	elapsed := time.Since(start)

	ok, childErr, readErr := protocol.ReadResult(childResultR)
	if readErr != nil {
		childErr = jailerr.FromCgroup(&jailerr.CgroupError{Op: jailerr.OpControllerUnavailable, Err: readErr})
		ok = false
	}

	usage, usageErr := ctl.Usage()
	if usageErr != nil {
		log.Warningf("cgroup usage read failed: %v", usageErr)
	}
	if err := ctl.Destroy(); err != nil {
		log.Warningf("cgroup teardown failed: %v", err)
	}

	rep := report{
		WallTime:      elapsed,
		CgroupUsage:   usage,
		WatchdogFired: watchdogFired,
	}
	if watchdogFired {
		rep.OK = true
		rep.Signal = int(syscall.SIGKILL)
	} else if !ok {
		rep.OK = false
		rep.ChildErr = childErr
	} else {
		rep.OK = true
		if exitErr, isExit := waitErr.(*exec.ExitError); isExit {
			if ws, isWS := exitErr.Sys().(syscall.WaitStatus); isWS {
				if ws.Signaled() {
					rep.Signal = int(ws.Signal())
				} else {
					rep.ExitCode = ws.ExitStatus()
				}
			}
		} else if waitErr == nil {
			rep.ExitCode = 0
		}
	}

	sendReport(reportFile, rep)
	os.Exit(0)
}

func sendReport(f *os.File, rep report) {
	if err := writeFramed(f, rep); err != nil {
		log.Warningf("write supervisor report: %v", err)
	}
}
