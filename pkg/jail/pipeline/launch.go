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
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/judgehost/iajail/pkg/jail/config"
	"github.com/judgehost/iajail/pkg/jail/jailerr"
	"github.com/judgehost/iajail/pkg/jail/kernel"
	"github.com/judgehost/iajail/pkg/jail/reexec"
	"github.com/judgehost/iajail/pkg/jail/runinfo"
)

// Handle is a started sandboxed run. Wait blocks until the supervisor
// generation has settled and reports the outcome.
type Handle struct {
	cmd     *exec.Cmd
	reportR *os.File
	limits  config.Limits
}

// Launch starts the supervisor generation for cfg and returns
// immediately; call Wait on the returned Handle to block for the
// outcome.
func Launch(cfg *config.Config) (*Handle, error) {
	reportR, reportW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: create report pipe: %w", err)
	}
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: create request pipe: %w", err)
	}

	cmd := reexec.Command(supervisorEntryPoint)
	cmd.ExtraFiles = []*os.File{reqR, reportW}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: uintptr(kernel.OuterCloneFlags),
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start supervisor: %w", err)
	}
	reqR.Close()
	reportW.Close()

	req := supervisorRequest{
		Config:     toWire(cfg),
		CallerPid:  os.Getpid(),
		HostUID:    os.Getuid(),
		HostGID:    os.Getgid(),
		UnshareNet: cfg.ShareNet() == config.ShareNetUnshare,
	}
	if err := writeFramed(reqW, req); err != nil {
		reqW.Close()
		return nil, fmt.Errorf("pipeline: send supervisor request: %w", err)
	}
	reqW.Close()

	return &Handle{cmd: cmd, reportR: reportR, limits: cfg.Limits()}, nil
}

// Wait blocks until the supervisor has reported the settled outcome of
// the run and returns it as a RunInfo.
func (h *Handle) Wait() (runinfo.RunInfo[struct{}], error) {
	var rep report
	readErr := readFramed(h.reportR, &rep)
	waitErr := h.cmd.Wait()

	if readErr != nil {
		return runinfo.RunInfo[struct{}]{}, &jailerr.SupervisorProcessDiedError{
			Reason: fmt.Sprintf("read supervisor report: %v (supervisor wait: %v)", readErr, waitErr),
		}
	}

	usage := runinfo.RunUsage{
		WallTime: rep.WallTime,
		UserTime: rep.CgroupUsage.UserTime,
		Memory:   rep.CgroupUsage.Memory,
	}

	var out runinfo.RunInfo[struct{}]
	switch {
	case rep.WatchdogFired:
		out = runinfo.WallTimeLimit[struct{}]()
	case !rep.OK:
		return runinfo.RunInfo[struct{}]{}, rep.ChildErr
	case rep.Signal != 0:
		out = runinfo.Signaled[struct{}](rep.Signal)
	case rep.ExitCode != 0:
		out = runinfo.NonZero[struct{}](rep.ExitCode)
	default:
		out = runinfo.Of(struct{}{})
	}

	return out.MergeUsage(usage, h.limits), nil
}
