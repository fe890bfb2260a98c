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

// Package pipeline wires together package config, kernel, cgroup,
// protocol and runinfo into the three-generation launch described in
// spec.md §4: caller, supervisor (outer clone: new mount+user
// namespace), sandboxed child (inner clone: new pid namespace, and net
// namespace when requested).
//
// Every generation past the caller is a real re-exec of the running
// binary (package reexec), since Go cannot safely fork() without an
// immediate exec() once the runtime has started more than one OS
// thread. Config crosses each re-exec boundary over an inherited pipe
// as a gob-encoded configWire, because *config.Config's fields are
// deliberately unexported and cannot be gob-encoded directly.
package pipeline

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/judgehost/iajail/pkg/jail/cgroup"
	"github.com/judgehost/iajail/pkg/jail/config"
	"github.com/judgehost/iajail/pkg/jail/jailerr"
)

// configWire is the exported mirror of config.Config that actually
// crosses a re-exec boundary.
type configWire struct {
	Command string
	Args    []string

	EnvKind  config.EnvironmentKind
	EnvPairs []config.EnvPair

	NewRoot string
	Mounts  []config.Mount

	ShareNet config.ShareNet

	RedirectStdin  string
	RedirectStdout string
	RedirectStderr string
	SwapRedirects  bool

	WallTime *time.Duration
	UserTime *time.Duration
	Memory   *config.SpaceUsage
	Stack    *config.SpaceUsage
	Pids     *int

	InstanceName   string
	ControllerPath config.ControllerPath
	ClearUsage     bool
	Interactive    bool
}

func toWire(cfg *config.Config) configWire {
	env := cfg.Environment()
	limits := cfg.Limits()
	return configWire{
		Command:        cfg.Command(),
		Args:           cfg.Args(),
		EnvKind:        env.Kind,
		EnvPairs:       env.Pairs,
		NewRoot:        cfg.NewRoot(),
		Mounts:         cfg.Mounts(),
		ShareNet:       cfg.ShareNet(),
		RedirectStdin:  cfg.RedirectStdin(),
		RedirectStdout: cfg.RedirectStdout(),
		RedirectStderr: cfg.RedirectStderr(),
		SwapRedirects:  cfg.SwapRedirects(),
		WallTime:       limits.WallTime,
		UserTime:       limits.UserTime,
		Memory:         limits.Memory,
		Stack:          limits.Stack,
		Pids:           limits.Pids,
		InstanceName:   cfg.InstanceName(),
		ControllerPath: cfg.ControllerPath(),
		ClearUsage:     cfg.ClearUsage(),
		Interactive:    cfg.Interactive(),
	}
}

// toConfig rebuilds a *config.Config from the wire form by driving the
// same Builder every caller uses, so the reconstructed Config carries
// the same validation and deep-copy guarantees as one built directly.
func (w configWire) toConfig() (*config.Config, error) {
	b := config.NewBuilder(w.Command).
		Args(w.Args...).
		NewRoot(w.NewRoot).
		ShareNet(w.ShareNet).
		RedirectStdin(w.RedirectStdin).
		RedirectStdout(w.RedirectStdout).
		RedirectStderr(w.RedirectStderr).
		SwapRedirects(w.SwapRedirects).
		InstanceName(w.InstanceName).
		ControllerPath(w.ControllerPath).
		ClearUsage(w.ClearUsage).
		Interactive(w.Interactive).
		Limits(config.Limits{
			WallTime: w.WallTime,
			UserTime: w.UserTime,
			Memory:   w.Memory,
			Stack:    w.Stack,
			Pids:     w.Pids,
		})

	switch w.EnvKind {
	case config.EnvEmpty:
		b = b.Environment(config.Empty())
	case config.EnvList:
		b = b.Environment(config.List(w.EnvPairs...))
	default:
		b = b.Environment(config.Inherit())
	}

	for _, m := range w.Mounts {
		b = b.AddMount(m)
	}

	return b.Build()
}

// supervisorRequest is everything the caller hands the supervisor
// generation: the policy, plus the two pieces of host state the
// supervisor cannot observe itself once namespaced (who its real
// parent was, so KillOnParentDeath can close the TOCTOU window; and
// which host uid/gid to map to 0 inside the fresh user namespace).
type supervisorRequest struct {
	Config     configWire
	CallerPid  int
	HostUID    int
	HostGID    int
	UnshareNet bool
}

// report is what the supervisor sends back to the caller once the
// sandboxed run has settled: either a pre-exec ChildError, or the real
// exit status/signal of the generation-3 process together with the
// cgroup usage the supervisor measured for it.
type report struct {
	OK             bool
	ChildErr       *jailerr.ChildError
	ExitCode       int
	Signal         int
	WallTime       time.Duration
	CgroupUsage    cgroup.Usage
	WatchdogFired  bool
}

func init() {
	gob.Register(&jailerr.FFIError{})
	gob.Register(&jailerr.CgroupError{})
}

func writeFramed(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("pipeline: encode: %w", err)
	}
	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("pipeline: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("pipeline: write payload: %w", err)
	}
	return nil
}

func readFramed(r io.Reader, v interface{}) error {
	var lenPrefix [8]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("pipeline: read length prefix: %w", err)
	}
	n := binary.LittleEndian.Uint64(lenPrefix[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("pipeline: read payload: %w", err)
	}
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}
