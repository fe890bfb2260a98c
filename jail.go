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

// Package iajail is a hardened Linux process sandbox: given a Config,
// it launches the target command under pid/mount/user/net/cgroup
// isolation and reports a precise post-mortem.
//
// Callers embedding this package must call Init at the very top of
// their own main, before anything else runs:
//
//	func main() {
//		if iajail.Init() {
//			return
//		}
//		... normal program ...
//	}
//
// Init lets the supervisor and sandboxed-child generations, both of
// which are just the same binary re-executed under a different argv[0],
// dispatch to their own entry points instead of falling through to the
// caller's main.
package iajail

import (
	"github.com/judgehost/iajail/pkg/jail/config"
	"github.com/judgehost/iajail/pkg/jail/pipeline"
	"github.com/judgehost/iajail/pkg/jail/reexec"
	"github.com/judgehost/iajail/pkg/jail/runinfo"
)

// Init must be called first in main; see the package doc.
func Init() bool { return reexec.Init() }

// Handle is a started sandboxed run.
type Handle struct {
	inner *pipeline.Handle
}

// Spawn launches cfg's command under sandbox isolation and returns
// immediately; call Wait on the returned Handle to block for the
// outcome.
func Spawn(cfg *config.Config) (*Handle, error) {
	h, err := pipeline.Launch(cfg)
	if err != nil {
		return nil, err
	}
	return &Handle{inner: h}, nil
}

// Wait blocks until the sandboxed run has settled (exited, was
// signaled, or hit a configured limit) and returns its post-mortem.
func (h *Handle) Wait() (runinfo.RunInfo[struct{}], error) {
	return h.inner.Wait()
}

// Run is Spawn followed immediately by Wait, for the common case of a
// caller that has no other work to interleave with the sandboxed run.
func Run(cfg *config.Config) (runinfo.RunInfo[struct{}], error) {
	h, err := Spawn(cfg)
	if err != nil {
		return runinfo.RunInfo[struct{}]{}, err
	}
	return h.Wait()
}
