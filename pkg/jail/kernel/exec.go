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
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/judgehost/iajail/pkg/jail/config"
	"github.com/judgehost/iajail/pkg/jail/jailerr"
)

// ResolveEnv realizes a config.Environment as the []string envp
// execve(2) expects.
func ResolveEnv(env config.Environment) []string {
	switch env.Kind {
	case config.EnvInherit:
		return os.Environ()
	case config.EnvList:
		out := make([]string, len(env.Pairs))
		for i, p := range env.Pairs {
			out[i] = p.Name + "=" + p.Value
		}
		return out
	default: // config.EnvEmpty
		return []string{}
	}
}

// ExecCommand replaces the calling process image with path, argv, envp.
// On success it never returns (the call that invokes it is the last
// thing the sandboxed child ever runs on its own behalf). On failure it
// returns the FFIError to send back over the result pipe, with Errno
// taken from the real syscall.Errno the kernel reported — not a
// reconstructed or approximated value. A bare command name that the
// PATH lookup does not find involves no failing syscall, so its Errno
// is 0.
func ExecCommand(path string, argv []string, envp []string) *jailerr.FFIError {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return jailerr.ExecError(path, int(errnoOf(err)), err)
	}
	err = syscall.Exec(resolved, argv, envp)
	// syscall.Exec only returns on failure.
	return jailerr.ExecError(path, int(errnoOf(err)), err)
}

func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
