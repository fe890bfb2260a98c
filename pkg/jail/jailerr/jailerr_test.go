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

package jailerr

import (
	"errors"
	"testing"
)

func TestExecErrorUnwrapsToUnderlyingErrno(t *testing.T) {
	underlying := errors.New("no such file or directory")
	err := ExecError("/missing", 2, underlying)

	if !errors.Is(err, underlying) {
		t.Fatal("ExecError should unwrap to the underlying error")
	}
	if err.Errno != 2 {
		t.Fatalf("Errno = %d, want 2", err.Errno)
	}
}

func TestChildErrorPrefersFFIOverCgroup(t *testing.T) {
	ce := &ChildError{
		FFI:    ExecError("/bin/true", 13, errors.New("permission denied")),
		Cgroup: &CgroupError{Op: OpWrite, File: "cgroup.procs", Err: errors.New("boom")},
	}
	if ce.Error() == "" {
		t.Fatal("ChildError.Error() returned empty string")
	}
	if !errors.Is(ce, ce.FFI) {
		t.Fatal("ChildError should unwrap to its FFI error when set")
	}
}

func TestFromCgroupWraps(t *testing.T) {
	cgErr := &CgroupError{Op: OpWrite, File: "memory.limit_in_bytes", Err: errors.New("boom")}
	ce := FromCgroup(cgErr)
	if ce.Cgroup != cgErr {
		t.Fatal("FromCgroup should store the given CgroupError")
	}
	if !errors.Is(ce, cgErr) {
		t.Fatal("ChildError should unwrap to its Cgroup error when set")
	}
}
