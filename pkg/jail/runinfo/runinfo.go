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

// Package runinfo holds the post-mortem a completed (or not-so-completed)
// sandboxed run produces: a Verdict together with the resource usage
// measured for it.
package runinfo

import (
	"fmt"
	"time"

	"github.com/judgehost/iajail/pkg/jail/config"
)

// Verdict classifies the outcome of a sandboxed run.
type Verdict int

const (
	// Success means the command ran to completion and exited 0.
	Success Verdict = iota
	// NonZeroExit means the command ran to completion and exited
	// nonzero; Code holds the exit status.
	NonZeroExit
	// KilledBySignal means the command was terminated by a signal;
	// Signal holds which one.
	KilledBySignal
	// WallTimeExceeded means the wall-clock watchdog fired and SIGKILLed
	// the sandboxed child before it finished.
	WallTimeExceeded
	// TimeExceeded means the measured cgroup CPU time reached or passed
	// the configured user_time limit.
	TimeExceeded
	// MemoryExceeded means the cgroup memory controller's recorded peak
	// usage reached or passed the configured memory limit, or the
	// kernel OOM-killed the process for exceeding it.
	MemoryExceeded
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case NonZeroExit:
		return "nonzero-exit"
	case KilledBySignal:
		return "killed-by-signal"
	case WallTimeExceeded:
		return "wall-time-exceeded"
	case TimeExceeded:
		return "time-exceeded"
	case MemoryExceeded:
		return "memory-exceeded"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// RunUsage is the resource usage measured over the lifetime of a
// sandboxed run. The zero value means "nothing measured yet".
type RunUsage struct {
	WallTime time.Duration
	UserTime time.Duration
	Memory   config.SpaceUsage
}

// RunInfo is the tagged result of a sandboxed run: exactly one of
// {Success(Value), NonZeroExit(Code), KilledBySignal(Signal),
// WallTimeExceeded, TimeExceeded, MemoryExceeded}, together with the
// usage measured for it. T is typically struct{} (the supervisor never
// produces a payload, only a verdict), but the type is generic so
// callers that layer their own result on top of the verdict (e.g. a
// judge that also wants the contestant's stdout) are not forced to
// wrap-and-unwrap by hand.
type RunInfo[T any] struct {
	verdict Verdict
	value   T
	code    int
	signal  int
	usage   RunUsage
}

// Of constructs a Success RunInfo carrying value.
func Of[T any](value T) RunInfo[T] {
	return RunInfo[T]{verdict: Success, value: value}
}

// NonZero constructs a NonZeroExit RunInfo.
func NonZero[T any](code int) RunInfo[T] {
	return RunInfo[T]{verdict: NonZeroExit, code: code}
}

// Signaled constructs a KilledBySignal RunInfo.
func Signaled[T any](signal int) RunInfo[T] {
	return RunInfo[T]{verdict: KilledBySignal, signal: signal}
}

// WallTimeLimit constructs a WallTimeExceeded RunInfo.
func WallTimeLimit[T any]() RunInfo[T] {
	return RunInfo[T]{verdict: WallTimeExceeded}
}

// TimeLimit constructs a TimeExceeded RunInfo.
func TimeLimit[T any]() RunInfo[T] {
	return RunInfo[T]{verdict: TimeExceeded}
}

// MemoryLimit constructs a MemoryExceeded RunInfo.
func MemoryLimit[T any]() RunInfo[T] {
	return RunInfo[T]{verdict: MemoryExceeded}
}

// Verdict reports the outcome classification.
func (r RunInfo[T]) Verdict() Verdict { return r.verdict }

// Code returns the exit code; only meaningful when Verdict() == NonZeroExit.
func (r RunInfo[T]) Code() int { return r.code }

// Signal returns the killing signal; only meaningful when
// Verdict() == KilledBySignal.
func (r RunInfo[T]) Signal() int { return r.signal }

// Usage returns the resource usage measured for this run.
func (r RunInfo[T]) Usage() RunUsage { return r.usage }

// Success returns (value, true) iff Verdict() == Success.
func (r RunInfo[T]) Success() (T, bool) {
	return r.value, r.verdict == Success
}

// MergeUsage installs u as this RunInfo's measured usage and upgrades
// the verdict if u shows the run was actually stricter-limited than the
// raw kernel signal suggested: MemoryExceeded wins over a
// KilledBySignal(SIGKILL/SIGSEGV), and TimeExceeded wins whenever
// usage.UserTime has reached the configured limit. It returns the
// (possibly upgraded) RunInfo; the receiver is left untouched.
func (r RunInfo[T]) MergeUsage(u RunUsage, limits config.Limits) RunInfo[T] {
	out := r
	out.usage = u

	if limits.UserTime != nil && u.UserTime >= *limits.UserTime {
		out.verdict = TimeExceeded
		return out
	}

	if r.verdict == KilledBySignal && isMemorySignal(r.signal) && limits.Memory != nil && u.Memory.Bytes() >= limits.Memory.Bytes() {
		out.verdict = MemoryExceeded
		return out
	}

	return out
}

func isMemorySignal(sig int) bool {
	// SIGKILL and SIGSEGV: the two signals the kernel/cgroup OOM killer
	// and a failing brk()/mmap() under memory pressure are observed to
	// raise against the sandboxed child.
	const sigKill, sigSegv = 9, 11
	return sig == sigKill || sig == sigSegv
}

// Map transforms the success payload, leaving any non-Success verdict
// and the measured usage untouched.
func Map[T, U any](r RunInfo[T], f func(T) U) RunInfo[U] {
	out := RunInfo[U]{
		verdict: r.verdict,
		code:    r.code,
		signal:  r.signal,
		usage:   r.usage,
	}
	if r.verdict == Success {
		out.value = f(r.value)
	}
	return out
}

// AndThen chains a RunInfo-producing step onto a Success payload. A
// non-Success RunInfo passes through unchanged (with f never called).
func AndThen[T, U any](r RunInfo[T], f func(T) RunInfo[U]) RunInfo[U] {
	if r.verdict != Success {
		return RunInfo[U]{verdict: r.verdict, code: r.code, signal: r.signal, usage: r.usage}
	}
	out := f(r.value)
	out.usage = r.usage
	return out
}
