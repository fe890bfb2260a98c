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

package runinfo

import (
	"testing"
	"time"

	"github.com/judgehost/iajail/pkg/jail/config"
)

func TestSuccessRoundTrip(t *testing.T) {
	r := Of(42)
	v, ok := r.Success()
	if !ok || v != 42 {
		t.Fatalf("Success() = (%v, %v), want (42, true)", v, ok)
	}
	if r.Verdict() != Success {
		t.Fatalf("Verdict() = %v, want Success", r.Verdict())
	}
}

func TestNonSuccessHasZeroValue(t *testing.T) {
	r := NonZero[int](7)
	if v, ok := r.Success(); ok || v != 0 {
		t.Fatalf("Success() = (%v, %v) for a NonZeroExit RunInfo, want (0, false)", v, ok)
	}
	if r.Code() != 7 {
		t.Fatalf("Code() = %d, want 7", r.Code())
	}
}

func TestMapTransformsOnlySuccess(t *testing.T) {
	r := Map(Of(2), func(n int) int { return n * 10 })
	if v, _ := r.Success(); v != 20 {
		t.Fatalf("Map(Success) = %v, want 20", v)
	}

	nonSuccess := Map(NonZero[int](1), func(n int) int { return n * 10 })
	if nonSuccess.Verdict() != NonZeroExit {
		t.Fatalf("Map should not change a non-Success verdict, got %v", nonSuccess.Verdict())
	}
}

func TestAndThenChainsOnlyOnSuccess(t *testing.T) {
	r := AndThen(Of(1), func(n int) RunInfo[string] { return Of("ok") })
	if v, ok := r.Success(); !ok || v != "ok" {
		t.Fatalf("AndThen(Success) = (%v, %v), want (ok, true)", v, ok)
	}

	skipped := AndThen(NonZero[int](3), func(n int) RunInfo[string] { return Of("unreachable") })
	if skipped.Verdict() != NonZeroExit || skipped.Code() != 3 {
		t.Fatalf("AndThen should pass a non-Success RunInfo through unchanged, got verdict=%v code=%d", skipped.Verdict(), skipped.Code())
	}
}

func TestMergeUsageUpgradesToTimeExceeded(t *testing.T) {
	limit := time.Second
	r := Of(struct{}{}).MergeUsage(RunUsage{UserTime: 2 * time.Second}, config.Limits{UserTime: &limit})
	if r.Verdict() != TimeExceeded {
		t.Fatalf("MergeUsage should upgrade to TimeExceeded, got %v", r.Verdict())
	}
}

func TestMergeUsageUpgradesSigkillToMemoryExceeded(t *testing.T) {
	memLimit := config.FromMebibytes(10)
	r := Signaled[struct{}](9).MergeUsage(RunUsage{Memory: config.FromMebibytes(20)}, config.Limits{Memory: &memLimit})
	if r.Verdict() != MemoryExceeded {
		t.Fatalf("MergeUsage should upgrade a SIGKILL to MemoryExceeded when usage reached the limit, got %v", r.Verdict())
	}
}

func TestMergeUsageLeavesOrdinarySignalAlone(t *testing.T) {
	r := Signaled[struct{}](2).MergeUsage(RunUsage{}, config.Limits{})
	if r.Verdict() != KilledBySignal || r.Signal() != 2 {
		t.Fatalf("MergeUsage should not reclassify SIGINT, got verdict=%v signal=%d", r.Verdict(), r.Signal())
	}
}
