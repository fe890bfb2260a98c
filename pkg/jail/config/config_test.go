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

package config

import (
	"testing"
	"time"
)

func TestBuilderRequiresCommand(t *testing.T) {
	if _, err := NewBuilder("").Build(); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestBuilderRejectsNonPositivePidsLimit(t *testing.T) {
	zero := 0
	_, err := NewBuilder("/bin/true").Limits(Limits{Pids: &zero}).Build()
	if err == nil {
		t.Fatal("expected error for pids limit < 1")
	}
}

func TestBuildDeepCopiesSlices(t *testing.T) {
	args := []string{"a", "b"}
	b := NewBuilder("/bin/true").Args(args...)
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	args[0] = "mutated"
	if cfg.Args()[0] != "a" {
		t.Fatalf("Config.Args was not deep-copied: got %q", cfg.Args()[0])
	}
}

func TestBuildDeepCopiesLimits(t *testing.T) {
	d := time.Second
	b := NewBuilder("/bin/true").Limits(Limits{WallTime: &d})
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	d = 2 * time.Second
	if *cfg.Limits().WallTime != time.Second {
		t.Fatalf("Config.Limits().WallTime was not deep-copied: got %v", *cfg.Limits().WallTime)
	}
}

func TestEnvironmentListDistinguishesEmptyFromInherit(t *testing.T) {
	empty := List()
	if empty.Kind != EnvList {
		t.Fatalf("List() should report EnvList, got %v", empty.Kind)
	}
	if empty.Pairs != nil && len(empty.Pairs) != 0 {
		t.Fatalf("List() with no pairs should be empty, got %v", empty.Pairs)
	}

	inherit := Inherit()
	if inherit.Kind != EnvInherit {
		t.Fatalf("Inherit() should report EnvInherit, got %v", inherit.Kind)
	}
}

func TestSpaceUsageString(t *testing.T) {
	cases := []struct {
		usage SpaceUsage
		want  string
	}{
		{FromGibibytes(2), "2 GiB"},
		{FromMebibytes(5), "5 MiB"},
		{FromBytes(3), "3 B"},
		{FromMegabytes(7), "7 MB"},
	}
	for _, c := range cases {
		if got := c.usage.String(); got != c.want {
			t.Errorf("SpaceUsage(%d).String() = %q, want %q", c.usage.Bytes(), got, c.want)
		}
	}
}

func TestNewMountOptionsDefaultsToReadOnlyNoDevNoExec(t *testing.T) {
	opts := NewMountOptions()
	if !opts.ReadOnly || opts.Dev || opts.Exec {
		t.Fatalf("NewMountOptions() = %+v, want read-only/no-dev/no-exec", opts)
	}
}
