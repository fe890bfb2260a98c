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

// Package config describes the immutable policy a sandboxed run is
// launched under: the command to execute, the namespaces and mounts it
// sees, its fd redirections, and the resource limits it is held to.
//
// A Config is built once via Builder and is never mutated afterwards;
// Builder.Build deep-copies every slice-typed field so later mutation
// of the Builder (or of slices the caller passed in) cannot reach an
// already-built Config.
package config

import (
	"fmt"
	"time"

	"github.com/mohae/deepcopy"
)

// ShareNet selects whether a sandboxed run keeps the caller's network
// namespace or gets a fresh, empty one.
type ShareNet int

const (
	// ShareNetShare runs the command in the caller's network namespace.
	ShareNetShare ShareNet = iota
	// ShareNetUnshare gives the command a fresh CLONE_NEWNET namespace.
	ShareNetUnshare
)

func (s ShareNet) String() string {
	if s == ShareNetUnshare {
		return "unshare"
	}
	return "share"
}

// EnvironmentKind selects how a sandboxed run's environment variables
// are populated.
type EnvironmentKind int

const (
	// EnvInherit preserves the caller's environment unchanged.
	EnvInherit EnvironmentKind = iota
	// EnvEmpty runs the command with no environment variables at all.
	EnvEmpty
	// EnvList replaces the environment with an explicit, ordered list
	// of pairs, including the case where that list is empty.
	EnvList
)

// EnvPair is a single environment variable assignment.
type EnvPair struct {
	Name  string
	Value string
}

// Environment is the closed sum {Inherit, Empty, EnvList(pairs)}. The
// zero value is EnvInherit.
type Environment struct {
	Kind  EnvironmentKind
	Pairs []EnvPair
}

// Inherit returns an Environment that preserves the caller's environment.
func Inherit() Environment { return Environment{Kind: EnvInherit} }

// Empty returns an Environment with no variables.
func Empty() Environment { return Environment{Kind: EnvEmpty} }

// List returns an Environment that replaces the caller's environment
// with exactly the given pairs, in order, even if pairs is empty.
func List(pairs ...EnvPair) Environment {
	return Environment{Kind: EnvList, Pairs: pairs}
}

// SpaceUsage wraps a byte count. Constructors are provided for both
// decimal (K/M/G = 10^3/10^6/10^9) and binary (Ki/Mi/Gi = 2^10/2^20/2^30)
// units; String reports the largest binary unit that divides the value
// evenly, and only if none does, the largest decimal unit that does.
type SpaceUsage uint64

// FromBytes wraps a raw byte count.
func FromBytes(n uint64) SpaceUsage { return SpaceUsage(n) }

// FromKilobytes wraps n*1000 bytes.
func FromKilobytes(n uint64) SpaceUsage { return FromBytes(n * 1_000) }

// FromMegabytes wraps n*1000^2 bytes.
func FromMegabytes(n uint64) SpaceUsage { return FromKilobytes(n * 1_000) }

// FromGigabytes wraps n*1000^3 bytes.
func FromGigabytes(n uint64) SpaceUsage { return FromMegabytes(n * 1_000) }

// FromKibibytes wraps n*1024 bytes.
func FromKibibytes(n uint64) SpaceUsage { return FromBytes(n * 1024) }

// FromMebibytes wraps n*1024^2 bytes.
func FromMebibytes(n uint64) SpaceUsage { return FromKibibytes(n * 1024) }

// FromGibibytes wraps n*1024^3 bytes.
func FromGibibytes(n uint64) SpaceUsage { return FromMebibytes(n * 1024) }

// Bytes returns the raw byte count.
func (s SpaceUsage) Bytes() uint64 { return uint64(s) }

// String renders the value in the largest binary unit (Gi/Mi/Ki) that
// divides it evenly; only when no binary unit does is the largest
// evenly dividing decimal unit (G/M/K) used, so 2,000,000,000 bytes
// renders as "1953125 KiB", not "2 GB".
func (s SpaceUsage) String() string {
	n := uint64(s)
	switch {
	case n != 0 && n%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", n>>30)
	case n != 0 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n != 0 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	case n != 0 && n%1_000_000_000 == 0:
		return fmt.Sprintf("%d GB", n/1_000_000_000)
	case n != 0 && n%1_000_000 == 0:
		return fmt.Sprintf("%d MB", n/1_000_000)
	case n != 0 && n%1_000 == 0:
		return fmt.Sprintf("%d KB", n/1_000)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Limits holds the five independently optional resource caps. A nil
// field means "no limit enforced for this dimension".
type Limits struct {
	WallTime *time.Duration
	UserTime *time.Duration
	Memory   *SpaceUsage
	Stack    *SpaceUsage
	Pids     *int
}

// Duration returns a pointer to d, for populating Limits fields inline.
func Duration(d time.Duration) *time.Duration { return &d }

// Usage returns a pointer to u, for populating Limits fields inline.
func Usage(u SpaceUsage) *SpaceUsage { return &u }

// Count returns a pointer to n, for populating Limits.Pids inline.
func Count(n int) *int { return &n }

// MountOptions controls how a Mount is remounted inside the new root.
// The zero value is NOT the default; use NewMountOptions for that.
type MountOptions struct {
	ReadOnly bool
	Dev      bool
	Exec     bool
}

// NewMountOptions returns the spec default: read-only, no device nodes,
// no execution.
func NewMountOptions() MountOptions {
	return MountOptions{ReadOnly: true}
}

// Mount bind-mounts Source (a host path) at Destination (a path
// relative to the sandbox's new root).
type Mount struct {
	Source      string
	Destination string
	Options     MountOptions
}

// ControllerPath names the parent cgroup v1 directory, per controller,
// under which this invocation's leaf cgroup is created. An empty string
// disables that controller.
type ControllerPath struct {
	CPUAcct string
	Memory  string
	Pids    string
}

// Config is the immutable policy a sandboxed run is launched under.
// Build one with Builder; never construct it directly from another
// package, so Builder.Build's deep-copy guarantee cannot be bypassed.
type Config struct {
	command string
	args    []string

	environment Environment

	newRoot string
	mounts  []Mount

	shareNet ShareNet

	redirectStdin  string
	redirectStdout string
	redirectStderr string
	swapRedirects  bool

	limits Limits

	instanceName   string
	controllerPath ControllerPath
	clearUsage     bool
	interactive    bool
}

func (c *Config) Command() string             { return c.command }
func (c *Config) Args() []string              { return c.args }
func (c *Config) Environment() Environment     { return c.environment }
func (c *Config) NewRoot() string              { return c.newRoot }
func (c *Config) Mounts() []Mount              { return c.mounts }
func (c *Config) ShareNet() ShareNet           { return c.shareNet }
func (c *Config) RedirectStdin() string        { return c.redirectStdin }
func (c *Config) RedirectStdout() string       { return c.redirectStdout }
func (c *Config) RedirectStderr() string       { return c.redirectStderr }
func (c *Config) SwapRedirects() bool          { return c.swapRedirects }
func (c *Config) Limits() Limits               { return c.limits }
func (c *Config) InstanceName() string         { return c.instanceName }
func (c *Config) ControllerPath() ControllerPath { return c.controllerPath }
func (c *Config) ClearUsage() bool             { return c.clearUsage }
func (c *Config) Interactive() bool            { return c.interactive }

// Builder accumulates Config fields before a single, validated Build.
type Builder struct {
	cfg Config
	err error
}

// NewBuilder starts a Builder for the given command path. The path is
// resolved by exec_command inside the new root: it may be absolute or
// PATH-resolvable.
func NewBuilder(command string) *Builder {
	b := &Builder{}
	b.cfg.command = command
	b.cfg.environment = Inherit()
	b.cfg.interactive = true
	return b
}

func (b *Builder) Args(args ...string) *Builder {
	b.cfg.args = args
	return b
}

func (b *Builder) Environment(env Environment) *Builder {
	b.cfg.environment = env
	return b
}

func (b *Builder) NewRoot(path string) *Builder {
	b.cfg.newRoot = path
	return b
}

func (b *Builder) AddMount(m Mount) *Builder {
	b.cfg.mounts = append(b.cfg.mounts, m)
	return b
}

func (b *Builder) ShareNet(s ShareNet) *Builder {
	b.cfg.shareNet = s
	return b
}

func (b *Builder) RedirectStdin(path string) *Builder {
	b.cfg.redirectStdin = path
	return b
}

func (b *Builder) RedirectStdout(path string) *Builder {
	b.cfg.redirectStdout = path
	return b
}

func (b *Builder) RedirectStderr(path string) *Builder {
	b.cfg.redirectStderr = path
	return b
}

// SwapRedirects, when true, redirects stdout before stdin so a pair of
// sandboxed peers exchanging data over FIFOs can both progress past
// their blocking open() calls. It is a pairing contract, not a
// performance toggle: only set it on one half of such a pair.
func (b *Builder) SwapRedirects(swap bool) *Builder {
	b.cfg.swapRedirects = swap
	return b
}

func (b *Builder) Limits(l Limits) *Builder {
	b.cfg.limits = l
	return b
}

func (b *Builder) InstanceName(name string) *Builder {
	b.cfg.instanceName = name
	return b
}

func (b *Builder) ControllerPath(p ControllerPath) *Builder {
	b.cfg.controllerPath = p
	return b
}

func (b *Builder) ClearUsage(clear bool) *Builder {
	b.cfg.clearUsage = clear
	return b
}

// Interactive, when false, moves the child to its own process group
// after setup so it cannot signal its supervisor by sending to group 0.
func (b *Builder) Interactive(interactive bool) *Builder {
	b.cfg.interactive = interactive
	return b
}

// Build validates and returns a Config that owns independent copies of
// every slice-typed field, so later mutation of the Builder (or of
// slices/pairs the caller retains a reference to) can never reach it.
func (b *Builder) Build() (*Config, error) {
	if b.cfg.command == "" {
		return nil, fmt.Errorf("config: command is required")
	}
	if b.cfg.limits.Pids != nil && *b.cfg.limits.Pids < 1 {
		return nil, fmt.Errorf("config: pids limit must be at least 1, got %d", *b.cfg.limits.Pids)
	}

	// Deep-copy every slice/pointer-typed field individually — not the
	// whole struct, since Config's fields are unexported and the
	// reflection-based deepcopy.Copy cannot Set an unexported field of
	// an arbitrary containing struct. Its element types (Mount, EnvPair)
	// are plain exported-field structs, so copying at the slice level
	// is sufficient to fully detach the result from the Builder.
	out := b.cfg
	if b.cfg.args != nil {
		out.args = deepcopy.Copy(b.cfg.args).([]string)
	}
	if b.cfg.mounts != nil {
		out.mounts = deepcopy.Copy(b.cfg.mounts).([]Mount)
	}
	if b.cfg.environment.Pairs != nil {
		out.environment.Pairs = deepcopy.Copy(b.cfg.environment.Pairs).([]EnvPair)
	}
	out.limits = copyLimits(b.cfg.limits)

	return &out, nil
}

func copyLimits(l Limits) Limits {
	var out Limits
	if l.WallTime != nil {
		out.WallTime = Duration(*l.WallTime)
	}
	if l.UserTime != nil {
		out.UserTime = Duration(*l.UserTime)
	}
	if l.Memory != nil {
		out.Memory = Usage(*l.Memory)
	}
	if l.Stack != nil {
		out.Stack = Usage(*l.Stack)
	}
	if l.Pids != nil {
		out.Pids = Count(*l.Pids)
	}
	return out
}
