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

// Package protocol implements the supervisor/child and caller/supervisor
// IPC: a half-duplex, length-prefixed result pipe, and the SIGALRM-based
// wall-clock watchdog. The wire format is private to a single invocation
// and is never persisted, so it is a plain stdlib encoding/gob payload
// behind a 8-byte little-endian length prefix rather than a schema'd
// third-party codec — nothing in the teacher's protobuf/gogo-protobuf
// surface is a better fit for a payload that never leaves one process
// pair's lifetime (see DESIGN.md).
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/judgehost/iajail/pkg/jail/jailerr"
)

// envelope is what crosses the result pipe: success, or the child error
// observed before exec. Only one of the two error fields is set.
type envelope struct {
	OK     bool
	FFI    *jailerr.FFIError
	Cgroup *jailerr.CgroupError
}

func init() {
	gob.Register(&jailerr.FFIError{})
	gob.Register(&jailerr.CgroupError{})
}

// WriteResult writes one length-prefixed result record: ok=true for a
// successful exec handoff, or ok=false with the observed ChildError.
// The pipeline only ever writes ok=false: a successful exec replaces
// the child's process image before it could write anything, and
// ReadResult reads the resulting empty pipe as success.
func WriteResult(w io.Writer, ok bool, childErr *jailerr.ChildError) error {
	env := envelope{OK: ok}
	if childErr != nil {
		env.FFI = childErr.FFI
		env.Cgroup = childErr.Cgroup
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("protocol: encode result: %w", err)
	}

	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("protocol: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// ReadResult reads exactly one length-prefixed result record, if the
// child wrote one at all. A successful exec replaces the child's
// process image before it ever reaches WriteResult, so the expected
// shape of a successful run is an entirely empty pipe, closed only
// when the exec'd program itself later exits: that clean, zero-byte
// EOF is reported as ok=true with no ChildError, and the caller must
// build the verdict from the waitpid status instead. A *partial*
// read of the length prefix or payload (some bytes arrived, then the
// pipe closed) is a genuine SupervisorProcessDiedError, since the only
// way to observe a partial record is the child/supervisor exiting
// mid-write. A complete but unparseable payload is a SerializationError.
func ReadResult(r io.Reader) (ok bool, childErr *jailerr.ChildError, err error) {
	var lenPrefix [8]byte
	if n, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return true, nil, nil
		}
		return false, nil, &jailerr.SupervisorProcessDiedError{Reason: fmt.Sprintf("short read of result length prefix: %v", err)}
	}
	n := binary.LittleEndian.Uint64(lenPrefix[:])

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return false, nil, &jailerr.SupervisorProcessDiedError{Reason: fmt.Sprintf("short read of result payload: %v", err)}
	}

	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&env); err != nil {
		return false, nil, &jailerr.SerializationError{Err: err}
	}

	if env.OK {
		return true, nil, nil
	}
	return false, &jailerr.ChildError{FFI: env.FFI, Cgroup: env.Cgroup}, nil
}
