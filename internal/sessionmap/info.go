// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package sessionmap

const (
	sessionInfoStructV    = 1
	sessionInfoCompatV    = 1
	sessionInfoMinDecodeV = 1
)

// SessionInfo is the persisted payload of a Session: everything that is
// written into the OMAP value (modern format) or the legacy blob, and
// nothing that is purely runtime bookkeeping (state, recall counters,
// request list).
type SessionInfo struct {
	Inst              EntityInst
	PreallocInos      map[uint64]struct{}
	UsedInos          map[uint64]struct{}
	CompletedRequests map[uint64]struct{}
	ClientMetadata    map[string]string
}

// NewSessionInfo returns a SessionInfo with initialized, empty sets, ready
// for use by a freshly created Session.
func NewSessionInfo(inst EntityInst) *SessionInfo {
	return &SessionInfo{
		Inst:              inst,
		PreallocInos:      map[uint64]struct{}{},
		UsedInos:          map[uint64]struct{}{},
		CompletedRequests: map[uint64]struct{}{},
		ClientMetadata:    map[string]string{},
	}
}

// Encode appends the versioned binary encoding of info's body (without the
// key; the key is the caller-supplied EntityName string) to e.
func (info *SessionInfo) Encode(e *Encoder) {
	tok := e.StartFrame(sessionInfoStructV, sessionInfoCompatV)
	e.PutEntityInst(info.Inst)
	e.PutUint64Set(info.PreallocInos)
	e.PutUint64Set(info.UsedInos)
	e.PutUint64Set(info.CompletedRequests)
	e.PutStringMap(info.ClientMetadata)
	e.FinishFrame(tok)
}

// Decode populates info from d, which must be positioned at the start of a
// SessionInfo frame.
func (info *SessionInfo) Decode(d *Decoder) error {
	_, end, err := d.StartFrame(sessionInfoMinDecodeV)
	if err != nil {
		return err
	}

	if info.Inst, err = d.EntityInst(); err != nil {
		return err
	}
	if info.PreallocInos, err = d.Uint64Set(); err != nil {
		return err
	}
	if info.UsedInos, err = d.Uint64Set(); err != nil {
		return err
	}
	if info.CompletedRequests, err = d.Uint64Set(); err != nil {
		return err
	}
	if info.ClientMetadata, err = d.StringMap(); err != nil {
		return err
	}

	return d.FinishFrame(end)
}
