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

import (
	"sort"
	"time"
)

const (
	headerStructV = 1
	headerCompatV = 1

	// legacySentinel marks the newer of the two legacy blob variants: if
	// the first decoded u64 equals this value, the remainder is a
	// versioned frame; otherwise the first u64 is itself the version and
	// the old, meaningless-upper-bound-count format follows.
	legacySentinel = ^uint64(0)

	legacyModernStructV    = 2
	legacyModernMinDecodeV = 2
)

// SessionMapStore is the pure, I/O-free in-memory index plus the codec for
// both the modern and legacy on-disk representations. It holds no
// secondary indices (those belong to SessionMap) and performs no object
// store access.
type SessionMapStore struct {
	Sessions map[EntityName]*Session
	Version  uint64
}

// NewSessionMapStore returns an empty store.
func NewSessionMapStore() *SessionMapStore {
	return &SessionMapStore{Sessions: map[EntityName]*Session{}}
}

// GetOrAddSession returns the existing session for inst.Name, or creates and
// inserts a new one (in StateClosed) if none exists. The boolean result
// reports whether a new session was created.
func (st *SessionMapStore) GetOrAddSession(inst EntityInst) (*Session, bool) {
	if s, ok := st.Sessions[inst.Name]; ok {
		return s, false
	}
	s := NewSession(inst)
	st.Sessions[inst.Name] = s
	return s, true
}

// EncodeHeader returns the versioned encoding of the OMAP header: just the
// store's version counter.
func (st *SessionMapStore) EncodeHeader() []byte {
	e := NewEncoder(16)
	tok := e.StartFrame(headerStructV, headerCompatV)
	e.PutUint64(st.Version)
	e.FinishFrame(tok)
	out := append([]byte(nil), e.Bytes()...)
	e.Release()
	return out
}

// DecodeHeader parses the OMAP header produced by EncodeHeader, setting
// Version. Call this once per load, before any DecodeValues batch.
func (st *SessionMapStore) DecodeHeader(b []byte) error {
	d := NewDecoder(b)
	_, end, err := d.StartFrame(headerCompatV)
	if err != nil {
		return err
	}
	v, err := d.Uint64()
	if err != nil {
		return err
	}
	if err := d.FinishFrame(end); err != nil {
		return err
	}
	st.Version = v
	return nil
}

// DecodeValues parses a batch of OMAP key/value pairs (key: textual
// EntityName, value: versioned SessionInfo encoding) and merges them into
// Sessions. A session newly created by this call is promoted from Closed to
// Open (matching decode_values: every session that shows up in the OMAP
// body is, by definition, open). Keys that fail to parse are a fatal
// decode error.
func (st *SessionMapStore) DecodeValues(vals map[string][]byte) error {
	for k, v := range vals {
		name, ok := ParseEntityName(k)
		if !ok {
			return ErrMalformedInput
		}

		s, created := st.GetOrAddSession(EntityInst{Name: name})
		if created || s.State() == StateClosed {
			s.setState(StateOpen)
		}

		d := NewDecoder(v)
		if err := s.Decode(d); err != nil {
			return err
		}
	}
	return nil
}

// DecodeLegacy parses the whole-object blob format described in spec §4.1,
// discriminating the two historical variants by the value of the first
// decoded u64.
func (st *SessionMapStore) DecodeLegacy(b []byte) error {
	d := NewDecoder(b)
	now := time.Now()

	first, err := d.Uint64()
	if err != nil {
		return err
	}

	if first == legacySentinel {
		return st.decodeLegacyModern(d, now)
	}
	return st.decodeLegacyOld(d, first, now)
}

// decodeLegacyModern parses the newer legacy variant: a versioned frame of
// (version, then zero-or-more (name, SessionInfo) records until the frame
// ends).
func (st *SessionMapStore) decodeLegacyModern(d *Decoder, now time.Time) error {
	_, end, err := d.StartFrame(legacyModernMinDecodeV)
	if err != nil {
		return err
	}

	v, err := d.Uint64()
	if err != nil {
		return err
	}
	st.Version = v

	for d.Offset() < end {
		name, err := d.EntityName()
		if err != nil {
			return err
		}
		s, created := st.GetOrAddSession(EntityInst{Name: name})
		if created || s.State() == StateClosed {
			s.setState(StateOpen)
		}
		if err := s.Decode(d); err != nil {
			return err
		}
		s.LastCapRenew = now
	}

	return d.FinishFrame(end)
}

// decodeLegacyOld parses the oldest legacy variant: version, a u32 upper
// bound on the record count (documented upstream as "a meaningless upper
// bound", ignored here beyond driving the loop), followed by up to that
// many SessionInfo-prefixed records. A duplicate name triggers the
// best-effort "eager reconnect" recovery: the cursor rewinds and the record
// is re-decoded directly into the session already present, preserving
// referential identity instead of allocating a second Session for the same
// name.
func (st *SessionMapStore) decodeLegacyOld(d *Decoder, version uint64, now time.Time) error {
	st.Version = version

	n, err := d.Uint32()
	if err != nil {
		return err
	}

	for ; n > 0 && !d.AtEnd(); n-- {
		savedOff := d.Offset()

		info := &SessionInfo{}
		if err := info.Decode(d); err != nil {
			return err
		}

		if existing, ok := st.Sessions[info.Inst.Name]; ok {
			d.Seek(savedOff)
			if err := existing.Info.Decode(d); err != nil {
				return err
			}
			existing.updateHumanName()
			existing.setState(StateOpen)
			existing.LastCapRenew = now
			continue
		}

		s := NewSession(info.Inst)
		s.Info = info
		s.updateHumanName()
		s.setState(StateOpen)
		s.LastCapRenew = now
		st.Sessions[info.Inst.Name] = s
	}

	return nil
}

// SessionDump is the structured, human-readable per-session summary used by
// Dump, equivalent to SessionMapStore::dump(Formatter*) in the source this
// was distilled from.
type SessionDump struct {
	Name              string            `json:"name"`
	State             string            `json:"state"`
	CompletedRequests []uint64          `json:"completed_requests"`
	PreallocInos      []uint64          `json:"prealloc_inos"`
	UsedInos          []uint64          `json:"used_inos"`
	ClientMetadata    map[string]string `json:"client_metadata"`
	HumanName         string            `json:"human_name"`
}

// Dump returns a structured summary of every session in the store, ordered
// by name for stable output.
func (st *SessionMapStore) Dump() []SessionDump {
	out := make([]SessionDump, 0, len(st.Sessions))
	for name, s := range st.Sessions {
		out = append(out, SessionDump{
			Name:              name.String(),
			State:             s.State().String(),
			CompletedRequests: uint64SetToSlice(s.Info.CompletedRequests),
			PreallocInos:      uint64SetToSlice(s.Info.PreallocInos),
			UsedInos:          uint64SetToSlice(s.Info.UsedInos),
			ClientMetadata:    s.Info.ClientMetadata,
			HumanName:         s.HumanName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func uint64SetToSlice(m map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	return out
}

// GenerateTestInstances returns a small set of representative stores for
// table-driven round-trip tests, matching
// SessionMapStore::generate_test_instances.
func GenerateTestInstances() []*SessionMapStore {
	empty := NewSessionMapStore()

	populated := NewSessionMapStore()
	populated.Version = 3
	s, _ := populated.GetOrAddSession(EntityInst{Name: EntityName{Kind: EntityKindClient, Num: 1}, Addr: "10.0.0.1:0/1"})
	s.setState(StateOpen)
	s.Info.ClientMetadata["hostname"] = "box-a"

	return []*SessionMapStore{empty, populated}
}
