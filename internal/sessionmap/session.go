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
	"container/list"
	"strconv"
	"time"
)

// State is one of the six states a Session cycles through during its
// lifetime. Exactly one by_state list holds a Session at any time, keyed by
// its current State.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
	StateStale
	StateKilling
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateStale:
		return "stale"
	case StateKilling:
		return "killing"
	default:
		return "unknown"
	}
}

// persistable reports whether sessions in this state are written out on
// save; Opening and Closed sessions are transient and are skipped (spec
// §4.5 step 3c).
func (s State) persistable() bool {
	switch s {
	case StateOpen, StateClosing, StateStale, StateKilling:
		return true
	default:
		return false
	}
}

// Session is one row of the SessionMap: one client's negotiated state,
// capability bookkeeping, and request list. A Session exists from
// (*SessionMap).AddSession until (*SessionMap).RemoveSession; while present
// it is linked into exactly one of the map's by_state lists.
type Session struct {
	Info *SessionInfo

	state    State
	stateSeq uint64

	LastCapRenew time.Time

	// requests and caps are back-references into subsystems this package
	// does not own (the request machinery and the capability table); the
	// session map only indexes their ids, never their payload.
	requests map[uint64]struct{}
	caps     map[uint64]struct{}

	RecalledAt         time.Time
	RecallCount        int
	RecallReleaseCount int

	PendingPreallocInos map[uint64]struct{}

	// projectedPVQueue is the FIFO of projected versions awaiting commit,
	// pushed by mark_projected and popped by mark_dirty.
	projectedPVQueue []uint64

	HumanName string

	// elem links this Session into its SessionMap's by_state[state] list.
	// nil when the session is not currently linked (detached).
	elem *list.Element
}

// NewSession constructs a Session in StateClosed for inst, matching the
// zero-value state a freshly decoded or newly connecting session starts in.
func NewSession(inst EntityInst) *Session {
	s := &Session{
		Info:                NewSessionInfo(inst),
		state:               StateClosed,
		requests:            map[uint64]struct{}{},
		caps:                map[uint64]struct{}{},
		PendingPreallocInos: map[uint64]struct{}{},
	}
	s.updateHumanName()
	return s
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) StateSeq() uint64 {
	return s.stateSeq
}

// setState assigns the new state and bumps state_seq; it does not touch
// list linkage, which is the SessionMap's responsibility (I2).
func (s *Session) setState(new State) uint64 {
	s.state = new
	s.stateSeq++
	return s.stateSeq
}

func (s *Session) IsLinked() bool {
	return s.elem != nil
}

// RequestCount mirrors Session::get_request_count: the number of
// back-referenced in-flight request ids, read from the size of the id set.
func (s *Session) RequestCount() int {
	return len(s.requests)
}

// AddRequest / RemoveRequest index a request id owned by the journal and
// request machinery; the session map only tracks membership.
func (s *Session) AddRequest(id uint64) {
	s.requests[id] = struct{}{}
}

func (s *Session) RemoveRequest(id uint64) {
	delete(s.requests, id)
}

// CapCount returns the number of capabilities this session currently holds.
func (s *Session) CapCount() int {
	return len(s.caps)
}

func (s *Session) AddCap(id uint64) {
	s.caps[id] = struct{}{}
}

func (s *Session) RemoveCap(id uint64) {
	delete(s.caps, id)
}

// TrimCompletedRequests drops completed-request ids older than beforeTid
// from the persisted SessionInfo. A beforeTid of 0 clears every tracked id,
// matching remove_session's trim_completed_requests(0) call.
func (s *Session) TrimCompletedRequests(beforeTid uint64) {
	if beforeTid == 0 {
		for id := range s.Info.CompletedRequests {
			delete(s.Info.CompletedRequests, id)
		}
		return
	}
	for id := range s.Info.CompletedRequests {
		if id < beforeTid {
			delete(s.Info.CompletedRequests, id)
		}
	}
}

// pushProjected appends a newly projected version to the FIFO, called by
// (*SessionMap).MarkProjected.
func (s *Session) pushProjected(pv uint64) {
	s.projectedPVQueue = append(s.projectedPVQueue, pv)
}

// popProjected removes and returns the oldest projected version, called by
// (*SessionMap).MarkDirty. Returns 0, false if the queue is empty.
func (s *Session) popProjected() (uint64, bool) {
	if len(s.projectedPVQueue) == 0 {
		return 0, false
	}
	pv := s.projectedPVQueue[0]
	s.projectedPVQueue = s.projectedPVQueue[1:]
	return pv, true
}

// NotifyRecallSent records that a RECALL_STATE message asking the client to
// shrink its cap count to newLimit was sent. A no-op if a recall is already
// outstanding (recalled_at != 0), matching §4.6.
func (s *Session) NotifyRecallSent(newLimit int) error {
	if !s.RecalledAt.IsZero() {
		return nil
	}
	if newLimit >= s.CapCount() {
		return ErrRecallLimit
	}
	s.RecalledAt = time.Now()
	s.RecallCount = s.CapCount() - newLimit
	s.RecallReleaseCount = 0
	return nil
}

// NotifyCapRelease accounts for n caps the client released in response to an
// outstanding recall, clearing recall bookkeeping once the client has
// released at least as many caps as were requested.
func (s *Session) NotifyCapRelease(n int) {
	if s.RecalledAt.IsZero() {
		return
	}
	s.RecallReleaseCount += n
	if s.RecallReleaseCount >= s.RecallCount {
		s.RecalledAt = time.Time{}
		s.RecallCount = 0
		s.RecallReleaseCount = 0
	}
}

// SetClientMetadata replaces the persisted client metadata and recomputes
// the presentation-only human name.
func (s *Session) SetClientMetadata(m map[string]string) {
	s.Info.ClientMetadata = m
	s.updateHumanName()
}

// updateHumanName implements Session::_update_human_name: prefer the
// client-reported hostname, optionally suffixed with a non-default
// entity_id, falling back to the numeric id of the session's EntityName.
func (s *Session) updateHumanName() {
	if hostname, ok := s.Info.ClientMetadata["hostname"]; ok {
		name := hostname
		if entityID, ok := s.Info.ClientMetadata["entity_id"]; ok {
			// entity_id is "default" only when it parses as the numeric
			// DefaultID sentinel; any non-numeric id (e.g. "admin") is
			// never default and is always appended.
			if idNum, err := strconv.ParseUint(entityID, 10, 64); err != nil || idNum != DefaultID {
				name += ":" + entityID
			}
		}
		s.HumanName = name
		return
	}
	s.HumanName = strconv.FormatUint(s.Info.Inst.Name.Num, 10)
}

// Decode replaces Info by decoding d and recomputes the human name, matching
// Session::decode.
func (s *Session) Decode(d *Decoder) error {
	info := &SessionInfo{}
	if err := info.Decode(d); err != nil {
		return err
	}
	s.Info = info
	s.updateHumanName()
	return nil
}
