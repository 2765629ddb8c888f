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
	"context"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/mds-sessionmap/internal/objstore"
	"github.com/cubefs/mds-sessionmap/metrics"
)

// FatalFunc reports an unrecoverable load/save failure. The default
// implementation pulls a span off ctx and calls its Fatalf, matching the
// teacher's span.Fatalf convention for unrecoverable daemon state. A caller
// can inject a stand-in through WithFatalFunc, for example to record a
// decode/I-O fault without exiting the process.
type FatalFunc func(ctx context.Context, format string, args ...interface{})

func defaultFatal(ctx context.Context, format string, args ...interface{}) {
	trace.SpanFromContextSafe(ctx).Fatalf(format, args...)
}

// Completion is released exactly once, with a non-nil error only when the
// map has given up on the operation it was registered against. In practice
// that never happens here: I/O failures on load or save are fatal to the
// rank (per the error handling design this package follows), so a released
// Completion always carries a nil error.
type Completion func(error)

// Config holds the one operator-facing knob this package exposes.
type Config struct {
	// KeysPerOp is both the page size of a single OMAP read during load and
	// the soft cap on the dirty set that triggers a preemptive save.
	KeysPerOp int
}

func (c Config) keysPerOp() int {
	if c.KeysPerOp <= 0 {
		return 1024
	}
	return c.KeysPerOp
}

// SessionMap is the live, rank-owned session table: SessionMapStore's index
// plus the secondary by_state view, dirty/tombstone overlays, version
// lineage, and the load/save state machine that talks to an Objecter
// through a Finisher. None of its mutation methods are safe to call
// concurrently with each other except where noted; the mutex exists only to
// let load/save completions delivered on a Finisher goroutine re-enter
// safely, not to offer general-purpose concurrent access.
type SessionMap struct {
	mu sync.Mutex

	store *SessionMapStore

	byState map[State]*list.List

	dirtySessions map[EntityName]struct{}
	nullSessions  map[EntityName]struct{}

	projected  uint64
	committing uint64
	committed  uint64

	commitWaiters  map[uint64][]Completion
	waitingForLoad []Completion

	loadedLegacy bool

	loadStart time.Time
	saveStart map[uint64]time.Time

	cfg   Config
	oid   string
	rank  string
	obj   objstore.Objecter
	fatal FatalFunc
}

// Option customizes a SessionMap at construction time.
type Option func(*SessionMap)

// WithFatalFunc overrides how unrecoverable load/save failures are
// reported, in place of the default span.Fatalf behavior.
func WithFatalFunc(fn FatalFunc) Option {
	return func(m *SessionMap) { m.fatal = fn }
}

// WithRankLabel sets the "rank" label attached to this map's metrics.
// Defaults to oid when unset.
func WithRankLabel(rank string) Option {
	return func(m *SessionMap) { m.rank = rank }
}

// New returns an empty SessionMap bound to oid and backed by obj.
func New(oid string, obj objstore.Objecter, cfg Config, opts ...Option) *SessionMap {
	m := &SessionMap{
		store:         NewSessionMapStore(),
		byState:       map[State]*list.List{},
		dirtySessions: map[EntityName]struct{}{},
		nullSessions:  map[EntityName]struct{}{},
		commitWaiters: map[uint64][]Completion{},
		saveStart:     map[uint64]time.Time{},
		cfg:           cfg,
		oid:           oid,
		rank:          oid,
		obj:           obj,
		fatal:         defaultFatal,
	}
	for _, s := range []State{StateClosed, StateOpening, StateOpen, StateClosing, StateStale, StateKilling} {
		m.byState[s] = list.New()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Version, Projected, Committing, Committed report the four version-lineage
// counters (I6: committed <= committing <= version <= projected).
func (m *SessionMap) Version() uint64    { m.mu.Lock(); defer m.mu.Unlock(); return m.store.Version }
func (m *SessionMap) Projected() uint64  { m.mu.Lock(); defer m.mu.Unlock(); return m.projected }
func (m *SessionMap) Committing() uint64 { m.mu.Lock(); defer m.mu.Unlock(); return m.committing }
func (m *SessionMap) Committed() uint64  { m.mu.Lock(); defer m.mu.Unlock(); return m.committed }

// LoadedLegacy reports whether the in-memory map was populated from a
// legacy-format object and has not yet had its upgrade save committed.
func (m *SessionMap) LoadedLegacy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadedLegacy
}

// Get returns the session for name, if one is currently live.
func (m *SessionMap) Get(name EntityName) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store.Sessions[name]
	return s, ok
}

// ByState returns the names of every live session currently linked into
// by_state[state], in list order.
func (m *SessionMap) ByState(state State) []EntityName {
	m.mu.Lock()
	defer m.mu.Unlock()
	lst := m.byState[state]
	out := make([]EntityName, 0, lst.Len())
	for e := lst.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Session).Info.Inst.Name)
	}
	return out
}

// Dump returns a structured summary of the live session table.
func (m *SessionMap) Dump() []SessionDump {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Dump()
}

func (m *SessionMap) link(s *Session, state State) {
	s.elem = m.byState[state].PushBack(s)
	metrics.SessionsByState.WithLabelValues(m.rank, state.String()).Set(float64(m.byState[state].Len()))
}

func (m *SessionMap) unlink(s *Session) {
	if s.elem == nil {
		return
	}
	m.byState[s.state].Remove(s.elem)
	s.elem = nil
	metrics.SessionsByState.WithLabelValues(m.rank, s.state.String()).Set(float64(m.byState[s.state].Len()))
}

// AddSession inserts s, which must not already be present, and links it
// into by_state[s.state].
func (m *SessionMap) AddSession(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := s.Info.Inst.Name
	if _, exists := m.store.Sessions[name]; exists {
		return ErrSessionExists
	}
	m.store.Sessions[name] = s
	// A tombstone for this name can only be meaningful while the name is
	// absent from sessions (I5); re-adding clears it so a stale delete
	// doesn't ride along in the next save behind this insert's own upsert.
	delete(m.nullSessions, name)
	m.link(s, s.state)
	metrics.NullDepth.WithLabelValues(m.rank).Set(float64(len(m.nullSessions)))
	return nil
}

// RemoveSession trims the session's completed-request tracking, unlinks it
// from by_state, drops it from the live table, and tombstones its name so
// the next save deletes it from the backing object.
func (m *SessionMap) RemoveSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := s.Info.Inst.Name
	s.TrimCompletedRequests(0)
	m.unlink(s)
	delete(m.store.Sessions, name)
	delete(m.dirtySessions, name)
	m.nullSessions[name] = struct{}{}
	metrics.DirtyDepth.WithLabelValues(m.rank).Set(float64(len(m.dirtySessions)))
	metrics.NullDepth.WithLabelValues(m.rank).Set(float64(len(m.nullSessions)))
}

// SetState moves s to the tail of by_state[new] if its state is changing,
// and returns the session's (possibly bumped) state_seq.
func (m *SessionMap) SetState(s *Session, new State) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.state == new {
		return s.stateSeq
	}
	seq := s.setState(new)
	m.unlink(s)
	m.link(s, new)
	return seq
}

// TouchSession re-appends s at the tail of its current by_state list and
// refreshes last_cap_renew. s must already be linked.
func (m *SessionMap) TouchSession(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.IsLinked() {
		return ErrDetached
	}
	m.unlink(s)
	m.link(s, s.state)
	s.LastCapRenew = time.Now()
	return nil
}

// markDirty stages a preemptive save, if the dirty set is already at
// capacity, then inserts s.name. The preemptive save excludes the session
// being inserted: backpressure, not completeness, is the point.
func (m *SessionMap) markDirty(ctx context.Context, s *Session) {
	if len(m.dirtySessions) >= m.cfg.keysPerOp() {
		v := m.store.Version
		m.save(ctx, func(error) {}, v)
	}
	m.dirtySessions[s.Info.Inst.Name] = struct{}{}
	metrics.DirtyDepth.WithLabelValues(m.rank).Set(float64(len(m.dirtySessions)))
}

// MarkDirty stages s for upsert on the next save, advances version, and
// pops the oldest queued projected version off s.
func (m *SessionMap) MarkDirty(ctx context.Context, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markDirty(ctx, s)
	m.store.Version++
	s.popProjected()
	m.observeVersionGauges()
}

// MarkProjected advances projected, pushes it onto s's projected-version
// FIFO, and returns the new projected value.
func (m *SessionMap) MarkProjected(s *Session) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.projected++
	s.pushProjected(m.projected)
	m.observeVersionGauges()
	return m.projected
}

// observeVersionGauges refreshes the version-lineage metrics. Callers must
// hold m.mu.
func (m *SessionMap) observeVersionGauges() {
	metrics.Version.WithLabelValues(m.rank, "version").Set(float64(m.store.Version))
	metrics.Version.WithLabelValues(m.rank, "projected").Set(float64(m.projected))
	metrics.Version.WithLabelValues(m.rank, "committing").Set(float64(m.committing))
	metrics.Version.WithLabelValues(m.rank, "committed").Set(float64(m.committed))
}

// ReplayDirtySession is the journal-replay counterpart of MarkDirty: it
// stages s the same way but advances counters through ReplayAdvanceVersion
// instead of the ordinary projected-pop, since replay has no projected
// queue to drain.
func (m *SessionMap) ReplayDirtySession(ctx context.Context, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markDirty(ctx, s)
	m.replayAdvanceVersion()
}

// ReplayAdvanceVersion advances version and snaps projected to match it,
// without touching dirty/null sets or triggering a save.
func (m *SessionMap) ReplayAdvanceVersion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayAdvanceVersion()
}

func (m *SessionMap) replayAdvanceVersion() {
	m.store.Version++
	m.projected = m.store.Version
	m.observeVersionGauges()
}

// Wipe removes every live session (tombstoning each one), advances projected
// by one and sets version equal to it. by_state ends up empty as a consequence of
// removing every session, not by being cleared directly.
func (m *SessionMap) Wipe() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.store.Sessions {
		name := s.Info.Inst.Name
		s.TrimCompletedRequests(0)
		m.unlink(s)
		delete(m.dirtySessions, name)
		m.nullSessions[name] = struct{}{}
	}
	m.store.Sessions = map[EntityName]*Session{}
	m.projected++
	m.store.Version = m.projected
	metrics.DirtyDepth.WithLabelValues(m.rank).Set(float64(len(m.dirtySessions)))
	metrics.NullDepth.WithLabelValues(m.rank).Set(float64(len(m.nullSessions)))
	m.observeVersionGauges()
}

// WipeInoPrealloc clears every session's inode pre-allocation bookkeeping
// without touching dirty/null sets.
func (m *SessionMap) WipeInoPrealloc() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.store.Sessions {
		s.PendingPreallocInos = map[uint64]struct{}{}
		s.Info.PreallocInos = map[uint64]struct{}{}
		s.Info.UsedInos = map[uint64]struct{}{}
	}
	m.store.Version++
	m.projected = m.store.Version
	m.observeVersionGauges()
}

// Load populates the map from its backing object, registering onLoad (if
// non-nil) to be released once loading completes. Load is a two-phase
// compound read (header plus the first page of OMAP values); further pages
// are fetched as each batch completes, and an empty header bytes triggers
// the legacy load path instead.
func (m *SessionMap) Load(ctx context.Context, onLoad Completion) {
	m.mu.Lock()
	if m.loadStart.IsZero() {
		m.loadStart = time.Now()
	}
	if onLoad != nil {
		m.waitingForLoad = append(m.waitingForLoad, onLoad)
	}
	m.mu.Unlock()

	op := objstore.NewObjectOperation().OmapGetHeader().OmapGetVals("", "", m.cfg.keysPerOp())
	m.obj.Read(ctx, m.oid, op, func(res objstore.ReadResult) {
		m.loadFinish(ctx, res, true)
	})
}

// loadFinish is the completion for every page of the load read; it is
// always invoked on the Objecter's Finisher.
func (m *SessionMap) loadFinish(ctx context.Context, res objstore.ReadResult, first bool) {
	span := trace.SpanFromContextSafe(ctx)

	if res.Err != nil {
		m.fatal(ctx, "sessionmap: load of %s failed: %v", m.oid, res.Err)
		return
	}

	m.mu.Lock()

	if first {
		if res.HeaderErr != nil {
			m.mu.Unlock()
			m.fatal(ctx, "sessionmap: load of %s header failed: %v", m.oid, res.HeaderErr)
			return
		}
		if len(res.Header) == 0 {
			m.mu.Unlock()
			span.Infof("sessionmap: %s has no header, loading legacy", m.oid)
			m.loadLegacy(ctx)
			return
		}
		if err := m.store.DecodeHeader(res.Header); err != nil {
			m.mu.Unlock()
			m.fatal(ctx, "sessionmap: malformed header for %s: %v", m.oid, err)
			return
		}
	}

	if res.ValsErr != nil {
		m.mu.Unlock()
		m.fatal(ctx, "sessionmap: load of %s values failed: %v", m.oid, res.ValsErr)
		return
	}
	if err := m.store.DecodeValues(res.Vals); err != nil {
		m.mu.Unlock()
		m.fatal(ctx, "sessionmap: malformed value in %s: %v", m.oid, err)
		return
	}
	metrics.LoadPages.WithLabelValues(m.rank).Inc()

	if len(res.Vals) == m.cfg.keysPerOp() {
		lastKey := ""
		for k := range res.Vals {
			if k > lastKey {
				lastKey = k
			}
		}
		m.mu.Unlock()

		op := objstore.NewObjectOperation().OmapGetVals(lastKey, "", m.cfg.keysPerOp())
		m.obj.Read(ctx, m.oid, op, func(res objstore.ReadResult) {
			m.loadFinish(ctx, res, false)
		})
		return
	}

	for _, s := range m.store.Sessions {
		m.link(s, s.state)
	}
	m.projected = m.store.Version
	m.committing = m.store.Version
	m.committed = m.store.Version
	waiters := m.waitingForLoad
	m.waitingForLoad = nil
	m.observeLoadDone()
	span.Infof("sessionmap: loaded %s, version=%d, %d sessions", m.oid, m.store.Version, len(m.store.Sessions))
	m.mu.Unlock()

	releaseAll(waiters)
}

// observeLoadDone records load latency and the version-lineage gauges once
// load (modern or legacy) has populated the map. Callers must hold m.mu.
func (m *SessionMap) observeLoadDone() {
	if !m.loadStart.IsZero() {
		metrics.LoadLatency.WithLabelValues(m.rank).Observe(time.Since(m.loadStart).Seconds())
		m.loadStart = time.Time{}
	}
	m.observeVersionGauges()
}

// loadLegacy reads the whole-object byte payload and decodes it as the
// pre-OMAP format, marking every resulting session dirty so the next save
// performs the one-shot upgrade write. An object with no byte payload either
// (one that was never saved) loads as an empty map at version 0 and is not
// treated as legacy.
func (m *SessionMap) loadLegacy(ctx context.Context) {
	m.obj.ReadFull(ctx, m.oid, func(res objstore.ReadFullResult) {
		span := trace.SpanFromContextSafe(ctx)

		if res.Err != nil {
			m.fatal(ctx, "sessionmap: legacy load of %s failed: %v", m.oid, res.Err)
			return
		}

		m.mu.Lock()
		if len(res.Data) > 0 {
			if err := m.store.DecodeLegacy(res.Data); err != nil {
				m.mu.Unlock()
				m.fatal(ctx, "sessionmap: malformed legacy payload for %s: %v", m.oid, err)
				return
			}
		}

		for _, s := range m.store.Sessions {
			m.link(s, s.state)
		}
		m.projected = m.store.Version
		m.committing = m.store.Version
		m.committed = m.store.Version

		for name := range m.store.Sessions {
			m.dirtySessions[name] = struct{}{}
		}
		metrics.DirtyDepth.WithLabelValues(m.rank).Set(float64(len(m.dirtySessions)))
		m.loadedLegacy = len(res.Data) > 0

		waiters := m.waitingForLoad
		m.waitingForLoad = nil
		m.observeLoadDone()
		span.Infof("sessionmap: legacy-loaded %s, version=%d, %d sessions", m.oid, m.store.Version, len(m.store.Sessions))
		m.mu.Unlock()

		releaseAll(waiters)
	})
}

// Save durably persists at least the state as of needv. A needv of 0 always
// enqueues a fresh commit behind whatever is currently committing.
func (m *SessionMap) Save(ctx context.Context, onSave Completion, needv uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.save(ctx, onSave, needv)
}

// save implements the collapsing rule: a request that can be satisfied by
// an already-in-flight commit piggybacks on it instead of composing a new
// object-store mutation. Callers must hold m.mu.
func (m *SessionMap) save(ctx context.Context, onSave Completion, needv uint64) {
	if needv > 0 && m.committing >= needv {
		m.commitWaiters[m.committing] = append(m.commitWaiters[m.committing], onSave)
		return
	}

	v := m.store.Version
	m.commitWaiters[v] = append(m.commitWaiters[v], onSave)
	m.committing = v
	if _, inFlight := m.saveStart[v]; !inFlight {
		m.saveStart[v] = time.Now()
	}
	metrics.Version.WithLabelValues(m.rank, "committing").Set(float64(m.committing))

	op := objstore.NewObjectOperation().OmapSetHeader(m.store.EncodeHeader())

	if m.loadedLegacy {
		op.Truncate(0)
		m.loadedLegacy = false
	}

	toSet := map[string][]byte{}
	for name := range m.dirtySessions {
		s, ok := m.store.Sessions[name]
		if !ok || !s.state.persistable() {
			continue
		}
		e := NewEncoder(64)
		s.Info.Encode(e)
		toSet[name.String()] = append([]byte(nil), e.Bytes()...)
		e.Release()
	}
	if len(toSet) > 0 {
		op.OmapSet(toSet)
	}

	toRemove := map[string]struct{}{}
	for name := range m.nullSessions {
		toRemove[name.String()] = struct{}{}
	}
	if len(toRemove) > 0 {
		op.OmapRmKeys(toRemove)
	}

	m.dirtySessions = map[EntityName]struct{}{}
	m.nullSessions = map[EntityName]struct{}{}
	metrics.DirtyDepth.WithLabelValues(m.rank).Set(0)
	metrics.NullDepth.WithLabelValues(m.rank).Set(0)

	m.obj.Mutate(ctx, m.oid, op, func(res objstore.MutateResult) {
		if res.Err != nil {
			m.fatal(ctx, "sessionmap: save of %s at v%d failed: %v", m.oid, v, res.Err)
			return
		}
		m.saveFinish(ctx, v)
	})
}

// saveFinish is the Mutate completion, always invoked on the Objecter's
// Finisher.
func (m *SessionMap) saveFinish(ctx context.Context, v uint64) {
	m.mu.Lock()
	m.committed = v
	waiters := m.commitWaiters[v]
	delete(m.commitWaiters, v)
	if start, ok := m.saveStart[v]; ok {
		metrics.SaveLatency.WithLabelValues(m.rank).Observe(time.Since(start).Seconds())
		delete(m.saveStart, v)
	}
	metrics.Version.WithLabelValues(m.rank, "committed").Set(float64(m.committed))
	m.mu.Unlock()

	trace.SpanFromContextSafe(ctx).Infof("sessionmap: committed %s at v%d", m.oid, v)

	releaseAll(waiters)
}

func releaseAll(waiters []Completion) {
	for _, c := range waiters {
		if c != nil {
			c(nil)
		}
	}
}
