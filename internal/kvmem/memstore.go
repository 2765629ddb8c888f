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

// Package kvmem is an in-memory stand-in for common/kvstore.Store, used by
// this module's own tests in place of a real RocksDB instance.
package kvmem

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/cubefs/mds-sessionmap/common/kvstore"
)

// MemStore implements kvstore.Store over plain Go maps, one per column
// family. It is not safe for anything beyond what this module's tests
// exercise: no snapshots, no real WAL, no compaction.
type MemStore struct {
	mu  sync.Mutex
	cfs map[kvstore.CF]map[string][]byte
}

// NewMemStore returns an empty store with the default column family ready.
func NewMemStore() *MemStore {
	return &MemStore{cfs: map[kvstore.CF]map[string][]byte{"default": {}}}
}

func (s *MemStore) col(col kvstore.CF) map[string][]byte {
	if col == "" {
		col = "default"
	}
	m, ok := s.cfs[col]
	if !ok {
		m = map[string][]byte{}
		s.cfs[col] = m
	}
	return m
}

func (s *MemStore) NewSnapshot() kvstore.Snapshot { return memSnapshot{} }

func (s *MemStore) CreateColumn(col kvstore.CF) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cfs[col]; ok {
		return nil
	}
	s.cfs[col] = map[string][]byte{}
	return nil
}

func (s *MemStore) GetAllColumns() []kvstore.CF {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kvstore.CF, 0, len(s.cfs))
	for cf := range s.cfs {
		out = append(out, cf)
	}
	return out
}

func (s *MemStore) CheckColumns(col kvstore.CF) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cfs[col]
	return ok
}

func (s *MemStore) Get(ctx context.Context, col kvstore.CF, key []byte, readOpt kvstore.ReadOption) (kvstore.ValueGetter, error) {
	v, err := s.GetRaw(ctx, col, key, readOpt)
	if err != nil {
		return nil, err
	}
	return memValue(v), nil
}

func (s *MemStore) GetRaw(ctx context.Context, col kvstore.CF, key []byte, readOpt kvstore.ReadOption) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.col(col)[string(key)]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemStore) MultiGet(ctx context.Context, col kvstore.CF, keys [][]byte, readOpt kvstore.ReadOption) ([]kvstore.ValueGetter, error) {
	out := make([]kvstore.ValueGetter, 0, len(keys))
	for _, k := range keys {
		v, err := s.GetRaw(ctx, col, k, readOpt)
		if err != nil && err != kvstore.ErrNotFound {
			return nil, err
		}
		out = append(out, memValue(v))
	}
	return out, nil
}

func (s *MemStore) SetRaw(ctx context.Context, col kvstore.CF, key []byte, value []byte, writeOpt kvstore.WriteOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.col(col)[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *MemStore) Delete(ctx context.Context, col kvstore.CF, key []byte, writeOpt kvstore.WriteOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.col(col), string(key))
	return nil
}

func (s *MemStore) List(ctx context.Context, col kvstore.CF, prefix []byte, marker []byte, readOpt kvstore.ReadOption) kvstore.ListReader {
	s.mu.Lock()
	m := s.col(col)
	keys := make([]string, 0, len(m))
	for k := range m {
		if len(prefix) > 0 && !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if len(marker) > 0 && k < string(marker) {
			continue
		}
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)

	return &memListReader{store: s, col: col, keys: keys}
}

func (s *MemStore) Write(ctx context.Context, batch kvstore.WriteBatch, writeOpt kvstore.WriteOption) error {
	b, ok := batch.(*MemWriteBatch)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		switch op.kind {
		case opPut:
			s.col(op.col)[string(op.key)] = append([]byte(nil), op.value...)
		case opDelete:
			delete(s.col(op.col), string(op.key))
		case opDeleteRange:
			cf := s.col(op.col)
			for k := range cf {
				if k >= string(op.key) && k < string(op.endKey) {
					delete(cf, k)
				}
			}
		}
	}
	return nil
}

func (s *MemStore) Read(ctx context.Context, cols []kvstore.CF, keys [][]byte, readOpt kvstore.ReadOption) ([]kvstore.ValueGetter, error) {
	out := make([]kvstore.ValueGetter, 0, len(keys))
	for i, k := range keys {
		col := kvstore.CF("default")
		if i < len(cols) {
			col = cols[i]
		}
		v, err := s.GetRaw(ctx, col, k, readOpt)
		if err != nil && err != kvstore.ErrNotFound {
			return nil, err
		}
		out = append(out, memValue(v))
	}
	return out, nil
}

func (s *MemStore) GetOptionHelper() kvstore.OptionHelper             { return noopOptionHelper{} }
func (s *MemStore) NewReadOption() kvstore.ReadOption                 { return memReadOption{} }
func (s *MemStore) NewWriteOption() kvstore.WriteOption               { return memWriteOption{} }
func (s *MemStore) NewWriteBatch() kvstore.WriteBatch                 { return &MemWriteBatch{} }
func (s *MemStore) FlushCF(ctx context.Context, col kvstore.CF) error { return nil }
func (s *MemStore) Stats(ctx context.Context) (kvstore.Stats, error)  { return kvstore.Stats{}, nil }
func (s *MemStore) Close()                                            {}

type batchOpKind int

const (
	opPut batchOpKind = iota
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind   batchOpKind
	col    kvstore.CF
	key    []byte
	endKey []byte
	value  []byte
}

// MemWriteBatch is a kvstore.WriteBatch implementation that records ops for
// MemStore.Write to apply atomically.
type MemWriteBatch struct {
	ops []batchOp
}

func (b *MemWriteBatch) Put(col kvstore.CF, key, value []byte) {
	b.ops = append(b.ops, batchOp{kind: opPut, col: col, key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *MemWriteBatch) Delete(col kvstore.CF, key []byte) {
	b.ops = append(b.ops, batchOp{kind: opDelete, col: col, key: append([]byte(nil), key...)})
}

func (b *MemWriteBatch) DeleteRange(col kvstore.CF, startKey, endKey []byte) {
	b.ops = append(b.ops, batchOp{kind: opDeleteRange, col: col, key: append([]byte(nil), startKey...), endKey: append([]byte(nil), endKey...)})
}

func (b *MemWriteBatch) Data() []byte     { return nil }
func (b *MemWriteBatch) From(data []byte) {}
func (b *MemWriteBatch) Close()           {}

type memListReader struct {
	store *MemStore
	col   kvstore.CF
	keys  []string
	pos   int
}

func (r *memListReader) ReadNext() (kvstore.KeyGetter, kvstore.ValueGetter, error) {
	if r.pos >= len(r.keys) {
		return nil, nil, nil
	}
	k := r.keys[r.pos]
	r.pos++
	v, err := r.store.GetRaw(context.Background(), r.col, []byte(k), nil)
	if err != nil {
		return nil, nil, err
	}
	return memKey(k), memValue(v), nil
}

func (r *memListReader) ReadNextCopy() ([]byte, []byte, error) {
	kg, vg, err := r.ReadNext()
	if err != nil || kg == nil {
		return nil, nil, err
	}
	return kg.Key(), vg.Value(), nil
}

func (r *memListReader) ReadPrev() (kvstore.KeyGetter, kvstore.ValueGetter, error) {
	if r.pos <= 0 {
		return nil, nil, nil
	}
	r.pos--
	k := r.keys[r.pos]
	v, err := r.store.GetRaw(context.Background(), r.col, []byte(k), nil)
	if err != nil {
		return nil, nil, err
	}
	return memKey(k), memValue(v), nil
}

func (r *memListReader) ReadPrevCopy() ([]byte, []byte, error) {
	kg, vg, err := r.ReadPrev()
	if err != nil || kg == nil {
		return nil, nil, err
	}
	return kg.Key(), vg.Value(), nil
}

func (r *memListReader) ReadLast() (kvstore.KeyGetter, kvstore.ValueGetter, error) {
	if len(r.keys) == 0 {
		return nil, nil, nil
	}
	r.pos = len(r.keys)
	return r.ReadPrev()
}

func (r *memListReader) SeekToLast() { r.pos = len(r.keys) }
func (r *memListReader) SeekForPrev(key []byte) error {
	for i, k := range r.keys {
		if k > string(key) {
			r.pos = i
			return nil
		}
	}
	r.pos = len(r.keys)
	return nil
}
func (r *memListReader) SeekTo(key []byte) {
	for i, k := range r.keys {
		if k >= string(key) {
			r.pos = i
			return
		}
	}
	r.pos = len(r.keys)
}
func (r *memListReader) SetFilterKey(key []byte) {}
func (r *memListReader) Close()                  {}

type memKey string

func (k memKey) Key() []byte { return []byte(k) }
func (k memKey) Close()      {}

type memValue []byte

func (v memValue) Value() []byte { return []byte(v) }
func (v memValue) Read(p []byte) (int, error) {
	n := copy(p, v)
	return n, nil
}
func (v memValue) Size() int { return len(v) }
func (v memValue) Close()    {}

type memSnapshot struct{}

func (memSnapshot) Close() {}

type memReadOption struct{}

func (memReadOption) SetSnapShot(snap kvstore.Snapshot) {}
func (memReadOption) Close()                            {}

type memWriteOption struct{}

func (memWriteOption) SetSync(value bool)    {}
func (memWriteOption) DisableWAL(value bool) {}
func (memWriteOption) Close()                {}

type noopOptionHelper struct{}

func (noopOptionHelper) GetOption() kvstore.Option                             { return kvstore.Option{} }
func (noopOptionHelper) SetMaxBackgroundJobs(value int) error                  { return nil }
func (noopOptionHelper) SetMaxBackgroundCompactions(value int) error           { return nil }
func (noopOptionHelper) SetMaxSubCompactions(value int) error                  { return nil }
func (noopOptionHelper) SetMaxOpenFiles(value int) error                       { return nil }
func (noopOptionHelper) SetMaxWriteBufferNumber(value int) error               { return nil }
func (noopOptionHelper) SetWriteBufferSize(size int) error                     { return nil }
func (noopOptionHelper) SetArenaBlockSize(size int) error                      { return nil }
func (noopOptionHelper) SetTargetFileSizeBase(value uint64) error              { return nil }
func (noopOptionHelper) SetMaxBytesForLevelBase(value uint64) error            { return nil }
func (noopOptionHelper) SetLevel0SlowdownWritesTrigger(value int) error        { return nil }
func (noopOptionHelper) SetLevel0StopWritesTrigger(value int) error            { return nil }
func (noopOptionHelper) SetSoftPendingCompactionBytesLimit(value uint64) error { return nil }
func (noopOptionHelper) SetHardPendingCompactionBytesLimit(value uint64) error { return nil }
func (noopOptionHelper) SetBlockSize(size int) error                           { return nil }
func (noopOptionHelper) SetFIFOCompactionMaxTableFileSize(size int) error      { return nil }
func (noopOptionHelper) SetFIFOCompactionAllow(value bool) error               { return nil }
func (noopOptionHelper) SetIOWriteRateLimiter(value int64) error               { return nil }
