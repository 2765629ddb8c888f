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

package objstore

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/cubefs/mds-sessionmap/common/kvstore"
)

// KVEngine implements Objecter against the project's own RocksDB-based
// kvstore.Store, standing in for the OSD this package's spec otherwise
// targets. Every object is namespaced by oid within kvstore's shared
// session-table column families (kvstore.HeaderCF/OmapCF/BlobCF), so a
// single engine can back every rank's session map.
type KVEngine struct {
	kv       kvstore.Store
	finisher *Finisher

	// pageLimiter bounds how fast successive omap_get_vals pages are
	// issued against the backing store during a load, the same role
	// golang.org/x/time/rate plays in the teacher's util/limiter package.
	// Nil means unlimited.
	pageLimiter *rate.Limiter

	// mutateGroup collapses Mutate calls that race on the same oid (a
	// defense the SessionMap layer above does not need in its own
	// single-writer operation, but that protects this engine if it is
	// ever shared across writers) onto a single WriteBatch commit.
	mutateGroup singleflight.Group
}

// KVEngineOption customizes a KVEngine at construction time.
type KVEngineOption func(*KVEngine)

// WithPageLimiter rate-limits paged OMAP reads issued by Read.
func WithPageLimiter(lim *rate.Limiter) KVEngineOption {
	return func(e *KVEngine) { e.pageLimiter = lim }
}

// NewKVEngine wires kv as the backing engine, creating kvstore's
// session-table column families if they are not already present (a
// kvstore.Store opened through NewKVStore already has them; this covers
// engines, such as test doubles, that provision columns lazily instead).
func NewKVEngine(kv kvstore.Store, finisher *Finisher, opts ...KVEngineOption) (*KVEngine, error) {
	for _, cf := range []kvstore.CF{kvstore.HeaderCF, kvstore.OmapCF, kvstore.BlobCF} {
		if kv.CheckColumns(cf) {
			continue
		}
		if err := kv.CreateColumn(cf); err != nil {
			return nil, err
		}
	}
	e := &KVEngine{kv: kv, finisher: finisher}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Read implements Objecter.
func (e *KVEngine) Read(ctx context.Context, oid string, op *ObjectOperation, onDone func(ReadResult)) {
	e.finisher.Run(func() {
		var res ReadResult

		if op.getHeader {
			v, err := e.kv.GetRaw(ctx, kvstore.HeaderCF, []byte(oid), nil)
			switch err {
			case nil:
				res.Header = v
			case kvstore.ErrNotFound:
				res.Header = nil
			default:
				res.HeaderErr = err
			}
		}

		if op.getVals {
			if e.pageLimiter != nil {
				if err := e.pageLimiter.Wait(ctx); err != nil {
					res.ValsErr = err
					onDone(res)
					return
				}
			}
			vals, err := e.listVals(ctx, oid, op.valsStart, op.valsPrefix, op.valsLimit)
			if err != nil {
				res.ValsErr = err
			} else {
				res.Vals = vals
			}
		}

		onDone(res)
	})
}

// listVals returns up to limit OMAP entries for oid whose key is strictly
// greater than start (or from the beginning, if start is empty) and that
// carry prefix, implementing the "start=last_key" exclusive-start
// convention the paged loader relies on.
func (e *KVEngine) listVals(ctx context.Context, oid, start, prefix string, limit int) (map[string][]byte, error) {
	base := kvstore.SessionObjectPrefix(oid)
	marker := base
	skipStart := false
	if start != "" {
		marker = kvstore.SessionObjectKey(oid, start)
		skipStart = true
	}

	lr := e.kv.List(ctx, kvstore.OmapCF, base, marker, nil)
	defer lr.Close()

	out := map[string][]byte{}
	for {
		if limit > 0 && len(out) >= limit {
			break
		}
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, err
		}
		if kg == nil || vg == nil {
			break
		}

		full := kg.Key()
		kg.Close()
		if !bytes.HasPrefix(full, base) {
			vg.Close()
			break
		}
		k := string(full[len(base):])

		if skipStart {
			skipStart = false
			if k == start {
				vg.Close()
				continue
			}
		}
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			vg.Close()
			continue
		}

		out[k] = append([]byte(nil), vg.Value()...)
		vg.Close()
	}
	return out, nil
}

// ReadFull implements Objecter.
func (e *KVEngine) ReadFull(ctx context.Context, oid string, onDone func(ReadFullResult)) {
	e.finisher.Run(func() {
		v, err := e.kv.GetRaw(ctx, kvstore.BlobCF, []byte(oid), nil)
		switch err {
		case nil:
			onDone(ReadFullResult{Data: v})
		case kvstore.ErrNotFound:
			onDone(ReadFullResult{Data: nil})
		default:
			onDone(ReadFullResult{Err: err})
		}
	})
}

// Mutate implements Objecter: every staged step is applied through a single
// WriteBatch, so the mutation is atomic the way a compound RADOS operation
// is. The actual apply always happens on the Finisher goroutine; a
// singleflight.Group keyed by oid collapses Mutate calls that race on the
// same object onto that one apply, so a Finisher shared by more than one
// rank never double-writes a concurrent commit.
func (e *KVEngine) Mutate(ctx context.Context, oid string, op *ObjectOperation, onDone func(MutateResult)) {
	go func() {
		v, err, _ := e.mutateGroup.Do(oid, func() (interface{}, error) {
			done := make(chan MutateResult, 1)
			e.finisher.Run(func() {
				done <- e.applyMutate(ctx, oid, op)
			})
			res := <-done
			return res, res.Err
		})
		if err != nil {
			onDone(MutateResult{Err: err})
			return
		}
		onDone(v.(MutateResult))
	}()
}

func (e *KVEngine) applyMutate(ctx context.Context, oid string, op *ObjectOperation) MutateResult {
	batch := e.kv.NewWriteBatch()
	defer batch.Close()

	if op.truncate {
		batch.Delete(kvstore.BlobCF, []byte(oid))
	}
	if op.hasSetHeader {
		batch.Put(kvstore.HeaderCF, []byte(oid), op.setHeader)
	}
	for k, v := range op.setVals {
		batch.Put(kvstore.OmapCF, kvstore.SessionObjectKey(oid, k), v)
	}
	for k := range op.rmKeys {
		batch.Delete(kvstore.OmapCF, kvstore.SessionObjectKey(oid, k))
	}

	return MutateResult{Err: e.kv.Write(ctx, batch, nil)}
}

// SeedLegacyBlob writes data as the object's raw byte payload, bypassing
// the OMAP entirely. It exists for tests and offline migration tooling that
// need to materialize a pre-upgrade object.
func (e *KVEngine) SeedLegacyBlob(ctx context.Context, oid string, data []byte) error {
	return e.kv.SetRaw(ctx, kvstore.BlobCF, []byte(oid), data, nil)
}
