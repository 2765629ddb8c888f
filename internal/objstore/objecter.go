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

// Package objstore is the persistence protocol adapter: it translates the
// handful of object-store operations the session map needs (header read,
// ranged OMAP read, header write, key-set write, key delete, full-object
// truncate/read) into calls against a backing key/value engine, and
// delivers every result asynchronously through a Finisher the way an
// Objecter completion would arrive on a real cluster client.
package objstore

import "context"

// ObjectOperation accumulates a compound read or mutation against a single
// named object. All accumulated steps are submitted as one atomic call to
// the backing engine; partial application is not possible.
type ObjectOperation struct {
	getHeader bool

	getVals    bool
	valsStart  string
	valsPrefix string
	valsLimit  int

	setHeader    []byte
	hasSetHeader bool

	setVals map[string][]byte
	rmKeys  map[string]struct{}

	truncate     bool
	truncateSize int64
}

// NewObjectOperation returns an empty compound operation.
func NewObjectOperation() *ObjectOperation {
	return &ObjectOperation{}
}

// OmapGetHeader requests the object's OMAP header as part of the next Read.
func (op *ObjectOperation) OmapGetHeader() *ObjectOperation {
	op.getHeader = true
	return op
}

// OmapGetVals requests an ordered, batched range of OMAP entries: all keys
// strictly greater than start (or, if start is empty, from the beginning)
// that carry prefix, up to limit entries.
func (op *ObjectOperation) OmapGetVals(start, prefix string, limit int) *ObjectOperation {
	op.getVals = true
	op.valsStart = start
	op.valsPrefix = prefix
	op.valsLimit = limit
	return op
}

// OmapSetHeader stages a header write for the next Mutate.
func (op *ObjectOperation) OmapSetHeader(data []byte) *ObjectOperation {
	op.setHeader = data
	op.hasSetHeader = true
	return op
}

// OmapSet stages an upsert of the given key/value pairs for the next
// Mutate.
func (op *ObjectOperation) OmapSet(kv map[string][]byte) *ObjectOperation {
	op.setVals = kv
	return op
}

// OmapRmKeys stages a delete of the given keys for the next Mutate.
func (op *ObjectOperation) OmapRmKeys(keys map[string]struct{}) *ObjectOperation {
	op.rmKeys = keys
	return op
}

// Truncate stages truncating the object's raw byte payload (used once, to
// erase a legacy blob after upgrading to the modern OMAP format).
func (op *ObjectOperation) Truncate(size int64) *ObjectOperation {
	op.truncate = true
	op.truncateSize = size
	return op
}

// ReadResult carries the per-step outputs of a compound Read, mirroring the
// independent header_r/values_r return codes a real Objecter compound
// operation reports.
type ReadResult struct {
	// Err is set if the read could not be submitted or executed at all.
	Err error

	HeaderErr error
	Header    []byte

	ValsErr error
	Vals    map[string][]byte
}

// ReadFullResult carries the output of a full-object byte read, used for
// the legacy load path.
type ReadFullResult struct {
	Err  error
	Data []byte
}

// MutateResult carries the outcome of a compound Mutate.
type MutateResult struct {
	Err error
}

// Objecter is the subset of an asynchronous object-store client this
// package consumes: compound reads and mutations against a single object,
// with completions delivered on the Objecter's own Finisher rather than the
// caller's goroutine.
type Objecter interface {
	// Read submits op and invokes onDone once the backing engine has
	// produced a result, on a Finisher goroutine.
	Read(ctx context.Context, oid string, op *ObjectOperation, onDone func(ReadResult))

	// ReadFull reads the object's entire raw byte payload (the legacy
	// on-disk format).
	ReadFull(ctx context.Context, oid string, onDone func(ReadFullResult))

	// Mutate submits op as a single atomic mutation and invokes onDone
	// once it has been applied.
	Mutate(ctx context.Context, oid string, op *ObjectOperation, onDone func(MutateResult))
}
