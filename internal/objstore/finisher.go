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

import "github.com/cubefs/cubefs/blobstore/util/taskpool"

// Finisher is a dedicated serial executor: every completion an Objecter
// implementation produces is run through it, one at a time, so that a
// session map's load/save completions are delivered in submission order
// and never overlap each other, matching the source's Finisher thread.
type Finisher struct {
	pool taskpool.TaskPool
}

// NewFinisher returns a Finisher backed by a single worker with the given
// pending-completion queue depth.
func NewFinisher(queueSize int) *Finisher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Finisher{pool: taskpool.New(1, queueSize)}
}

// Run schedules fn to execute on the Finisher's worker goroutine.
func (f *Finisher) Run(fn func()) {
	f.pool.Run(fn)
}
