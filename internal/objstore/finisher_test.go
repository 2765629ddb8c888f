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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFinisher_RunsInSubmissionOrder(t *testing.T) {
	f := NewFinisher(16)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		f.Run(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestFinisher_NeverOverlapsTwoTasks(t *testing.T) {
	f := NewFinisher(8)

	var inFlight int32
	var sawOverlap bool
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		f.Run(func() {
			defer wg.Done()
			mu.Lock()
			inFlight++
			if inFlight > 1 {
				sawOverlap = true
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		})
	}
	wg.Wait()

	require.False(t, sawOverlap)
}

func TestFinisher_DefaultsZeroQueueSizeToOne(t *testing.T) {
	f := NewFinisher(0)
	done := make(chan struct{})
	f.Run(func() { close(done) })
	<-done
}
