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

package util

import "time"

// Stopwatch accumulates elapsed wall time across possibly-repeated Start/Stop
// pairs.
type Stopwatch struct {
	start time.Time
	dt    time.Duration
}

func (s *Stopwatch) Start() {
	s.start = time.Now()
}

func (s *Stopwatch) Stop() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	d := time.Since(s.start)
	s.dt += d
	s.start = time.Time{}
	return d
}

func (s *Stopwatch) Total() time.Duration {
	return s.dt
}
