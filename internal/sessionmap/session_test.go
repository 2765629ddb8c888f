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
	"testing"

	"github.com/stretchr/testify/require"
)

func testInst(num uint64) EntityInst {
	return EntityInst{Name: EntityName{Kind: EntityKindClient, Num: num}, Addr: "1.2.3.4:0/1"}
}

func TestNewSession_StartsClosedAndUnlinked(t *testing.T) {
	s := NewSession(testInst(1))
	require.Equal(t, StateClosed, s.State())
	require.False(t, s.IsLinked())
	require.Equal(t, uint64(0), s.StateSeq())
}

func TestSession_SetStateBumpsSeq(t *testing.T) {
	s := NewSession(testInst(1))
	seq := s.setState(StateOpen)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, StateOpen, s.State())
	seq = s.setState(StateOpen)
	require.Equal(t, uint64(2), seq, "setState always bumps seq, even to the same state")
}

func TestSession_RequestsAndCaps(t *testing.T) {
	s := NewSession(testInst(1))
	s.AddRequest(1)
	s.AddRequest(2)
	require.Equal(t, 2, s.RequestCount())
	s.RemoveRequest(1)
	require.Equal(t, 1, s.RequestCount())

	s.AddCap(10)
	require.Equal(t, 1, s.CapCount())
	s.RemoveCap(10)
	require.Equal(t, 0, s.CapCount())
}

func TestSession_TrimCompletedRequests(t *testing.T) {
	s := NewSession(testInst(1))
	s.Info.CompletedRequests[1] = struct{}{}
	s.Info.CompletedRequests[5] = struct{}{}
	s.Info.CompletedRequests[10] = struct{}{}

	s.TrimCompletedRequests(5)
	require.Equal(t, map[uint64]struct{}{5: {}, 10: {}}, s.Info.CompletedRequests)

	s.TrimCompletedRequests(0)
	require.Empty(t, s.Info.CompletedRequests)
}

func TestSession_ProjectedVersionFIFO(t *testing.T) {
	s := NewSession(testInst(1))
	_, ok := s.popProjected()
	require.False(t, ok)

	s.pushProjected(5)
	s.pushProjected(6)

	pv, ok := s.popProjected()
	require.True(t, ok)
	require.EqualValues(t, 5, pv)

	pv, ok = s.popProjected()
	require.True(t, ok)
	require.EqualValues(t, 6, pv)

	_, ok = s.popProjected()
	require.False(t, ok)
}

func TestSession_RecallLifecycle(t *testing.T) {
	s := NewSession(testInst(1))
	s.AddCap(1)
	s.AddCap(2)
	s.AddCap(3)

	require.NoError(t, s.NotifyRecallSent(1))
	require.False(t, s.RecalledAt.IsZero())
	require.Equal(t, 2, s.RecallCount)

	// A recall already outstanding is a no-op, not an error.
	require.NoError(t, s.NotifyRecallSent(0))
	require.Equal(t, 2, s.RecallCount)

	s.NotifyCapRelease(1)
	require.False(t, s.RecalledAt.IsZero(), "one release does not satisfy a two-cap recall")

	s.NotifyCapRelease(1)
	require.True(t, s.RecalledAt.IsZero())
	require.Equal(t, 0, s.RecallCount)
	require.Equal(t, 0, s.RecallReleaseCount)
}

func TestSession_NotifyRecallSentRejectsLimitAtOrAboveCapCount(t *testing.T) {
	s := NewSession(testInst(1))
	s.AddCap(1)
	s.AddCap(2)
	require.ErrorIs(t, s.NotifyRecallSent(2), ErrRecallLimit)
}

func TestSession_HumanNamePrefersHostname(t *testing.T) {
	s := NewSession(testInst(42))
	require.Equal(t, "42", s.HumanName)

	s.SetClientMetadata(map[string]string{"hostname": "box-a"})
	require.Equal(t, "box-a", s.HumanName)

	s.SetClientMetadata(map[string]string{"hostname": "box-a", "entity_id": "admin"})
	require.Equal(t, "box-a:admin", s.HumanName)

	s.SetClientMetadata(map[string]string{"hostname": "box-a", "entity_id": "18446744073709551615"})
	require.Equal(t, "box-a", s.HumanName, "a numeric entity_id equal to DefaultID is never appended")
}
