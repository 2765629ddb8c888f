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

func TestSessionInfo_EncodeDecodeRoundTrip(t *testing.T) {
	info := NewSessionInfo(EntityInst{Name: EntityName{Kind: EntityKindClient, Num: 1}, Addr: "1.2.3.4:0/1"})
	info.PreallocInos[10] = struct{}{}
	info.PreallocInos[11] = struct{}{}
	info.UsedInos[10] = struct{}{}
	info.CompletedRequests[99] = struct{}{}
	info.ClientMetadata["hostname"] = "box-a"

	e := NewEncoder(0)
	info.Encode(e)
	buf := append([]byte(nil), e.Bytes()...)
	e.Release()

	got := &SessionInfo{}
	require.NoError(t, got.Decode(NewDecoder(buf)))
	require.Equal(t, info, got)
}

func TestSessionInfo_DecodeRejectsTruncated(t *testing.T) {
	got := &SessionInfo{}
	require.Error(t, got.Decode(NewDecoder([]byte{1, 2, 3})))
}
