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

func TestEntityName_StringParseRoundTrip(t *testing.T) {
	n := EntityName{Kind: EntityKindClient, Num: 1234}
	require.Equal(t, "client.1234", n.String())

	got, ok := ParseEntityName(n.String())
	require.True(t, ok)
	require.Equal(t, n, got)
}

func TestParseEntityName_Malformed(t *testing.T) {
	cases := []string{"", "noseparator", "client.", ".123", "client.abc"}
	for _, c := range cases {
		_, ok := ParseEntityName(c)
		require.False(t, ok, c)
	}
}

func TestEntityName_HasDefaultID(t *testing.T) {
	require.True(t, EntityName{Num: DefaultID}.HasDefaultID())
	require.False(t, EntityName{Num: 0}.HasDefaultID())
}

func TestEntityInst_EncodeDecode(t *testing.T) {
	inst := EntityInst{Name: EntityName{Kind: EntityKindClient, Num: 7}, Addr: "10.0.0.1:6801/12345"}

	e := NewEncoder(0)
	e.PutEntityInst(inst)
	buf := append([]byte(nil), e.Bytes()...)
	e.Release()

	d := NewDecoder(buf)
	got, err := d.EntityInst()
	require.NoError(t, err)
	require.Equal(t, inst, got)
}
