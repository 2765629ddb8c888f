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
	"strconv"
	"strings"
)

// EntityKind identifies the class of a cluster participant that can hold a
// session. The session map only ever deals with EntityKindClient, but the
// name is parsed generically the way the on-disk format requires.
type EntityKind string

const (
	EntityKindClient EntityKind = "client"
	EntityKindMDS    EntityKind = "mds"
	EntityKindMON    EntityKind = "mon"
	EntityKindOSD    EntityKind = "osd"
)

// DefaultID is the well-known numeric id that means "no specific id was
// set", used by (*Session).updateHumanName to decide whether an entity_id
// from client metadata is worth appending to the human-readable name.
const DefaultID = ^uint64(0)

// EntityName is a stable, parseable identifier: a kind plus a numeric id.
// It is the primary key of the session map and, once assigned, never
// changes for the lifetime of a session.
type EntityName struct {
	Kind EntityKind
	Num  uint64
}

// String renders the textual form used as the OMAP key: "kind.id".
func (n EntityName) String() string {
	return string(n.Kind) + "." + strconv.FormatUint(n.Num, 10)
}

// ParseEntityName parses the textual form produced by String. A malformed
// string (missing separator, non-numeric id) is reported by a false second
// result rather than by panicking, so callers decoding untrusted on-disk
// keys can treat it as ErrMalformedInput.
func ParseEntityName(s string) (EntityName, bool) {
	idx := strings.LastIndexByte(s, '.')
	if idx <= 0 || idx == len(s)-1 {
		return EntityName{}, false
	}
	num, err := strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return EntityName{}, false
	}
	return EntityName{Kind: EntityKind(s[:idx]), Num: num}, true
}

// HasDefaultID reports whether n carries the sentinel "no id" value.
func (n EntityName) HasDefaultID() bool {
	return n.Num == DefaultID
}

func (e *Encoder) PutEntityName(n EntityName) {
	e.PutString(string(n.Kind))
	e.PutUint64(n.Num)
}

func (d *Decoder) EntityName() (EntityName, error) {
	kind, err := d.String()
	if err != nil {
		return EntityName{}, err
	}
	num, err := d.Uint64()
	if err != nil {
		return EntityName{}, err
	}
	return EntityName{Kind: EntityKind(kind), Num: num}, nil
}

// EntityInst pairs an EntityName with the client's current network
// address. The address is mutable across reconnects; the name is not.
type EntityInst struct {
	Name EntityName
	Addr string
}

func (e *Encoder) PutEntityInst(inst EntityInst) {
	e.PutEntityName(inst.Name)
	e.PutString(inst.Addr)
}

func (d *Decoder) EntityInst() (EntityInst, error) {
	name, err := d.EntityName()
	if err != nil {
		return EntityInst{}, err
	}
	addr, err := d.String()
	if err != nil {
		return EntityInst{}, err
	}
	return EntityInst{Name: name, Addr: addr}, nil
}
