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
	"encoding/binary"

	"github.com/cubefs/mds-sessionmap/internal/util"
)

// frameHeaderLen is struct_v(1) + compat_v(1) + body length(4).
const frameHeaderLen = 1 + 1 + 4

// Encoder appends versioned binary frames and primitive fields to a growable
// buffer, mirroring the ENCODE_START/ENCODE_FINISH preamble used by the
// on-disk format this package is compatible with: every frame carries its
// own (struct_v, compat_v, length) header so that older decoders can skip
// frames they don't understand and newer ones can refuse frames encoded
// with an incompatible struct_v.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with a pooled backing buffer of the given
// size hint.
func NewEncoder(sizeHint int) *Encoder {
	if sizeHint <= 0 {
		sizeHint = 64
	}
	return &Encoder{buf: util.GetBuffer(sizeHint)[:0]}
}

// StartFrame writes a placeholder frame header and returns a token that must
// be passed to FinishFrame once the frame body has been written.
func (e *Encoder) StartFrame(structV, compatV uint8) int {
	pos := len(e.buf)
	e.buf = append(e.buf, structV, compatV, 0, 0, 0, 0)
	return pos
}

// FinishFrame backpatches the length field of the frame started at tok.
func (e *Encoder) FinishFrame(tok int) {
	bodyLen := len(e.buf) - tok - frameHeaderLen
	binary.BigEndian.PutUint32(e.buf[tok+2:tok+6], uint32(bodyLen))
}

func (e *Encoder) PutUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) PutUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutBytes(v []byte) {
	e.PutUint32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *Encoder) PutString(v string) {
	e.PutBytes(util.StringToBytes(v))
}

// PutStringSet encodes a set of strings as a count followed by each entry.
func (e *Encoder) PutStringSet(v map[string]struct{}) {
	e.PutUint32(uint32(len(v)))
	for s := range v {
		e.PutString(s)
	}
}

// PutStringMap encodes a string->string map as a count followed by
// key/value pairs.
func (e *Encoder) PutStringMap(v map[string]string) {
	e.PutUint32(uint32(len(v)))
	for k, val := range v {
		e.PutString(k)
		e.PutString(val)
	}
}

// PutUint64Set encodes a set of uint64s as a count followed by each entry.
func (e *Encoder) PutUint64Set(v map[uint64]struct{}) {
	e.PutUint32(uint32(len(v)))
	for x := range v {
		e.PutUint64(x)
	}
}

// Bytes returns the encoded buffer. The Encoder must not be reused after
// calling Release unless Bytes has already been copied out.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Release returns the backing buffer to the pool. Bytes() must not be used
// afterwards.
func (e *Encoder) Release() {
	util.PutBuffer(e.buf)
	e.buf = nil
}

// Decoder walks a versioned binary encoding produced by Encoder.
type Decoder struct {
	data []byte
	off  int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Len returns the number of unread bytes.
func (d *Decoder) Len() int {
	return len(d.data) - d.off
}

// Offset returns the current read position, for callers that need to
// rewind (the legacy old-format duplicate-name recovery path).
func (d *Decoder) Offset() int {
	return d.off
}

// Seek repositions the read cursor to an offset previously returned by
// Offset.
func (d *Decoder) Seek(off int) {
	d.off = off
}

func (d *Decoder) AtEnd() bool {
	return d.off >= len(d.data)
}

// StartFrame reads the frame header, verifies struct_v against
// compatVSupported (the lowest struct_v this decoder can read), and returns
// the struct_v found plus the absolute offset where the frame body ends.
func (d *Decoder) StartFrame(compatVSupported uint8) (structV uint8, end int, err error) {
	if d.Len() < frameHeaderLen {
		return 0, 0, ErrMalformedInput
	}
	structV = d.data[d.off]
	compatV := d.data[d.off+1]
	bodyLen := binary.BigEndian.Uint32(d.data[d.off+2 : d.off+6])
	d.off += frameHeaderLen

	if structV < compatV {
		return 0, 0, ErrMalformedInput
	}
	if compatVSupported > 0 && structV < compatVSupported {
		return 0, 0, ErrMalformedInput
	}
	end = d.off + int(bodyLen)
	if end > len(d.data) {
		return 0, 0, ErrMalformedInput
	}
	return structV, end, nil
}

// FinishFrame advances the cursor to the frame's recorded end, skipping any
// trailing fields this decoder's struct_v doesn't know about (forward
// compatibility, matching DECODE_FINISH).
func (d *Decoder) FinishFrame(end int) error {
	if end < d.off || end > len(d.data) {
		return ErrMalformedInput
	}
	d.off = end
	return nil
}

func (d *Decoder) Uint8() (uint8, error) {
	if d.Len() < 1 {
		return 0, ErrMalformedInput
	}
	v := d.data[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) Uint32() (uint32, error) {
	if d.Len() < 4 {
		return 0, ErrMalformedInput
	}
	v := binary.BigEndian.Uint32(d.data[d.off : d.off+4])
	d.off += 4
	return v, nil
}

func (d *Decoder) Uint64() (uint64, error) {
	if d.Len() < 8 {
		return 0, ErrMalformedInput
	}
	v := binary.BigEndian.Uint64(d.data[d.off : d.off+8])
	d.off += 8
	return v, nil
}

func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if d.Len() < int(n) {
		return nil, ErrMalformedInput
	}
	v := d.data[d.off : d.off+int(n)]
	d.off += int(n)
	return v, nil
}

func (d *Decoder) String() (string, error) {
	b, err := d.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) StringSet() (map[string]struct{}, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.String()
		if err != nil {
			return nil, err
		}
		out[s] = struct{}{}
	}
	return out, nil
}

func (d *Decoder) StringMap() (map[string]string, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.String()
		if err != nil {
			return nil, err
		}
		v, err := d.String()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (d *Decoder) Uint64Set() (map[uint64]struct{}, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]struct{}, n)
	for i := uint32(0); i < n; i++ {
		x, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		out[x] = struct{}{}
	}
	return out, nil
}
