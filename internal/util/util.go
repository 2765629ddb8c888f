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

// Package util collects small helpers used by the session-map codec: pooled
// byte buffers for encode/decode, and zero-copy string/byte conversions.
package util

import (
	"bytes"
	"reflect"
	"unsafe"

	"github.com/cubefs/cubefs/blobstore/util/bytespool"
)

// StringToBytes reinterprets s as a []byte without copying. The result must
// not be mutated and must not outlive s.
func StringToBytes(s string) []byte {
	sh := (*reflect.StringHeader)(unsafe.Pointer(&s))
	bh := reflect.SliceHeader{
		Data: sh.Data,
		Len:  sh.Len,
		Cap:  sh.Len,
	}
	return *(*[]byte)(unsafe.Pointer(&bh)) //nolint: govet
}

// BytesToString reinterprets b as a string without copying.
func BytesToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// GetBuffer returns a pooled byte slice of at least size bytes.
func GetBuffer(size int) []byte {
	return bytespool.Alloc(size)
}

// PutBuffer returns a slice obtained from GetBuffer to the pool.
func PutBuffer(b []byte) {
	bytespool.Free(b)
}

// GetBufferWriter returns a pooled bytes.Buffer-backed writer for encoding.
func GetBufferWriter(size int) *bytes.Buffer {
	return bytes.NewBuffer(bytespool.Alloc(size)[:0])
}

// PutBufferWriter returns a writer obtained from GetBufferWriter to the pool.
func PutBufferWriter(br *bytes.Buffer) {
	bytespool.Free(br.Bytes())
}
