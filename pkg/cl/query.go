// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"encoding/binary"
	"strings"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
)

// infoQuery is a native info call bound to an object and parameter.
type infoQuery func(value []byte) (int, native.ErrorCode)

// queryBytes implements the two-call "size-then-fill" protocol: the size returned by the second call
// must match the first one.
func queryBytes(call string, query infoQuery) []byte {
	size, code := query(nil)
	check(call, code)
	if size == 0 {
		return nil
	}
	value := make([]byte, size)
	filled, code := query(value)
	check(call, code)
	if filled != size {
		exceptions.Panicf("cl: %s returned inconsistent sizes: %d bytes, then %d bytes", call, size, filled)
	}
	return value
}

// queryString returns a NUL-terminated string info value.
func queryString(call string, query infoQuery) string {
	value := queryBytes(call, query)
	return strings.TrimRight(string(value), "\x00")
}

// queryFixed queries an info value that must have exactly size bytes.
func queryFixed(call string, size int, query infoQuery) []byte {
	value := make([]byte, size)
	filled, code := query(value)
	check(call, code)
	if filled != size {
		exceptions.Panicf("cl: %s returned %d bytes, expected %d", call, filled, size)
	}
	return value
}

func queryUint32(call string, query infoQuery) uint32 {
	return binary.NativeEndian.Uint32(queryFixed(call, 4, query))
}

func queryUint64(call string, query infoQuery) uint64 {
	return binary.NativeEndian.Uint64(queryFixed(call, 8, query))
}

const handleSize = int(unsafe.Sizeof(uintptr(0)))

func decodeHandle(value []byte) uintptr {
	if handleSize == 8 {
		return uintptr(binary.NativeEndian.Uint64(value))
	}
	return uintptr(binary.NativeEndian.Uint32(value))
}

// queryHandle returns a pointer-sized info value (a handle or a size_t).
func queryHandle(call string, query infoQuery) uintptr {
	return decodeHandle(queryFixed(call, handleSize, query))
}

// queryHandles returns an array of handles, using the two-call protocol.
func queryHandles[H ~uintptr](call string, query infoQuery) []H {
	value := queryBytes(call, query)
	if len(value)%handleSize != 0 {
		exceptions.Panicf("cl: %s returned %d bytes, not a multiple of the handle size %d", call, len(value), handleSize)
	}
	handles := make([]H, len(value)/handleSize)
	for i := range handles {
		handles[i] = H(decodeHandle(value[i*handleSize:]))
	}
	return handles
}

// enumerate implements the two-call protocol of GetPlatformIDs, GetDeviceIDs and CreateKernelsInProgram.
// The notFound codes are interpreted as an empty list.
func enumerate[H any](call string, list func(handles []H) (int, native.ErrorCode), notFound ...native.ErrorCode) []H {
	n, code := list(nil)
	for _, nf := range notFound {
		if code == nf {
			return nil
		}
	}
	check(call, code)
	if n == 0 {
		return nil
	}
	handles := make([]H, n)
	filled, code := list(handles)
	check(call, code)
	if filled != n {
		exceptions.Panicf("cl: %s returned inconsistent counts: %d, then %d", call, n, filled)
	}
	return handles
}
