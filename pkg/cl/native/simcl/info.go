// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"encoding/binary"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
)

// writeInfo implements the "size-then-fill" protocol of the C API: the size is always returned,
// and if dst is not nil the value is copied into it, which must be large enough.
func writeInfo(dst, value []byte) (int, native.ErrorCode) {
	if dst != nil {
		if len(dst) < len(value) {
			return 0, native.InvalidValue
		}
		copy(dst, value)
	}
	return len(value), native.Success
}

// stringInfo encodes a NUL-terminated string.
func stringInfo(s string) []byte {
	return append([]byte(s), 0)
}

func uint32Info(v uint32) []byte {
	return binary.NativeEndian.AppendUint32(nil, v)
}

func uint64Info(v uint64) []byte {
	return binary.NativeEndian.AppendUint64(nil, v)
}

// handleInfo encodes handles (and size_t) as pointer-sized values.
func handleInfo(handles ...uintptr) []byte {
	buf := make([]byte, 0, len(handles)*int(unsafe.Sizeof(uintptr(0))))
	for _, h := range handles {
		if unsafe.Sizeof(uintptr(0)) == 8 {
			buf = binary.NativeEndian.AppendUint64(buf, uint64(h))
		} else {
			buf = binary.NativeEndian.AppendUint32(buf, uint32(h))
		}
	}
	return buf
}
