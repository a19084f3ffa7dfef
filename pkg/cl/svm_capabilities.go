// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"strings"

	"github.com/gomlx/clrt/pkg/cl/native"
)

// SvmCapabilities are the shared virtual memory capabilities of a device.
type SvmCapabilities native.SvmCapabilities

// CoarseGrainBuffer returns whether coarse-grained buffers are supported: the host can only access
// them between map and unmap.
func (c SvmCapabilities) CoarseGrainBuffer() bool {
	return c&SvmCapabilities(native.SvmCoarseGrainBuffer) != 0
}

// FineGrainBuffer returns whether fine-grained buffers are supported: host and device share the memory.
func (c SvmCapabilities) FineGrainBuffer() bool {
	return c&SvmCapabilities(native.SvmFineGrainBuffer) != 0
}

// FineGrainSystem returns whether any host memory can be shared with the device.
func (c SvmCapabilities) FineGrainSystem() bool {
	return c&SvmCapabilities(native.SvmFineGrainSystem) != 0
}

// Atomics returns whether atomic operations are supported on fine-grained memory.
func (c SvmCapabilities) Atomics() bool {
	return c&SvmCapabilities(native.SvmAtomics) != 0
}

// Supported returns whether the device supports any kind of SVM.
func (c SvmCapabilities) Supported() bool {
	return c.CoarseGrainBuffer() || c.FineGrainBuffer() || c.FineGrainSystem()
}

// FineGrained returns whether SVM allocations are created fine-grained, and hence directly visible
// to the host: maps and unmaps don't need to be issued to the device.
func (c SvmCapabilities) FineGrained() bool {
	return c.FineGrainBuffer()
}

// String implements fmt.Stringer, e.g. "Coarse + Fine-Buf + Atomics", or "None".
func (c SvmCapabilities) String() string {
	var parts []string
	if c.CoarseGrainBuffer() {
		parts = append(parts, "Coarse")
	}
	if c.FineGrainBuffer() {
		parts = append(parts, "Fine-Buf")
	}
	if c.FineGrainSystem() {
		parts = append(parts, "Fine-Sys")
	}
	if c.Atomics() {
		parts = append(parts, "Atomics")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, " + ")
}
