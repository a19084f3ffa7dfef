// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"io"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// mapState is the state shared by the 3 kinds of SVM maps.
type mapState struct {
	api    native.API
	queue  native.Queue
	blob   *SvmBlob
	span   span
	flags  native.MapFlags
	data   []byte
	mapped atomic.Bool
}

// SvmMapping is implemented by the 3 kinds of maps: *SvmReadMap, *SvmReadWriteMap and *SvmWriteMap.
// It is consumed by CommandQueue.Unmap.
type SvmMapping interface {
	// Len returns the number of bytes mapped.
	Len() int

	// IsMapped returns whether the map is still active.
	IsMapped() bool

	state() *mapState
}

// SvmReadableMap is a map whose contents can be read: *SvmReadMap and *SvmReadWriteMap.
type SvmReadableMap interface {
	SvmMapping
	io.ReaderAt
	readable()
}

// SvmWritableMap is a map whose contents can be written: *SvmReadWriteMap and *SvmWriteMap.
type SvmWritableMap interface {
	SvmMapping
	io.WriterAt
	writable()
}

// SvmReadMap is a host map of an SVM region that can only be read.
type SvmReadMap struct{ *mapState }

// SvmReadWriteMap is a host map of an SVM region that can be read and written.
type SvmReadWriteMap struct{ *mapState }

// SvmWriteMap is a host map of an SVM region that is only written: the previous contents of the region
// are discarded, so the host view starts with undefined contents. See UnsafeBytes.
type SvmWriteMap struct{ *mapState }

var (
	_ SvmReadableMap = (*SvmReadMap)(nil)
	_ SvmReadableMap = (*SvmReadWriteMap)(nil)
	_ SvmWritableMap = (*SvmReadWriteMap)(nil)
	_ SvmWritableMap = (*SvmWriteMap)(nil)
)

func (m *SvmReadMap) readable()      {}
func (m *SvmReadWriteMap) readable() {}
func (m *SvmReadWriteMap) writable() {}
func (m *SvmWriteMap) writable()     {}

func (s *mapState) state() *mapState { return s }

// Len returns the number of bytes mapped.
func (s *mapState) Len() int { return s.span.end - s.span.start }

// IsMapped returns whether the map is still active.
func (s *mapState) IsMapped() bool { return s.mapped.Load() }

// bytes returns the host view, panicking if it was unmapped.
func (s *mapState) bytes() []byte {
	if !s.mapped.Load() {
		exceptions.Panicf("cl: SVM map used after Unmap")
	}
	return s.data
}

func (s *mapState) readAt(p []byte, off int64) (int, error) {
	data := s.bytes()
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *mapState) writeAt(p []byte, off int64) (int, error) {
	data := s.bytes()
	if off < 0 || off > int64(len(data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (s *mapState) finalize() {
	if s.mapped.Load() {
		klog.Errorf("cl: SVM map of %d bytes garbage collected while still mapped: the blob can't be freed anymore", s.Len())
	}
}

// ReadAt implements io.ReaderAt.
func (m *SvmReadMap) ReadAt(p []byte, off int64) (int, error) { return m.readAt(p, off) }

// ReadAt implements io.ReaderAt.
func (m *SvmReadWriteMap) ReadAt(p []byte, off int64) (int, error) { return m.readAt(p, off) }

// WriteAt implements io.WriterAt.
func (m *SvmReadWriteMap) WriteAt(p []byte, off int64) (int, error) { return m.writeAt(p, off) }

// WriteAt implements io.WriterAt.
func (m *SvmWriteMap) WriteAt(p []byte, off int64) (int, error) { return m.writeAt(p, off) }

// Bytes returns the host view of the mapped region, valid until Unmap.
func (m *SvmReadWriteMap) Bytes() []byte { return m.bytes() }

// UnsafeBytes returns the host view of a write-only map, valid until Unmap.
//
// It is unsafe to read it before writing it: the contents are undefined.
func (m *SvmWriteMap) UnsafeBytes() []byte { return m.bytes() }

// Map maps the region for reading, after the node wait list, and blocks until the map is complete.
func (q *CommandQueue) Map(region SvmRegion, node *EventNode) *SvmReadMap {
	return &SvmReadMap{q.mapRegion("Map", region, native.MapRead, node)}
}

// MapReadWrite maps the region for reading and writing, after the node wait list, and blocks until the map
// is complete.
func (q *CommandQueue) MapReadWrite(region SvmRegion, node *EventNode) *SvmReadWriteMap {
	return &SvmReadWriteMap{q.mapRegion("MapReadWrite", region, native.MapRead|native.MapWrite, node)}
}

// MapWriteInvalidate maps the region for writing only, after the node wait list, and blocks until the map
// is complete. The device contents are not transferred to the host.
func (q *CommandQueue) MapWriteInvalidate(region SvmRegion, node *EventNode) *SvmWriteMap {
	return &SvmWriteMap{q.mapRegion("MapWriteInvalidate", region, native.MapWriteInvalidateRegion, node)}
}

func (q *CommandQueue) mapRegion(call string, region SvmRegion, flags native.MapFlags, node *EventNode) *mapState {
	blob, s := region.svmSpan()
	blob.checkContext(call, q)
	blob.addMap(call, s)
	succeeded := false
	defer func() {
		if !succeeded {
			blob.removeMap(s)
		}
	}()

	ptr := blob.UnsafePointer()
	size := s.end - s.start
	m := &mapState{api: q.api, queue: q.UnsafeRaw(), blob: blob, span: s, flags: flags}
	if size > 0 {
		ptr = unsafe.Add(ptr, s.start)
		m.data = unsafe.Slice((*byte)(ptr), size)
	}
	if size == 0 || q.fineGrain {
		q.marker(call, node)
	} else {
		q.submit("EnqueueSVMMap", node, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
			return q.api.EnqueueSVMMap(raw, false, flags, ptr, size, wait, record)
		})
	}
	q.Finish()
	m.mapped.Store(true)
	runtime.SetFinalizer(m, (*mapState).finalize)
	succeeded = true
	return m
}

// Unmap ends the host map m, after the node wait list. It must be called on the queue that created the map.
//
// The map accessors panic after Unmap.
func (q *CommandQueue) Unmap(m SvmMapping, node *EventNode) {
	s := m.state()
	if !s.mapped.Load() {
		exceptions.Panicf("cl.Unmap: SVM map already unmapped")
	}
	if s.api != q.api || s.queue != q.UnsafeRaw() {
		exceptions.Panicf("cl.Unmap: SVM map was created on another command queue")
	}
	size := s.Len()
	if size == 0 || q.fineGrain {
		q.marker("Unmap", node)
	} else {
		ptr := unsafe.Pointer(&s.data[0])
		q.submit("EnqueueSVMUnmap", node, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
			return q.api.EnqueueSVMUnmap(raw, ptr, wait, record)
		})
	}
	if !s.mapped.CompareAndSwap(true, false) {
		exceptions.Panicf("cl.Unmap: SVM map unmapped concurrently")
	}
	runtime.SetFinalizer(s, nil)
	s.blob.removeMap(s.span)
}

// MapSlice returns the host view of a read-write map as a slice of T, valid until Unmap.
//
// It panics if the map length is not a multiple of the size of T.
func MapSlice[T any](m *SvmReadWriteMap) []T {
	data := m.bytes()
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 || len(data)%elemSize != 0 {
		exceptions.Panicf("cl.MapSlice[%T]: map of %d bytes is not a multiple of the element size %d", zero, len(data), elemSize)
	}
	if len(data) == 0 {
		return nil
	}
	if uintptr(unsafe.Pointer(&data[0]))%unsafe.Alignof(zero) != 0 {
		exceptions.Panicf("cl.MapSlice[%T]: map is not aligned to the element type", zero)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/elemSize)
}

// CopyFromMap copies the contents of a readable map to dst, whose size in bytes must be exactly m.Len().
func CopyFromMap[T any](dst []T, m SvmReadableMap) {
	ptr, size := hostBytes(dst)
	data := m.state().bytes()
	if size != len(data) {
		exceptions.Panicf("cl.CopyFromMap: destination has %d bytes, map has %d bytes", size, len(data))
	}
	if size > 0 {
		copy(unsafe.Slice((*byte)(ptr), size), data)
	}
}

// CopyToMap copies src to a writable map, whose size in bytes must be exactly m.Len().
func CopyToMap[T any](m SvmWritableMap, src []T) {
	ptr, size := hostBytes(src)
	data := m.state().bytes()
	if size != len(data) {
		exceptions.Panicf("cl.CopyToMap: source has %d bytes, map has %d bytes", size, len(data))
	}
	if size > 0 {
		copy(data, unsafe.Slice((*byte)(ptr), size))
	}
}
