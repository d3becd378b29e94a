// Package container holds the minimal persistent collection types used to
// exercise the heap's allocator adapters end to end. They are explicitly
// not part of the core: the root object type and any containers built on
// top of it are a caller concern (spec §1 "out of scope"), but something
// has to walk the recycling adapter with a real pointer graph to make that
// contract testable.
package container

import (
	"unsafe"

	"github.com/fixedheap/fixedheap"
)

// String is a length-prefixed persistent string: a 4-byte length followed
// immediately by the raw bytes, allocated through a fixedheap.Allocator.
// Grounded in mmapforge/store_write.go's WriteString encoding (length
// prefix, no separate zero terminator needed since the length is exact).
type String struct {
	ptr uintptr
}

// NewString allocates space for s through a and copies it in. Returns the
// zero String if the allocator is exhausted.
func NewString(a fixedheap.Allocator, s string) String {
	n := uintptr(len(s))
	p := a.Alloc(4 + n)
	if p == nil {
		return String{}
	}
	*(*uint32)(p) = uint32(len(s))
	if n > 0 {
		dst := unsafe.Slice((*byte)(unsafe.Add(p, 4)), n)
		copy(dst, s)
	}
	return String{ptr: uintptr(p)}
}

// Ptr returns the string's heap address, 0 if it was never constructed.
// Persists across a close/reopen of the same heap file, since the address
// is absolute and the file always remaps at the same base.
func (s String) Ptr() uintptr { return s.ptr }

// Len returns the encoded length without materializing the string.
func (s String) Len() int {
	if s.ptr == 0 {
		return 0
	}
	return int(*(*uint32)(unsafe.Pointer(s.ptr)))
}

// String decodes and copies the bytes out as a Go string.
func (s String) String() string {
	n := s.Len()
	if n == 0 {
		return ""
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(s.ptr+4)), n)
	return string(b)
}

// Free releases the string's storage back to a's free list.
func (s String) Free(a fixedheap.Allocator) {
	if s.ptr == 0 {
		return
	}
	a.Free(unsafe.Pointer(s.ptr), 4+uintptr(s.Len()))
}

// Vector is a growable persistent slice of fixed-size elements T,
// reallocating through the same allocator on growth. Grounded in
// original_source/include/persist.h's map_data<T>, simplified to the one
// shape spec §8 scenario 5 needs: a vector whose elements survive a
// close/reopen at their original addresses.
type Vector[T any] struct {
	ptr uintptr
	len uint32
	cap uint32
}

func elemSize[T any]() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

// NewVector allocates room for capacity elements. Returns the zero Vector
// if the allocator is exhausted or capacity is 0.
func NewVector[T any](a fixedheap.Allocator, capacity int) Vector[T] {
	if capacity <= 0 {
		return Vector[T]{}
	}
	p := a.Alloc(elemSize[T]() * uintptr(capacity))
	if p == nil {
		return Vector[T]{}
	}
	return Vector[T]{ptr: uintptr(p), cap: uint32(capacity)}
}

// Len returns the number of elements appended so far.
func (v *Vector[T]) Len() int { return int(v.len) }

// Cap returns the number of elements the current allocation can hold
// before Append must grow.
func (v *Vector[T]) Cap() int { return int(v.cap) }

// Ptr returns the backing storage's heap address.
func (v *Vector[T]) Ptr() uintptr { return v.ptr }

// At returns the element at index i. Panics on out-of-range i, matching
// the zero-defense the original's map_data gave to index access.
func (v *Vector[T]) At(i int) T {
	if i < 0 || i >= int(v.len) {
		panic("container: Vector index out of range")
	}
	return *(*T)(unsafe.Pointer(v.ptr + elemSize[T]()*uintptr(i)))
}

// Append adds val, growing the backing allocation through a if the current
// capacity is exhausted. Returns false if a growth allocation failed,
// leaving the vector unchanged.
func (v *Vector[T]) Append(a fixedheap.Allocator, val T) bool {
	sz := elemSize[T]()
	if v.len >= v.cap {
		newCap := v.cap * 2
		if newCap == 0 {
			newCap = 1
		}
		p := a.Alloc(sz * uintptr(newCap))
		if p == nil {
			return false
		}
		if v.ptr != 0 {
			src := unsafe.Slice((*byte)(unsafe.Pointer(v.ptr)), sz*uintptr(v.len))
			dst := unsafe.Slice((*byte)(p), sz*uintptr(v.len))
			copy(dst, src)
			a.Free(unsafe.Pointer(v.ptr), sz*uintptr(v.cap))
		}
		v.ptr = uintptr(p)
		v.cap = newCap
	}

	elem := (*T)(unsafe.Pointer(v.ptr + sz*uintptr(v.len)))
	*elem = val
	v.len++
	return true
}
