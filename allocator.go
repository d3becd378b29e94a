package fixedheap

import (
	"fmt"
	"os"
	"unsafe"
)

func (hf *HeapFile) memMutex() processMutex  { return newProcessMutex(hf.hdr.memMutexWord()) }
func (hf *HeapFile) userMutex() processMutex { return newProcessMutex(hf.hdr.userMutexWord()) }

// Lock acquires the user mutex: a coarse transaction lock exposed to
// callers for their own data, never taken by the core itself (spec §5). ms
// is accepted for interface symmetry with the reference design but
// ignored, the same as the reference implementation: this blocks
// indefinitely (spec §5 Cancellation and timeouts).
func (hf *HeapFile) Lock(ms int) { hf.userMutex().Lock() }

// Unlock releases the user mutex.
func (hf *HeapFile) Unlock() { hf.userMutex().Unlock() }

// TryLock attempts to acquire the user mutex without blocking.
func (hf *HeapFile) TryLock() bool { return hf.userMutex().TryLock() }

// Wait and Signal are the header's reserved condition-variable operations.
// The reference implementation never implemented them; this module leaves
// them as no-ops per spec §5/§9.
func (hf *HeapFile) Wait(ms int) bool { return false }
func (hf *HeapFile) Signal()          {}

// Root returns the address immediately after the header: the first byte of
// caller data (spec §4.D).
func (hf *HeapFile) Root() uintptr { return hf.hdr.root() }

// InitRoot reserves storage for the root object of type T the first time a
// heap is used, then returns it. Grounded in persist.h's map_data<T>
// constructor: "if(mem.empty()) new(file) value_type(...)", where placement
// new is just operator new(size, file) calling file.malloc(size) — the
// root is not special-cased storage, it is simply the first allocation a
// freshly created (or Clear()'d) heap ever makes, which is why Empty()
// guarantees Root() and that allocation's address coincide. On a heap that
// already has data, no allocation is attempted; Root() is reinterpreted as
// T directly. Returns nil if the reservation allocation fails.
func InitRoot[T any](hf *HeapFile, a Allocator) *T {
	var zero T
	if hf.Empty() {
		if a.Alloc(unsafe.Sizeof(zero)) == nil {
			return nil
		}
	}
	return (*T)(unsafe.Pointer(hf.Root()))
}

// Empty reports whether nothing has been allocated since creation.
func (hf *HeapFile) Empty() bool { return hf.hdr.top().Load() == hf.hdr.root() }

// Size returns bytes allocated since creation (top - root), independent of
// free-list recycling.
func (hf *HeapFile) Size() uint64 { return uint64(hf.hdr.top().Load() - hf.hdr.root()) }

// Capacity returns (end-top) + (max-current): bytes immediately available
// to bump allocation plus bytes growth could still add (spec §4.D).
func (hf *HeapFile) Capacity() uint64 {
	free := uint64(hf.hdr.end().Load() - hf.hdr.top().Load())
	return free + (hf.hdr.maxSize() - hf.hdr.currentSize())
}

// Limit reads the growth ceiling recorded in the header (see SetLimit for
// how it relates to MaxLen).
func (hf *HeapFile) Limit() uint64 { return hf.hdr.maxSize() }

// SetLimit writes the growth ceiling recorded in the header. It only
// updates the header field: it does not grow the mapping, does not extend
// the VA placeholder reserved at Open time, and does not change MaxLen.
// Malloc and FastMalloc check the header value before attempting growth,
// but grow itself stays clamped to MaxLen, the ceiling fixed when the file
// was opened, so a raised limit allows further growth only after the file
// is reopened.
func (hf *HeapFile) SetLimit(n uint64) { hf.hdr.setMaxSize(n) }

// Malloc allocates n bytes, first trying the free list for n's size class
// and otherwise bumping top, growing the mapping if necessary (spec §4.D).
// Returns nil on exhaustion; never panics.
func (hf *HeapFile) Malloc(n uintptr) unsafe.Pointer {
	if n == 0 {
		// Sentinel: current top, never dereferenced, never advanced.
		// Repeated zero-sized requests therefore alias (spec §9 Open
		// Questions) — preserved verbatim, not "fixed".
		return unsafe.Pointer(hf.hdr.top().Load())
	}

	mm := hf.memMutex()
	mm.Lock()
	defer mm.Unlock()

	cell, rounded := objectCell(n)
	if head := *hf.hdr.freeListHead(cell); head != 0 {
		next := *(*uintptr)(unsafe.Pointer(head))
		*hf.hdr.freeListHead(cell) = next
		return unsafe.Pointer(head)
	}

	top := hf.hdr.top().Load()
	newTop := top + rounded
	if newTop > hf.hdr.end().Load() {
		if hf.hdr.currentSize() >= hf.hdr.maxSize() {
			return nil
		}
		if err := hf.grow(uint64(newTop - hf.base)); err != nil {
			return nil
		}
		if newTop > hf.hdr.end().Load() {
			return nil
		}
	}

	hf.hdr.top().Store(newTop)
	return unsafe.Pointer(top)
}

// Free returns block to its size class's free list. A block outside
// [base, end) is tolerated with a diagnostic rather than rejected (spec
// §4.D, §9 Open Questions — preserved verbatim, since some standard
// container call paths free with a stale pointer or a zero size).
func (hf *HeapFile) Free(p unsafe.Pointer, n uintptr) {
	if n == 0 || p == nil {
		return
	}
	addr := uintptr(p)
	end := hf.hdr.end().Load()
	if addr < hf.base || addr >= end {
		fmt.Fprintf(os.Stderr, "fixedheap: free: block %#x out of range [%#x, %#x)\n", addr, hf.base, end)
		return
	}

	mm := hf.memMutex()
	mm.Lock()
	defer mm.Unlock()

	cell, _ := objectCell(n)
	head := hf.hdr.freeListHead(cell)
	*(*uintptr)(p) = *head
	*head = addr
}

// FastMalloc is the bump-only variant: lock-free on the happy path (a
// single atomic add to top), taking the memory mutex only to attempt
// growth when the add overruns end, and rolling top back by the same
// amount on failure (spec §4.D). Freed blocks from this path are never
// recycled.
func (hf *HeapFile) FastMalloc(n uintptr) unsafe.Pointer {
	rounded := align8(n)
	if rounded == 0 {
		return unsafe.Pointer(hf.hdr.top().Load())
	}

	top := hf.hdr.top()
	newTop := top.Add(rounded)
	if newTop <= hf.hdr.end().Load() {
		return unsafe.Pointer(newTop - rounded)
	}

	mm := hf.memMutex()
	mm.Lock()
	defer mm.Unlock()

	if newTop > hf.hdr.end().Load() {
		if hf.hdr.currentSize() < hf.hdr.maxSize() {
			_ = hf.grow(uint64(newTop - hf.base))
		}
		if newTop > hf.hdr.end().Load() {
			top.Add(negateUintptr(rounded))
			return nil
		}
	}
	return unsafe.Pointer(newTop - rounded)
}

// Clear resets top to root and empties every free list. It does not shrink
// the mapping and does not run destructors on whatever the root object
// held (spec §4.D): the caller must have abandoned any references first.
func (hf *HeapFile) Clear() {
	mm := hf.memMutex()
	mm.Lock()
	defer mm.Unlock()

	hf.hdr.top().Store(hf.hdr.root())
	for c := 0; c < NumSizeClasses; c++ {
		*hf.hdr.freeListHead(c) = 0
	}
}

// negateUintptr returns the value that, added to n, yields 0 (mod 2^bits):
// the standard two's-complement trick for an atomic subtract expressed as
// an atomic add.
func negateUintptr(n uintptr) uintptr { return ^(n - 1) }
