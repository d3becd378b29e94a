package fixedheap

import (
	"sync"
	"unsafe"
)

// Allocator is the minimal shape a generic Go container needs to consume a
// heap without depending on *HeapFile directly (spec §4.E): the interface
// every adapter below implements, and the one a container.String/
// container.Vector[T] is built against.
type Allocator interface {
	Alloc(n uintptr) unsafe.Pointer
	Free(p unsafe.Pointer, n uintptr)
}

// RecyclingAllocator delegates to malloc/free: the default adapter for
// values that may be individually freed and whose space should be
// recycled.
type RecyclingAllocator struct {
	Heap *HeapFile
}

func (a RecyclingAllocator) Alloc(n uintptr) unsafe.Pointer  { return a.Heap.Malloc(n) }
func (a RecyclingAllocator) Free(p unsafe.Pointer, n uintptr) { a.Heap.Free(p, n) }

// FastAllocator delegates Alloc to fast_malloc and never frees: arena-style
// allocation for values that are never individually reclaimed, e.g.
// control blocks of shared-ownership handles (spec §9).
type FastAllocator struct {
	Heap *HeapFile
}

func (a FastAllocator) Alloc(n uintptr) unsafe.Pointer { return a.Heap.FastMalloc(n) }
func (a FastAllocator) Free(unsafe.Pointer, uintptr)   {}

// GlobalAllocator resolves the heap through a process-global handle, for
// container element types that cannot carry an allocator reference of
// their own (spec §4.E, §9). Alloc returns nil if no global heap is set;
// callers that want the distinction from ordinary exhaustion should check
// Global() first.
type GlobalAllocator struct{}

var (
	globalMu   sync.RWMutex
	globalHeap *HeapFile
)

// SetGlobal installs the process-wide heap used by GlobalAllocator. Pass
// nil to clear it.
func SetGlobal(h *HeapFile) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHeap = h
}

// Global returns the process-wide heap installed by SetGlobal, or nil and
// ErrNoGlobalHeap if none has been set.
func Global() (*HeapFile, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalHeap == nil {
		return nil, ErrNoGlobalHeap
	}
	return globalHeap, nil
}

func (GlobalAllocator) Alloc(n uintptr) unsafe.Pointer {
	h, err := Global()
	if err != nil {
		return nil
	}
	return h.Malloc(n)
}

func (GlobalAllocator) Free(p unsafe.Pointer, n uintptr) {
	h, err := Global()
	if err != nil {
		return
	}
	h.Free(p, n)
}
