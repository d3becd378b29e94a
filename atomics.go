package fixedheap

import "sync/atomic"

// Thin wrappers so mutex_unix.go and mutex_fallback.go share one vocabulary
// regardless of which platform backs the lock.
func atomicCAS32(addr *uint32, old, new uint32) bool { return atomic.CompareAndSwapUint32(addr, old, new) }
func atomicSwap32(addr *uint32, new uint32) uint32    { return atomic.SwapUint32(addr, new) }
func atomicLoad32(addr *uint32) uint32                { return atomic.LoadUint32(addr) }
