package fixedheap

import (
	"sync/atomic"
	"unsafe"
)

// Header field byte offsets, relative to the mapped base address. The
// layout is fixed (spec §3): it is never serialized/deserialized like
// mmapforge's columnar record header was, because the whole point of this
// format is that it IS the in-memory representation — see store.go's
// recordCountPtr/capacityPtr for the teacher's precedent of deriving
// *atomic.T pointers from explicit byte offsets instead of overlaying a Go
// struct (which has compiler-chosen, non-portable padding) onto raw bytes.
const (
	offMagic         = 0
	offApplicationID = 4
	offMajorVersion  = 8
	offMinorVersion  = 10
	offHardwareID    = 12
	offExpectedBase  = 16
	offCurrentSize   = 24
	offMaxSize       = 32
	offCondition     = 40 // opaque; never dereferenced by this package
	offTop           = 48
	offEnd           = 56
	offFreeSpace     = 64

	// platform block ("extra" in spec §3), in-process only, not meaningful
	// after a reopen.
	offFD          = offFreeSpace + NumSizeClasses*wordSize // 576
	offMapFlags    = offFD + 4
	offMemMutex    = offMapFlags + 4
	offUserMutex   = offMemMutex + 4
	headerExtraEnd = offUserMutex + 4
)

// HeaderSize is the fixed size of the on-file control block. The root
// object begins immediately after it (spec §3 "header_end"). It is padded
// to a multiple of 64 bytes, so a fresh heap with a page-aligned growth
// ceiling has a Capacity() that is a multiple of 64: it splits into eight
// 8-byte-aligned blocks with nothing left over.
const HeaderSize = (headerExtraEnd + 63) &^ 63

// Identity bundles the caller-chosen identity fields validated on every
// reopen (spec §3, §7 InvalidVersion).
type Identity struct {
	ApplicationID uint32
	MajorVersion  uint16
	MinorVersion  uint16
}

// header is a thin accessor over the mapped header bytes. It never copies
// the control block; every method reads or writes through base directly so
// that the value observed is always the one currently visible to every
// process mapping the file.
type header struct {
	base uintptr
}

func (h header) ptr(off uintptr) unsafe.Pointer {
	return unsafe.Pointer(h.base + off)
}

func (h header) u32(off uintptr) *uint32       { return (*uint32)(h.ptr(off)) }
func (h header) u16(off uintptr) *uint16       { return (*uint16)(h.ptr(off)) }
func (h header) u64(off uintptr) *uint64       { return (*uint64)(h.ptr(off)) }
func (h header) addr(off uintptr) *uintptr     { return (*uintptr)(h.ptr(off)) }
func (h header) atomicU64(off uintptr) *atomic.Uint64 {
	return (*atomic.Uint64)(h.ptr(off))
}
func (h header) atomicAddr(off uintptr) *atomic.Uintptr {
	return (*atomic.Uintptr)(h.ptr(off))
}

func (h header) magic() uint32         { return *h.u32(offMagic) }
func (h header) setMagic(v uint32)     { *h.u32(offMagic) = v }
func (h header) appID() uint32         { return *h.u32(offApplicationID) }
func (h header) setAppID(v uint32)     { *h.u32(offApplicationID) = v }
func (h header) majorVersion() uint16  { return *h.u16(offMajorVersion) }
func (h header) setMajorVersion(v uint16) { *h.u16(offMajorVersion) = v }
func (h header) minorVersion() uint16  { return *h.u16(offMinorVersion) }
func (h header) setMinorVersion(v uint16) { *h.u16(offMinorVersion) = v }
func (h header) hardwareID() uint32    { return *h.u32(offHardwareID) }
func (h header) setHardwareID(v uint32) { *h.u32(offHardwareID) = v }

func (h header) expectedBase() uintptr     { return h.atomicAddr(offExpectedBase).Load() }
func (h header) setExpectedBase(v uintptr) { h.atomicAddr(offExpectedBase).Store(v) }

func (h header) currentSize() uint64     { return h.atomicU64(offCurrentSize).Load() }
func (h header) setCurrentSize(v uint64) { h.atomicU64(offCurrentSize).Store(v) }

func (h header) maxSize() uint64     { return h.atomicU64(offMaxSize).Load() }
func (h header) setMaxSize(v uint64) { h.atomicU64(offMaxSize).Store(v) }

func (h header) top() *atomic.Uintptr { return h.atomicAddr(offTop) }
func (h header) end() *atomic.Uintptr { return h.atomicAddr(offEnd) }

// freeListHead returns a pointer to the head-of-list slot for size class c.
func (h header) freeListHead(c int) *uintptr {
	return h.addr(offFreeSpace + uintptr(c)*wordSize)
}

func (h header) fd() int32       { return *(*int32)(h.ptr(offFD)) }
func (h header) setFD(v int32)   { *(*int32)(h.ptr(offFD)) = v }
func (h header) mapFlags() int32 { return *(*int32)(h.ptr(offMapFlags)) }
func (h header) setMapFlags(v int32) { *(*int32)(h.ptr(offMapFlags)) = v }

func (h header) memMutexWord() *uint32  { return (*uint32)(h.ptr(offMemMutex)) }
func (h header) userMutexWord() *uint32 { return (*uint32)(h.ptr(offUserMutex)) }

// root returns the address immediately after the header: the first byte of
// caller data (spec §4.D root()).
func (h header) root() uintptr { return h.base + HeaderSize }

// uninitialized reports whether the header has never been written: the
// entire control block is zero after file creation/extension (spec §4.B).
func (h header) uninitialized() bool {
	return h.expectedBase() == 0
}

// validate checks the identity fields against the caller-supplied identity,
// returning ErrInvalidVersion on any mismatch (spec §4.C, §7).
func (h header) validate(id Identity) error {
	switch {
	case h.magic() != Magic:
		return ErrInvalidVersion
	case h.appID() != id.ApplicationID:
		return ErrInvalidVersion
	case h.hardwareID() != HardwareID:
		return ErrInvalidVersion
	case h.majorVersion() != id.MajorVersion:
		return ErrInvalidVersion
	case h.minorVersion() != id.MinorVersion:
		return ErrInvalidVersion
	}
	return nil
}

// initialize performs the once-only uninitialized→initialized transition
// (spec §4.B, §4.C). Called with no locks held: the file is not yet visible
// to any other process at this point.
func (h header) initialize(id Identity, actualBase uintptr, length, limit uint64, mapFlags int32, fd int32) {
	h.setMagic(Magic)
	h.setAppID(id.ApplicationID)
	h.setHardwareID(HardwareID)
	h.setMajorVersion(id.MajorVersion)
	h.setMinorVersion(id.MinorVersion)
	h.setExpectedBase(actualBase)
	h.setCurrentSize(length)
	h.setMaxSize(limit)
	h.top().Store(h.root())
	h.end().Store(actualBase + uintptr(length))
	for c := 0; c < NumSizeClasses; c++ {
		*h.freeListHead(c) = 0
	}
	h.setMapFlags(mapFlags)
	h.setFD(fd)
	*h.memMutexWord() = 0
	*h.userMutexWord() = 0
}
