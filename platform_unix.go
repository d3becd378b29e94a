//go:build unix

package fixedheap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pageSize is fetched once at startup and reused everywhere mmap/truncate
// math needs page alignment, the same rationale mmapforge/mmap_unix.go
// gives for caching it.
var pageSize = os.Getpagesize()

// mmapSyscall and friends are swappable so tests can inject mapping
// failures without needing real address-space collisions, mirroring
// mmapforge's mmapFixedFunc/madviseFunc/msyncSyscall seams.
var mmapSyscall = rawMmap
var munmapSyscall = rawMunmap
var madviseSyscall = rawMadvise
var msyncSyscall = rawMsync
var zeroExtendFunc = zeroExtend

func pageAlign(n uintptr) uintptr {
	if n == 0 {
		return uintptr(pageSize)
	}
	ps := uintptr(pageSize)
	return ((n - 1) / ps) * ps + ps
}

// rawMmap maps length bytes of fd at the exact address addr using
// MAP_FIXED, failing loudly (ErrMapFailed) rather than silently accepting a
// different address — exactly the discipline spec §9 demands ("fail
// loudly, not silently relocate"). golang.org/x/sys/unix has no
// address-taking Mmap wrapper (its Mmap always passes addr=0), so the
// fixed-placement call goes through unix.Syscall6 directly, the same
// technique mmapforge/mmap_unix.go used with the stdlib syscall package —
// only the constants and syscall number now come from golang.org/x/sys/unix.
func rawMmap(addr uintptr, length uintptr, fd int, writable, shared, anon bool) (uintptr, error) {
	var prot int
	switch {
	case writable:
		prot = unix.PROT_READ | unix.PROT_WRITE
	case anon:
		// Anonymous + read-only is only ever used to carve out a VA
		// placeholder (reservePlaceholder): no access at all, so a later
		// growth remap can overlay it without a stray readable mapping
		// in between.
		prot = unix.PROT_NONE
	default:
		prot = unix.PROT_READ
	}

	flags := unix.MAP_FIXED
	if shared {
		flags |= unix.MAP_SHARED
	} else {
		flags |= unix.MAP_PRIVATE
	}

	rfd := fd
	if anon {
		flags |= unix.MAP_ANON
		rfd = -1
	}

	r, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length, uintptr(prot), uintptr(flags), uintptr(rfd), 0)
	if errno != 0 {
		return 0, fmt.Errorf("fixedheap: mmap at %#x: %w: %v", addr, ErrMapFailed, errno)
	}
	if r != addr {
		// We got mapped somewhere else: release it immediately, we must
		// never hand back a relocated heap (spec §9).
		_, _, _ = unix.Syscall(unix.SYS_MUNMAP, r, length, 0)
		return 0, fmt.Errorf("fixedheap: mmap wanted %#x, got %#x: %w", addr, r, ErrMapFailed)
	}
	return r, nil
}

func rawMunmap(addr uintptr, length uintptr) error {
	if length == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("fixedheap: munmap: %w", err)
	}
	return nil
}

func rawMadvise(addr uintptr, length uintptr, advice int) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
	if err := unix.Madvise(b, advice); err != nil && err != unix.ENOSYS {
		return fmt.Errorf("fixedheap: madvise: %w", err)
	}
	return nil
}

func rawMsync(addr uintptr, length uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
	if err := unix.Msync(b, unix.MS_SYNC); err != nil {
		return fmt.Errorf("fixedheap: msync: %w", err)
	}
	return nil
}

// zeroExtend grows f to length bytes by writing a single zero byte at the
// new final offset, matching spec §4.A(v) exactly ("extend file length by
// writing a zero byte at new_length-1") and the original source's
// lseek+write pattern in persist_unix.cpp.
func zeroExtend(f *os.File, length int64) error {
	if length <= 0 {
		return nil
	}
	if _, err := f.WriteAt([]byte{0}, length-1); err != nil {
		return fmt.Errorf("fixedheap: zero-extend to %d: %w: %v", length, ErrIOError, err)
	}
	return nil
}

// reservePlaceholder carves out a PROT_NONE anonymous mapping at [addr,
// addr+length) so that a later growth remap is guaranteed not to collide
// with any other mapping the process makes in between. Grounded in
// mmapforge/mmap_unix.go's Region, which reserves the full max-VA range up
// front for the same reason; the difference here is that fixedheap only
// reserves the placeholder for the *unmapped tail* beyond what Open already
// mapped, since Open's own placement must match the address recorded in
// the file (or the caller's requested base) and cannot be chosen by this
// function.
func reservePlaceholder(addr uintptr, length uintptr) error {
	if length == 0 {
		return nil
	}
	got, err := mmapSyscall(addr, length, -1, false, false, true)
	if err != nil {
		return err
	}
	if got != addr {
		return fmt.Errorf("fixedheap: reserve placeholder at %#x: %w", addr, ErrMapFailed)
	}
	return madviseSyscall(addr, length, unix.MADV_DONTNEED)
}
