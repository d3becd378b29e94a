//go:build !unix

package fixedheap

import "os"

// This build has no fixed-address mmap backend. Every platform primitive
// fails with ErrUnsupportedPlatform instead of refusing to compile, the
// same stub-file shape joshuapare/hivekit/internal/mmfile/mmfile_fallback.go
// uses for non-unix builds of its own mmap helper.

var pageSize = 4096

func pageAlign(n uintptr) uintptr {
	ps := uintptr(pageSize)
	if n == 0 {
		return ps
	}
	return ((n - 1) / ps) * ps + ps
}

func rawMmapUnsupported(uintptr, uintptr, int, bool, bool, bool) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

var mmapSyscall = func(addr, length uintptr, fd int, writable, shared, anon bool) (uintptr, error) {
	return rawMmapUnsupported(addr, length, fd, writable, shared, anon)
}

var munmapSyscall = func(uintptr, uintptr) error { return ErrUnsupportedPlatform }
var madviseSyscall = func(uintptr, uintptr, int) error { return ErrUnsupportedPlatform }
var msyncSyscall = func(uintptr, uintptr) error { return ErrUnsupportedPlatform }
var zeroExtendFunc = func(*os.File, int64) error { return ErrUnsupportedPlatform }

func reservePlaceholder(uintptr, uintptr) error { return ErrUnsupportedPlatform }
