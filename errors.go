package fixedheap

import "errors"

// Error kinds per spec §7.
var (
	// ErrIOError means the backing file could not be opened, created, or
	// extended. The HeapFile is left in the not-open state.
	ErrIOError = errors.New("fixedheap: io error")

	// ErrMapFailed means the OS refused the requested mapping, or a remap
	// (initial reopen or growth) landed at an address other than the one
	// required. The heap never silently relocates.
	ErrMapFailed = errors.New("fixedheap: map failed")

	// ErrInvalidVersion means the header's identity fields (magic,
	// application id, hardware id, major/minor version) did not match what
	// the caller asked to open. Raised synchronously from Open; the mapper
	// unmaps cleanly before returning it.
	ErrInvalidVersion = errors.New("fixedheap: invalid version")

	// ErrOutOfMemory is returned by grow when the requested length exceeds
	// the growth ceiling. Malloc/FastMalloc and the adapters built on them
	// report exhaustion as a nil result, not an error (§7).
	ErrOutOfMemory = errors.New("fixedheap: out of memory")

	// ErrClosed means an operation was attempted on a HeapFile that is not
	// currently open.
	ErrClosed = errors.New("fixedheap: heap is closed")

	// ErrNoGlobalHeap is returned by Global when SetGlobal has not
	// installed a process-wide heap (GlobalAllocator.Alloc then returns nil).
	ErrNoGlobalHeap = errors.New("fixedheap: no global heap set")

	// ErrReadOnly is returned by grow on a heap mapped with WithReadOnly.
	// Malloc/Free/FastMalloc/Clear do not check for read-only mode.
	ErrReadOnly = errors.New("fixedheap: heap is read-only")

	// ErrUnsupportedPlatform is returned by every platform primitive on
	// build targets with no fixedheap mapping/mutex backend.
	ErrUnsupportedPlatform = errors.New("fixedheap: unsupported platform")
)
