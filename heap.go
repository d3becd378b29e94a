package fixedheap

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// mapFlags bits recorded in the header's platform block, for this process's
// own bookkeeping only; meaningless after a reopen in a different process
// (header.go's offMapFlags doc comment).
const (
	mapFlagShared = 1 << iota
	mapFlagReadOnly
)

// HeapFile is the mapper (spec §4.C): it owns the backing file, the current
// mapping, and the fixed base address at which the header lives and every
// absolute pointer stored inside the heap stays valid. It knows nothing about size classes or
// free lists; that is the allocator's job, built on top of HeapFile's
// header and grow (allocator.go).
type HeapFile struct {
	mu sync.Mutex

	file   *os.File
	path   string
	base   uintptr
	length uint64 // currently mapped/backed length
	max    uint64 // ceiling growth may reach
	cfg    openConfig
	hdr    header
	open   bool
}

// Open maps path at a fixed virtual address, creating and initializing the
// file if it is new or empty, or reopening and validating it against id
// otherwise (spec §4.C). initialLength is ignored when reopening an
// existing heap: the length and growth ceiling recorded in its header win,
// unless WithCreateNew truncates the file back to empty first.
func Open(path string, id Identity, initialLength uint64, opts ...OpenOption) (*HeapFile, error) {
	cfg := applyOptions(opts)
	if initialLength == 0 {
		initialLength = DefaultInitialLength
	}

	flags := os.O_RDWR
	if cfg.readOnly {
		flags = os.O_RDONLY
	}
	switch {
	case cfg.tempHeap:
		flags |= os.O_CREATE | os.O_EXCL
	case !cfg.readOnly:
		flags |= os.O_CREATE
	}
	if cfg.createNew {
		// Truncate on open: an existing file at path is reinitialized from
		// scratch rather than reopened, the original's O_TRUNC behavior
		// (spec §6.2).
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fixedheap: open %s: %w: %v", path, ErrIOError, err)
	}
	if cfg.tempHeap {
		// The inode now lives only as long as this descriptor (and any
		// mapping of it) does: no path survives Close.
		_ = os.Remove(path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fixedheap: stat %s: %w: %v", path, ErrIOError, err)
	}

	hf := &HeapFile{file: f, path: path, cfg: cfg}

	if info.Size() == 0 {
		err = hf.createNewHeap(id, initialLength, cfg.maxLength, cfg.base)
	} else {
		err = hf.openExisting(id)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	hf.open = true
	return hf, nil
}

// createNewHeap zero-extends the file to length bytes (spec §4.A(v)), maps
// it MAP_FIXED at base, reserves the rest of the VA range up to limit as a
// PROT_NONE placeholder, and writes the initial header.
func (hf *HeapFile) createNewHeap(id Identity, length uint64, limit uint64, base uintptr) error {
	length = uint64(pageAlign(uintptr(length)))
	if length < uint64(HeaderSize) {
		length = uint64(pageAlign(uintptr(HeaderSize)))
	}
	limit = uint64(pageAlign(uintptr(limit)))
	if limit < length {
		limit = length
	}

	if err := zeroExtendFunc(hf.file, int64(length)); err != nil {
		return err
	}

	shared := !hf.cfg.privateMap
	writable := !hf.cfg.readOnly
	fd := int(hf.file.Fd())

	got, err := mmapSyscall(base, uintptr(length), fd, writable, shared, false)
	if err != nil {
		return err
	}
	if got != base {
		_ = munmapSyscall(got, uintptr(length))
		return fmt.Errorf("fixedheap: create %s: wanted base %#x, got %#x: %w", hf.path, base, got, ErrMapFailed)
	}

	if limit > length {
		if err := reservePlaceholder(base+uintptr(length), uintptr(limit-length)); err != nil {
			_ = munmapSyscall(base, uintptr(length))
			return err
		}
	}

	hdr := header{base: base}
	hdr.initialize(id, base, length, limit, hf.mapFlagsValue(shared), int32(fd))

	hf.base = base
	hf.length = length
	hf.max = limit
	hf.hdr = hdr
	return nil
}

// openExisting reopens a file that already carries a header: it first peeks
// the header at the caller-requested (or default) address, and if the
// header's recorded expected_base disagrees, unmaps and remaps at that
// address instead. The second mapping must land exactly there, or Open
// fails outright (spec §4.C, §9: "fail loudly, not silently relocate").
func (hf *HeapFile) openExisting(id Identity) error {
	info, err := hf.file.Stat()
	if err != nil {
		return fmt.Errorf("fixedheap: stat %s: %w: %v", hf.path, ErrIOError, err)
	}
	fileSize := uint64(info.Size())
	if fileSize < uint64(HeaderSize) {
		return fmt.Errorf("fixedheap: %s: %w: file shorter than header", hf.path, ErrInvalidVersion)
	}

	shared := !hf.cfg.privateMap
	writable := !hf.cfg.readOnly
	fd := int(hf.file.Fd())

	peekLen := pageAlign(uintptr(HeaderSize))
	candidate := hf.cfg.base

	peekAddr, err := mmapSyscall(candidate, peekLen, fd, writable, shared, false)
	if err != nil {
		return err
	}

	peek := header{base: peekAddr}
	base := peekAddr
	if expected := peek.expectedBase(); expected != 0 && expected != peekAddr {
		if err := munmapSyscall(peekAddr, peekLen); err != nil {
			return err
		}
		base = expected
		peekAddr, err = mmapSyscall(base, peekLen, fd, writable, shared, false)
		if err != nil {
			return err
		}
		if peekAddr != base {
			_ = munmapSyscall(peekAddr, peekLen)
			return fmt.Errorf("fixedheap: reopen %s: header requires base %#x, got %#x: %w", hf.path, base, peekAddr, ErrMapFailed)
		}
		peek = header{base: peekAddr}
	}

	if err := peek.validate(id); err != nil {
		_ = munmapSyscall(peekAddr, peekLen)
		return err
	}

	length := peek.currentSize()
	limit := peek.maxSize()
	if length > fileSize {
		_ = munmapSyscall(peekAddr, peekLen)
		return fmt.Errorf("fixedheap: %s: %w: header records size %d larger than file %d", hf.path, ErrInvalidVersion, length, fileSize)
	}

	if err := munmapSyscall(peekAddr, peekLen); err != nil {
		return err
	}
	got, err := mmapSyscall(base, uintptr(length), fd, writable, shared, false)
	if err != nil {
		return err
	}
	if got != base {
		_ = munmapSyscall(got, uintptr(length))
		return fmt.Errorf("fixedheap: reopen %s: full remap landed at %#x, wanted %#x: %w", hf.path, got, base, ErrMapFailed)
	}

	if limit > length {
		if err := reservePlaceholder(got+uintptr(length), uintptr(limit-length)); err != nil {
			_ = munmapSyscall(got, uintptr(length))
			return err
		}
	}

	hdr := header{base: got}
	if writable {
		// A PROT_READ mapping cannot take these writes.
		hdr.setMapFlags(hf.mapFlagsValue(shared))
		hdr.setFD(int32(fd))
	}

	hf.base = got
	hf.length = length
	hf.max = limit
	hf.hdr = hdr
	return nil
}

func (hf *HeapFile) mapFlagsValue(shared bool) int32 {
	var v int32
	if shared {
		v |= mapFlagShared
	}
	if hf.cfg.readOnly {
		v |= mapFlagReadOnly
	}
	return v
}

// Close unmaps the heap (and its growth placeholder) and closes the
// underlying file descriptor. The HeapFile is unusable afterward.
func (hf *HeapFile) Close() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if !hf.open {
		return ErrClosed
	}

	var errs []error
	if err := munmapSyscall(hf.base, uintptr(hf.length)); err != nil {
		errs = append(errs, err)
	}
	if hf.max > hf.length {
		if err := munmapSyscall(hf.base+uintptr(hf.length), uintptr(hf.max-hf.length)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := hf.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("fixedheap: close %s: %w: %v", hf.path, ErrIOError, err))
	}
	hf.open = false

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsOpen reports whether the heap currently has a live mapping.
func (hf *HeapFile) IsOpen() bool {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.open
}

// Base returns the fixed virtual address the heap is mapped at.
func (hf *HeapFile) Base() uintptr { return hf.base }

// Len returns the currently mapped length in bytes.
func (hf *HeapFile) Len() uint64 { return hf.length }

// MaxLen returns the growth ceiling in bytes.
func (hf *HeapFile) MaxLen() uint64 { return hf.max }

// ReadOnly reports whether the heap was mapped PROT_READ only.
func (hf *HeapFile) ReadOnly() bool { return hf.cfg.readOnly }

// Identity returns the identity fields recorded in the header.
func (hf *HeapFile) Identity() Identity {
	return Identity{
		ApplicationID: hf.hdr.appID(),
		MajorVersion:  hf.hdr.majorVersion(),
		MinorVersion:  hf.hdr.minorVersion(),
	}
}

// Sync flushes the mapped pages to the backing file (msync). This is a raw
// durability primitive, not a checkpoint or crash-consistency log (spec §1
// non-goals are unaffected by its presence).
func (hf *HeapFile) Sync() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if !hf.open {
		return ErrClosed
	}
	return msyncSyscall(hf.base, uintptr(hf.length))
}

// grow extends the mapping to at least newMin bytes following the 1.5x
// growth ratio of spec §4.C, clamped to max. If the remap to the larger
// size fails, it maps the original length back at the original base before
// returning the error (persist_unix.cpp's extend_to fallback path): that
// remap is expected to always succeed, since the address was just
// released, and the caller is left with a live heap and nil granted. Only
// if even that restoration fails is the HeapFile marked unusable.
func (hf *HeapFile) grow(newMin uint64) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	if !hf.open {
		return ErrClosed
	}
	if hf.cfg.readOnly {
		return ErrReadOnly
	}
	if newMin <= hf.length {
		return nil
	}
	if newMin > hf.max {
		return ErrOutOfMemory
	}

	target := hf.length
	for target < newMin {
		next := target * growthFactorNumerator / growthFactorDenominator
		if next <= target {
			next = target + uint64(pageSize)
		}
		target = next
	}
	if target > hf.max {
		target = hf.max
	}
	target = uint64(pageAlign(uintptr(target)))
	if target > hf.max {
		target = hf.max
	}

	if err := zeroExtendFunc(hf.file, int64(target)); err != nil {
		return err
	}

	shared := !hf.cfg.privateMap
	writable := !hf.cfg.readOnly
	fd := int(hf.file.Fd())

	oldLength := hf.length

	if err := munmapSyscall(hf.base, uintptr(oldLength)); err != nil {
		return err
	}
	if hf.max > oldLength {
		// Drop the placeholder covering the range we're about to claim;
		// best-effort, the grow below will overwrite it either way.
		_ = munmapSyscall(hf.base+uintptr(oldLength), uintptr(hf.max-oldLength))
	}

	got, err := mmapSyscall(hf.base, uintptr(target), fd, writable, shared, false)
	if err != nil {
		return hf.restoreAfterFailedGrow(oldLength, fmt.Errorf("fixedheap: grow %s to %d: %w", hf.path, target, err))
	}
	if got != hf.base {
		_ = munmapSyscall(got, uintptr(target))
		return hf.restoreAfterFailedGrow(oldLength, fmt.Errorf("fixedheap: grow %s: remap landed at %#x, wanted %#x: %w", hf.path, got, hf.base, ErrMapFailed))
	}

	if hf.max > target {
		if err := reservePlaceholder(hf.base+uintptr(target), uintptr(hf.max-target)); err != nil {
			return err
		}
	}

	hf.length = target
	hf.hdr.setCurrentSize(target)
	hf.hdr.end().Store(hf.base + uintptr(target))
	return nil
}

// restoreAfterFailedGrow re-maps the original oldLength bytes at hf.base
// after a failed growth remap, so that the memory mutex word and every
// other header field the caller's deferred Unlock still needs to touch
// remain live mapped memory instead of faulting. This remap is expected to
// always succeed: the address range was just released by this same
// goroutine under hf.mu. If it somehow doesn't, the HeapFile cannot be
// trusted and is marked closed; growErr is still the error reported.
func (hf *HeapFile) restoreAfterFailedGrow(oldLength uint64, growErr error) error {
	shared := !hf.cfg.privateMap
	writable := !hf.cfg.readOnly
	fd := int(hf.file.Fd())

	got, err := mmapSyscall(hf.base, uintptr(oldLength), fd, writable, shared, false)
	if err != nil || got != hf.base {
		hf.open = false
		return fmt.Errorf("%w (and could not restore original mapping: %v)", growErr, err)
	}

	if hf.max > oldLength {
		if err := reservePlaceholder(hf.base+uintptr(oldLength), uintptr(hf.max-oldLength)); err != nil {
			hf.open = false
			return fmt.Errorf("%w (and could not restore growth placeholder: %v)", growErr, err)
		}
	}

	return growErr
}
