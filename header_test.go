package fixedheap

import (
	"testing"
	"unsafe"
)

func newTestHeader(t *testing.T) header {
	t.Helper()
	buf := make([]byte, HeaderSize)
	return header{base: uintptr(unsafe.Pointer(&buf[0]))}
}

func TestHeader_UninitializedUntilWritten(t *testing.T) {
	h := newTestHeader(t)
	if !h.uninitialized() {
		t.Fatal("expected a zeroed header to report uninitialized")
	}

	h.initialize(Identity{ApplicationID: 7, MajorVersion: 1, MinorVersion: 2}, h.base, 4096, 8192, 0, -1)
	if h.uninitialized() {
		t.Fatal("expected header to report initialized after initialize()")
	}
}

func TestHeader_Initialize_SetsGeometry(t *testing.T) {
	h := newTestHeader(t)
	id := Identity{ApplicationID: 1, MajorVersion: 2, MinorVersion: 3}
	h.initialize(id, h.base, 4096, 8192, 0, 5)

	if got := h.magic(); got != Magic {
		t.Fatalf("magic = %#x, want %#x", got, Magic)
	}
	if got := h.hardwareID(); got != HardwareID {
		t.Fatalf("hardwareID = %d, want %d", got, HardwareID)
	}
	if got := h.expectedBase(); got != h.base {
		t.Fatalf("expectedBase = %#x, want %#x", got, h.base)
	}
	if got := h.currentSize(); got != 4096 {
		t.Fatalf("currentSize = %d, want 4096", got)
	}
	if got := h.maxSize(); got != 8192 {
		t.Fatalf("maxSize = %d, want 8192", got)
	}
	if got := h.top().Load(); got != h.root() {
		t.Fatalf("top = %#x, want root %#x", got, h.root())
	}
	if got := h.end().Load(); got != h.base+4096 {
		t.Fatalf("end = %#x, want %#x", got, h.base+4096)
	}
	for c := 0; c < NumSizeClasses; c++ {
		if got := *h.freeListHead(c); got != 0 {
			t.Fatalf("freeListHead(%d) = %#x, want 0", c, got)
		}
	}
}

func TestHeader_Validate(t *testing.T) {
	h := newTestHeader(t)
	id := Identity{ApplicationID: 1, MajorVersion: 2, MinorVersion: 3}
	h.initialize(id, h.base, 4096, 4096, 0, -1)

	if err := h.validate(id); err != nil {
		t.Fatalf("validate(matching id) = %v, want nil", err)
	}

	cases := []Identity{
		{ApplicationID: 2, MajorVersion: 2, MinorVersion: 3},
		{ApplicationID: 1, MajorVersion: 9, MinorVersion: 3},
		{ApplicationID: 1, MajorVersion: 2, MinorVersion: 9},
	}
	for _, bad := range cases {
		if err := h.validate(bad); err == nil {
			t.Fatalf("validate(%+v) = nil, want ErrInvalidVersion", bad)
		}
	}
}

func TestHeader_RootIsImmediatelyAfterHeader(t *testing.T) {
	h := newTestHeader(t)
	if got, want := h.root(), h.base+HeaderSize; got != want {
		t.Fatalf("root() = %#x, want %#x", got, want)
	}
}
