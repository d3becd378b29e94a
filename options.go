package fixedheap

// OpenOption configures how Open maps or creates a heap file. Mirrors
// mmapforge's StoreOption/applyOptions shape: Open keeps a narrow positional
// signature for the fields that must always be supplied (path, identity,
// sizes), and everything else goes through options.
type OpenOption func(*openConfig)

type openConfig struct {
	readOnly   bool
	privateMap bool
	tempHeap   bool
	createNew  bool
	base       uintptr
	maxLength  uint64
}

// WithReadOnly maps the heap PROT_READ only. malloc/free/fastMalloc/clear
// are not re-checked against this per call (spec §7, §9 Open Questions); a
// write through a read-only mapping faults at the OS level instead.
func WithReadOnly() OpenOption {
	return func(c *openConfig) { c.readOnly = true }
}

// WithPrivateMap maps the heap MAP_PRIVATE instead of MAP_SHARED: writes are
// copy-on-write and never reach the backing file or other mappers. Useful
// for scratch/throwaway use of a heap image without risking the file on
// disk.
func WithPrivateMap() OpenOption {
	return func(c *openConfig) { c.privateMap = true }
}

// WithTempHeap backs the heap with an unlinked temporary file: the mapping
// behaves like any other heap file while open, but no path survives Close.
func WithTempHeap() OpenOption {
	return func(c *openConfig) { c.tempHeap = true }
}

// WithCreateNew truncates path on open (spec §6.2): any existing file there
// is discarded and a fresh heap is initialized in its place, rather than
// being reopened and validated against id.
func WithCreateNew() OpenOption {
	return func(c *openConfig) { c.createNew = true }
}

// WithBase overrides DefaultBase as the virtual address Open requests for a
// brand-new heap. Ignored when reopening an existing file: the address
// recorded in the header always wins (spec §4.C).
func WithBase(base uintptr) OpenOption {
	return func(c *openConfig) { c.base = base }
}

// WithMaxLength overrides DefaultMaxLength as the ceiling growth may reach
// for a brand-new heap. Ignored when reopening an existing file.
func WithMaxLength(n uint64) OpenOption {
	return func(c *openConfig) { c.maxLength = n }
}

func applyOptions(opts []OpenOption) openConfig {
	cfg := openConfig{base: DefaultBase, maxLength: DefaultMaxLength}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
