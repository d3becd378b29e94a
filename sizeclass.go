package fixedheap

// sizeClassBoundaries holds the upper bound in bytes of each of the 64
// free-list buckets. Built once at package init by literally replicating
// the original source's object_cell() loop (persist.cpp): starting at
// cell_size = wordSize, each pair of classes adds half of the cell size
// that began the pair, doubling the step every other class — 8, 12, 16,
// 24, 32, 48, 64, 96, 128, 192, ...
//
// This is a closed-form schedule, not a configurable table like
// joshuapare/hivekit/hive/alloc/size_classes.go's SizeClassConfig: the heap
// format fixes it at 64 classes and this exact progression, so there is
// nothing here for a caller to tune.
var sizeClassBoundaries = buildSizeClassBoundaries()

func buildSizeClassBoundaries() [NumSizeClasses]uint64 {
	var boundaries [NumSizeClasses]uint64
	cell := 0
	cellSize := uint64(wordSize)
	for cell < NumSizeClasses {
		s0 := cellSize >> 1
		boundaries[cell] = cellSize
		cell++
		if cell >= NumSizeClasses {
			break
		}
		cellSize += s0
		boundaries[cell] = cellSize
		cell++
		cellSize += s0
	}
	return boundaries
}

// objectCell returns the free-list class index for an allocation of size n,
// and the rounded-up size that class actually serves (spec §4.D). The
// search is the same smallest-fitting-boundary binary search hivekit's
// getSizeClass uses, just over the fixed boundary table above instead of a
// table built from a runtime SizeClassConfig. Sizes beyond the largest
// class (practically unreachable: the last class is already far larger
// than any heap this package can map) fall into the top class and rely on
// the caller's free/malloc size bookkeeping rather than a dedicated large
// list, matching the original source's 64-class ceiling.
func objectCell(n uintptr) (int, uintptr) {
	lo, hi := 0, NumSizeClasses-1
	for lo < hi {
		mid := (lo + hi) / 2
		if uint64(n) <= sizeClassBoundaries[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, uintptr(sizeClassBoundaries[lo])
}
