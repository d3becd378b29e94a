package fixedheap

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 1 (spec §8): empty create.
func TestScenario_EmptyCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.db")
	hf, err := Open(path, Identity{}, 1000, WithCreateNew(), WithMaxLength(1000))
	require.NoError(t, err)
	defer hf.Close()

	require.True(t, hf.Empty())
	require.Zero(t, hf.Size())
	require.Equal(t, hf.Base()+HeaderSize, hf.Root())
}

// Scenario 2 (spec §8): version mismatch.
func TestScenario_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.db")
	id := Identity{}

	hf, err := Open(path, id, 1000, WithCreateNew())
	require.NoError(t, err)
	require.NoError(t, hf.Close())

	_, err = Open(path, Identity{ApplicationID: 1}, 1000)
	require.ErrorIs(t, err, ErrInvalidVersion)

	_, err = Open(path, Identity{MajorVersion: 1}, 1000)
	require.ErrorIs(t, err, ErrInvalidVersion)

	_, err = Open(path, Identity{MinorVersion: 1}, 1000)
	require.ErrorIs(t, err, ErrInvalidVersion)

	hf2, err := Open(path, id, 1000)
	require.NoError(t, err)
	require.NoError(t, hf2.Close())
}

// largestBoundaryAtMost finds the biggest size-class boundary that does not
// exceed n. malloc() rounds every request up to its class's exact size
// (spec §4.D object_cell), so the largest single allocation guaranteed to
// fit in n bytes of raw capacity is that boundary, not n itself.
func largestBoundaryAtMost(n uint64) uint64 {
	var best uint64
	for _, b := range sizeClassBoundaries {
		if b <= n && b > best {
			best = b
		}
	}
	return best
}

// Scenario 3 (spec §8): exhaustion at limit.
func TestScenario_ExhaustionAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp.db")
	hf, err := Open(path, Identity{}, 16384, WithTempHeap(), WithMaxLength(16384))
	require.NoError(t, err)
	defer hf.Close()

	c := hf.Capacity()
	usable := largestBoundaryAtMost(c)
	require.NotNil(t, hf.Malloc(uintptr(usable)), "largest in-class allocation within capacity should succeed")

	hf.Clear()
	require.Nil(t, hf.Malloc(uintptr(c+1)), "an over-capacity allocation should fail")

	hf.Clear()
	require.Equal(t, c, hf.Capacity())
	require.NotNil(t, hf.Malloc(uintptr(c/2)))
}

// Scenario 4 (spec §8): growth.
func TestScenario_Growth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp2.db")
	hf, err := Open(path, Identity{}, 16384, WithTempHeap(), WithMaxLength(65536))
	require.NoError(t, err)
	defer hf.Close()

	chunk := uintptr(hf.Capacity() / 8)
	for i := 0; i < 8; i++ {
		require.NotNil(t, hf.FastMalloc(chunk), "fast_malloc #%d", i)
	}
	require.LessOrEqual(t, hf.Len(), uint64(65536))
}

// Scenario 6 (spec §8): concurrent bump allocation.
func TestScenario_ConcurrentBump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conc.db")
	hf, err := Open(path, Identity{}, 1<<20, WithTempHeap(), WithMaxLength(1<<20))
	require.NoError(t, err)
	defer hf.Close()

	const n = 8
	const k = 100

	results := make([][]uintptr, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addrs := make([]uintptr, 0, k)
			for j := 0; j < k; j++ {
				p := hf.FastMalloc(64)
				require.NotNil(t, p)
				addrs = append(addrs, uintptr(p))
			}
			results[i] = addrs
		}(i)
	}
	wg.Wait()

	seen := make(map[uintptr]bool, n*k)
	for _, addrs := range results {
		for _, a := range addrs {
			require.False(t, seen[a], "duplicate address %#x", a)
			seen[a] = true
			require.Zero(t, a%8, "address %#x not 8-byte aligned", a)
			require.GreaterOrEqual(t, a, hf.Root())
			require.Less(t, a, hf.Base()+uintptr(hf.Len()))
		}
	}
	require.Len(t, seen, n*k)
}
