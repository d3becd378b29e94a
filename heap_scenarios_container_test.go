package fixedheap_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	fixedheap "github.com/fixedheap/fixedheap"
	"github.com/fixedheap/fixedheap/container"
)

type graphRoot struct {
	vec container.Vector[container.String]
}

// Scenario 5 (spec §8): persistent pointer graph round-trip.
func TestScenario_PersistentPointerGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	id := fixedheap.Identity{ApplicationID: 42}

	hf, err := fixedheap.Open(path, id, 16384, fixedheap.WithCreateNew())
	require.NoError(t, err)

	alloc := fixedheap.RecyclingAllocator{Heap: hf}
	root := fixedheap.InitRoot[graphRoot](hf, alloc)
	require.NotNil(t, root)
	root.vec = container.NewVector[container.String](alloc, 4)

	s := container.NewString(alloc, "hello")
	require.True(t, root.vec.Append(alloc, s))

	wantElemPtr := root.vec.At(0).Ptr()
	wantVecPtr := root.vec.Ptr()

	require.NoError(t, hf.Close())

	hf2, err := fixedheap.Open(path, id, 16384)
	require.NoError(t, err)
	defer hf2.Close()

	root2 := fixedheap.InitRoot[graphRoot](hf2, fixedheap.RecyclingAllocator{Heap: hf2})
	require.Equal(t, "hello", root2.vec.At(0).String())
	require.Equal(t, wantElemPtr, root2.vec.At(0).Ptr())
	require.Equal(t, wantVecPtr, root2.vec.Ptr())
}
