//go:build !unix

package fixedheap

import "runtime"

// processMutex on non-unix builds degrades to a pure spinlock: there is no
// portable futex-style wait/wake primitive wired in for this platform, so
// contended waiters spin with runtime.Gosched instead of sleeping. Correct,
// just not as efficient under contention as the unix futex backend.
type processMutex struct {
	word *uint32
}

func newProcessMutex(word *uint32) processMutex {
	return processMutex{word: word}
}

func (m processMutex) Lock() {
	for !atomicCAS32(m.word, 0, 1) {
		runtime.Gosched()
	}
}

func (m processMutex) Unlock() {
	atomicSwap32(m.word, 0)
}

func (m processMutex) TryLock() bool {
	return atomicCAS32(m.word, 0, 1)
}
