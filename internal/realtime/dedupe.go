package realtime

import (
	gosync "sync"

	"github.com/cespare/xxhash/v2"
)

// dedupeWindow remembers the digests of the most recent frames.
type dedupeWindow struct {
	mu   gosync.Mutex
	ring []uint64
	next int
	set  map[uint64]struct{}
}

func newDedupeWindow(size int) *dedupeWindow {
	return &dedupeWindow{
		ring: make([]uint64, 0, size),
		set:  make(map[uint64]struct{}, size),
	}
}

// seen records frame and reports whether it was already in the window.
func (w *dedupeWindow) seen(frame []byte) bool {
	if cap(w.ring) == 0 {
		return false
	}
	h := xxhash.Sum64(frame)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.set[h]; ok {
		return true
	}
	if len(w.ring) < cap(w.ring) {
		w.ring = append(w.ring, h)
	} else {
		delete(w.set, w.ring[w.next])
		w.ring[w.next] = h
		w.next = (w.next + 1) % len(w.ring)
	}
	w.set[h] = struct{}{}
	return false
}

func (w *dedupeWindow) reset() {
	w.mu.Lock()
	w.ring = w.ring[:0]
	w.next = 0
	w.set = make(map[uint64]struct{}, cap(w.ring))
	w.mu.Unlock()
}
