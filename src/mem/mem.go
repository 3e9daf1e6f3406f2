// Package mem defines the external collaborators the vm layer calls into
// but does not implement: the physical frame allocator and the low-level
// page table. Both are "deliberately out of scope" per spec.md §1 — this
// package specifies their contract (mirroring the teacher's mem.Physmem and
// common/mem.go Pmap_t) and ships a minimal in-memory implementation of
// each so the vm and proc packages have something concrete to run their
// tests against.
package mem

import (
	"sync"

	"github.com/mit-pdos/gokernel/src/defs"
)

// Pa_t is a physical frame number (not a byte address).
type Pa_t uintptr

// Frame is one page-sized slab of physical memory. The real allocator
// backs this by a slab out of the machine's physical memory map; the test
// double below backs it with a Go byte slice.
type Frame struct {
	Data [defs.PageSize]byte
}

// FrameAllocator_i is the physical page allocator contract from spec.md §6:
// page_alloc_n / page_free_n. Kernel stacks require power-of-two page
// counts; everything else allocates one frame at a time.
type FrameAllocator_i interface {
	AllocN(n int) ([]Pa_t, defs.Err_t)
	FreeN(pages []Pa_t)
	Frame(pa Pa_t) *Frame
}

// bitmapAllocator is a trivial free-list allocator sufficient for unit
// tests and for the boot package's default wiring; a real port would swap
// this for a slab-backed physical allocator driven by the boot memory map.
type bitmapAllocator struct {
	mu     sync.Mutex
	frames map[Pa_t]*Frame
	next   Pa_t
	free   []Pa_t
}

func NewBitmapAllocator() FrameAllocator_i {
	return &bitmapAllocator{frames: make(map[Pa_t]*Frame)}
}

func (b *bitmapAllocator) AllocN(n int) ([]Pa_t, defs.Err_t) {
	if n <= 0 {
		return nil, defs.EINVAL
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Pa_t, 0, n)
	for len(out) < n {
		var pa Pa_t
		if len(b.free) > 0 {
			pa = b.free[len(b.free)-1]
			b.free = b.free[:len(b.free)-1]
		} else {
			b.next++
			pa = b.next
		}
		b.frames[pa] = &Frame{}
		out = append(out, pa)
	}
	return out, 0
}

func (b *bitmapAllocator) FreeN(pages []Pa_t) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pa := range pages {
		delete(b.frames, pa)
		b.free = append(b.free, pa)
	}
}

func (b *bitmapAllocator) Frame(pa Pa_t) *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames[pa]
}
