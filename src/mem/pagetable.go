package mem

import "github.com/mit-pdos/gokernel/src/defs"

// PTFlags mirror the pd_flags/pt_flags arguments to pt_map in spec.md §6.
type PTFlags uint

const (
	PTPresent PTFlags = 1 << iota
	PTWrite
	PTUser
)

// Pagetable_i is the collaborator contract from spec.md §6: pt_create,
// pt_destroy, pt_map, pt_unmap_range, pt_virt_to_phys, tlb_flush_range,
// tlb_flush_all. Bare-metal ports implement this over real x86 page
// tables; this package's default implementation is a plain Go map so vm's
// pagefault and mmap/munmap logic can be exercised without hardware.
type Pagetable_i interface {
	Map(virt uintptr, phys Pa_t, flags PTFlags)
	Unmap(virt uintptr)
	UnmapRange(virt uintptr, n int)
	Translate(virt uintptr) (Pa_t, PTFlags, bool)
	Destroy()
}

type softPagetable struct {
	entries map[uintptr]softPTE
}

type softPTE struct {
	phys  Pa_t
	flags PTFlags
}

// NewSoftPagetable returns a software page table root suitable for a
// process's Pmap in test builds and in the reference boot wiring.
func NewSoftPagetable() Pagetable_i {
	return &softPagetable{entries: make(map[uintptr]softPTE)}
}

func (pt *softPagetable) Map(virt uintptr, phys Pa_t, flags PTFlags) {
	pt.entries[pageAlign(virt)] = softPTE{phys: phys, flags: flags | PTPresent}
}

func (pt *softPagetable) Unmap(virt uintptr) {
	delete(pt.entries, pageAlign(virt))
}

func (pt *softPagetable) UnmapRange(virt uintptr, n int) {
	base := pageAlign(virt)
	for i := 0; i < n; i++ {
		delete(pt.entries, base+uintptr(i)*defs.PageSize)
	}
}

func (pt *softPagetable) Translate(virt uintptr) (Pa_t, PTFlags, bool) {
	e, ok := pt.entries[pageAlign(virt)]
	if !ok {
		return 0, 0, false
	}
	return e.phys, e.flags, true
}

func (pt *softPagetable) Destroy() {
	pt.entries = nil
}

func pageAlign(v uintptr) uintptr {
	return v &^ (defs.PageSize - 1)
}

// TLB is the tlb_flush_range/tlb_flush_all collaborator. The software
// pagetable needs no shootdown, so this is a no-op recorder used by tests
// to assert that vm code calls it at the right points.
type TLB struct {
	Flushes int
}

func (t *TLB) FlushRange(uintptr, int) { t.Flushes++ }
func (t *TLB) FlushAll()               { t.Flushes++ }
