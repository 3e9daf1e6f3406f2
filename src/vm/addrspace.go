package vm

import (
	"sort"
	"sync"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

// AddrSpace_t is a process's virtual address space: an ordered list of
// vmareas (spec.md §3), the low-level page table backing it, and the
// brk-managed dynamic region.
type AddrSpace_t struct {
	mu    sync.Mutex
	areas []*Vmarea_t // sorted by Start, pairwise disjoint

	Pt     mem.Pagetable_i
	Frames mem.FrameAllocator_i
	Tlb    *mem.TLB

	startBrk, brk uintptr
	brkInit       bool

	log klog.Logger
}

func NewAddrSpace(pt mem.Pagetable_i, frames mem.FrameAllocator_i, log klog.Logger) *AddrSpace_t {
	if log == nil {
		log = klog.Nop()
	}
	return &AddrSpace_t{Pt: pt, Frames: frames, Tlb: &mem.TLB{}, log: log}
}

// MappedPages sums the page count of every vmarea, for the resource
// accounting spec.md's overview attributes to a process (page/fd counters
// surfaced through go-humanize in proc.Table_t.Exit's exit log line).
func (as *AddrSpace_t) MappedPages() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	n := 0
	for _, v := range as.areas {
		n += int(v.End - v.Start)
	}
	return n
}

// Destroy tears down every vmarea and unmaps the whole address space,
// spec.md §4.4's "destroy" step of process reaping: drop this address
// space's reference on each vmarea's memory object, unmap its pages, and
// free the page-table root itself, mirroring original_source's
// vmmap_destroy walking every vmarea calling mobj_put followed by
// pt_destroy. Idempotent; safe to call on an already-empty AddrSpace_t.
func (as *AddrSpace_t) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()

	for _, v := range as.areas {
		as.Pt.UnmapRange(v.Start*defs.PageSize, v.Npages())
		v.Mobj.Put()
	}
	as.areas = nil
	as.Pt.Destroy()
}

// CollapseAll opportunistically collapses every vmarea's shadow chain,
// mirroring original_source's vmmap_collapse. A shadow's referent can only
// drop to its sole remaining referent when some other address space's
// mobj reference on it is dropped (e.g. a sibling process exiting), so
// this is swept from the survivor's side rather than the dying one's.
func (as *AddrSpace_t) CollapseAll() {
	as.mu.Lock()
	areas := append([]*Vmarea_t(nil), as.areas...)
	as.mu.Unlock()

	for _, v := range areas {
		if s, ok := v.Mobj.(*ShadowMobj_t); ok {
			s.Collapse()
		}
	}
}

// Insert adds vma to the address space. Precondition (asserted, not
// recovered): vma's range must not overlap any existing vmarea.
func (as *AddrSpace_t) Insert(vma *Vmarea_t) {
	as.mu.Lock()
	defer as.mu.Unlock()
	vma.AS = as
	i := sort.Search(len(as.areas), func(i int) bool { return as.areas[i].Start >= vma.Start })
	if i < len(as.areas) && as.areas[i].Start < vma.End {
		panic("vm: insert overlaps existing vmarea")
	}
	if i > 0 && as.areas[i-1].End > vma.Start {
		panic("vm: insert overlaps existing vmarea")
	}
	as.areas = append(as.areas, nil)
	copy(as.areas[i+1:], as.areas[i:])
	as.areas[i] = vma
}

// Lookup returns the vmarea containing page vfn, if any.
func (as *AddrSpace_t) Lookup(vfn uintptr) (*Vmarea_t, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.lookupLocked(vfn)
}

func (as *AddrSpace_t) lookupLocked(vfn uintptr) (*Vmarea_t, bool) {
	i := sort.Search(len(as.areas), func(i int) bool { return as.areas[i].End > vfn })
	if i < len(as.areas) && as.areas[i].contains(vfn) {
		return as.areas[i], true
	}
	return nil, false
}

// IsRangeEmpty reports whether [start, start+n) is free of any vmarea.
func (as *AddrSpace_t) IsRangeEmpty(start uintptr, n int) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	end := start + uintptr(n)
	for _, v := range as.areas {
		if v.Start < end && start < v.End {
			return false
		}
	}
	return true
}

// FindRange implements spec.md §4.2's first-fit gap scan: LowToHigh walks
// gaps ascending, HighToLow walks descending and returns the highest gap's
// end minus npages.
func (as *AddrSpace_t) FindRange(npages int, dir defs.FindDir) (uintptr, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	low, high := defs.UserLow/defs.PageSize, defs.UserHigh/defs.PageSize
	n := uintptr(npages)

	if dir == defs.LowToHigh {
		cur := low
		for _, v := range as.areas {
			if v.Start-cur >= n {
				return cur, 0
			}
			if v.End > cur {
				cur = v.End
			}
		}
		if high-cur >= n {
			return cur, 0
		}
		return 0, defs.ENOMEM
	}

	cur := high
	for i := len(as.areas) - 1; i >= 0; i-- {
		v := as.areas[i]
		if cur-v.End >= n {
			return cur - n, 0
		}
		if v.Start < cur {
			cur = v.Start
		}
	}
	if cur-low >= n {
		return cur - n, 0
	}
	return 0, defs.ENOMEM
}

// Remove splits or truncates every vmarea overlapping [start, start+n),
// putting the reference each removed/truncated vmarea held on its mobj.
func (as *AddrSpace_t) Remove(start uintptr, n int) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	end := start + uintptr(n)
	var kept []*Vmarea_t
	for _, v := range as.areas {
		if v.End <= start || v.Start >= end {
			kept = append(kept, v)
			continue
		}
		switch {
		case v.Start >= start && v.End <= end:
			// fully covered: drop it.
			v.Mobj.Put()
		case v.Start < start && v.End > end:
			// hole punched in the middle: split into two.
			right := &Vmarea_t{
				Start: end, End: v.End,
				Off:    v.Off + int(end-v.Start),
				Prot:   v.Prot, Shared: v.Shared, Anon: v.Anon,
				Mobj: v.Mobj, AS: as,
			}
			v.Mobj.Ref()
			v.End = start
			kept = append(kept, v, right)
		case v.Start < start:
			// truncate tail.
			v.End = start
			kept = append(kept, v)
		default:
			// truncate head.
			v.Off += int(end - v.Start)
			v.Start = end
			kept = append(kept, v)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	as.areas = kept
	as.Pt.UnmapRange(start*defs.PageSize, n)
	as.Tlb.FlushRange(start*defs.PageSize, n)
	return 0
}

// Clone deep-copies the vmarea list for fork: PRIVATE vmareas gain a new
// SHADOW mobj on top of their current mobj in both parent and child
// (spec.md §4.2); SHARED vmareas are left alone (both address spaces keep
// referencing the same mobj). The parent's pages for cloned PRIVATE
// vmareas are unmapped and TLB-flushed so subsequent writes fault into
// the parent's own new shadow. childPt is a freshly minted Pagetable_i —
// every process gets its own page-table root (spec.md §3/§4.4); the child
// starts with no PTEs at all, which is fine, since every vmarea it
// inherits is either COW (unmapped in the parent above too, so both sides
// simply refault through the mobj/shadow layer) or SHARED (already backed
// by frames reachable through the shared mobj on the next fault).
func (as *AddrSpace_t) Clone(childPt mem.Pagetable_i) (*AddrSpace_t, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child := &AddrSpace_t{
		Pt: childPt, Frames: as.Frames, Tlb: &mem.TLB{}, log: as.log,
		startBrk: as.startBrk, brk: as.brk, brkInit: as.brkInit,
	}

	for _, v := range as.areas {
		nv := &Vmarea_t{Start: v.Start, End: v.End, Off: v.Off, Prot: v.Prot, Shared: v.Shared, Anon: v.Anon}
		if v.Shared {
			v.Mobj.Ref()
			nv.Mobj = v.Mobj
			cv := *nv
			cv.AS = child
			child.areas = append(child.areas, &cv)
			continue
		}

		parentShadow := NewShadow(v.Mobj, as.Frames, as.log)
		childShadow := NewShadow(v.Mobj, as.Frames, as.log)

		v.Mobj.Put() // the vmarea no longer holds the old mobj directly
		v.Mobj = parentShadow
		nv.Mobj = childShadow
		nv.AS = child
		child.areas = append(child.areas, nv)

		as.Pt.UnmapRange(v.Start*defs.PageSize, v.Npages())
		as.Tlb.FlushRange(v.Start*defs.PageSize, v.Npages())
	}

	return child, 0
}

// Read/Write copy to/from user virtual memory, faulting pages in as
// needed exactly like a real userdmap8 walk.
func (as *AddrSpace_t) Read(vaddr uintptr, buf []byte) (int, defs.Err_t) {
	return as.copy(vaddr, buf, false)
}

func (as *AddrSpace_t) Write(vaddr uintptr, buf []byte) (int, defs.Err_t) {
	return as.copy(vaddr, buf, true)
}

func (as *AddrSpace_t) copy(vaddr uintptr, buf []byte, write bool) (int, defs.Err_t) {
	done := 0
	for done < len(buf) {
		va := vaddr + uintptr(done)
		vfn := va / defs.PageSize
		voff := va % defs.PageSize

		cause := defs.FaultUser
		if write {
			cause |= defs.FaultWrite
		}
		if err := PageFault(as, va, cause); err != 0 {
			return done, err
		}

		v, ok := as.Lookup(vfn)
		if !ok {
			return done, defs.EFAULT
		}
		pf, err := v.Mobj.GetPframe(v.objOffset(vfn), write)
		if err != 0 {
			return done, err
		}
		n := len(buf) - done
		if room := int(defs.PageSize) - int(voff); n > room {
			n = room
		}
		if write {
			copy(pf.Frame.Data[voff:], buf[done:done+n])
			pf.Dirty = true
		} else {
			copy(buf[done:done+n], pf.Frame.Data[voff:])
		}
		done += n
	}
	return done, 0
}
