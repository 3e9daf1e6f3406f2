package vm

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

// MmapRequest bundles an mmap(2) call's arguments after the syscall layer
// has resolved any file descriptor into a FileBacking_i (spec.md §4.2).
// Flags carries the raw mmap(2) bits (defs.MapShared/MapPrivate/MapFixed);
// Mmap itself validates and decodes them rather than trusting a
// pre-decoded bool, since a caller could otherwise construct a request
// with neither or both of PRIVATE/SHARED set.
type MmapRequest struct {
	Addr     uintptr       // exact page-aligned target address when Flags has MapFixed
	Npages   int
	Prot     int
	Flags    int
	Backing  FileBacking_i // nil for an anonymous mapping
	Blockdev bool          // Backing is a block-device vnode: use a BLOCKDEV mobj
	Off      int           // byte offset into Backing; must be page-aligned
}

// Mmap places a new vmarea per spec.md §4.2's mmap algorithm, validating
// exactly what original_source's do_mmap does before ever touching the
// address space: length and offset sane, exactly one of MAP_PRIVATE/
// MAP_SHARED set, and — for MAP_FIXED — addr page-aligned and its whole
// range inside [USER_LOW, USER_HIGH) (do_mmap only checks addr itself;
// this also checks the mapping's end, since spec.md §8's vmarea invariant
// covers the entire range, not just its start). MAP_FIXED callers get
// exactly the range they asked for (after unmapping anything already
// there); everyone else gets the first fitting gap.
func Mmap(as *AddrSpace_t, frames mem.FrameAllocator_i, log klog.Logger, req MmapRequest) (uintptr, defs.Err_t) {
	if req.Npages <= 0 || req.Off < 0 {
		return 0, defs.EINVAL
	}
	if req.Off%defs.PageSize != 0 {
		return 0, defs.EINVAL
	}
	shared := req.Flags&defs.MapShared != 0
	private := req.Flags&defs.MapPrivate != 0
	if shared == private { // neither or both set
		return 0, defs.EINVAL
	}
	fixed := req.Flags&defs.MapFixed != 0

	var start uintptr
	if fixed {
		if req.Addr%defs.PageSize != 0 {
			return 0, defs.EINVAL
		}
		end := req.Addr + uintptr(req.Npages)*defs.PageSize
		if req.Addr < defs.UserLow || end > defs.UserHigh {
			return 0, defs.EINVAL
		}
		start = req.Addr / defs.PageSize
		if err := as.Remove(start, req.Npages); err != 0 {
			return 0, err
		}
	} else {
		s, err := as.FindRange(req.Npages, defs.LowToHigh)
		if err != 0 {
			return 0, err
		}
		start = s
	}

	var mobj Mobj_i
	switch {
	case req.Backing == nil:
		mobj = NewAnonMobj(frames, log)
	case req.Blockdev:
		mobj = NewBlockdevMobj(req.Backing, frames, log)
	default:
		mobj = NewFileMobj(req.Backing, frames, log)
	}
	if !shared && req.Backing != nil {
		// writes to a PRIVATE file mapping land in a shadow, never in the file
		base := mobj
		mobj = NewShadow(base, frames, log)
		base.Put()
	}

	as.Insert(&Vmarea_t{
		Start: start, End: start + uintptr(req.Npages),
		Off: req.Off / defs.PageSize, Prot: req.Prot, Shared: shared, Anon: req.Backing == nil,
		Mobj: mobj,
	})
	return start * defs.PageSize, 0
}

// Munmap tears down [addr, addr+npages*PageSize) exactly like Remove,
// exposed under the syscall's name for clarity at call sites.
func Munmap(as *AddrSpace_t, addr uintptr, npages int) defs.Err_t {
	return as.Remove(addr/defs.PageSize, npages)
}

// Brk implements the brk(2) growth/shrink logic from spec.md §4.2: the
// dynamic-data segment is a single ANON, PRIVATE vmarea starting at the
// address space's fixed startBrk. The first call that grows the heap
// inserts that vmarea; later growth extends its End in place, and
// shrinking removes the vacated pages via Remove.
func Brk(as *AddrSpace_t, frames mem.FrameAllocator_i, log klog.Logger, newBrk uintptr) (uintptr, defs.Err_t) {
	as.mu.Lock()
	if !as.brkInit {
		as.brkInit = true
		as.startBrk = defs.UserLow
		as.brk = defs.UserLow
	}
	startBrk, curBrk := as.startBrk, as.brk
	as.mu.Unlock()

	if newBrk == 0 {
		return curBrk, 0
	}
	if newBrk < startBrk || newBrk > defs.UserHigh {
		return curBrk, defs.ENOMEM
	}

	startPage := startBrk / defs.PageSize
	oldPages := int((curBrk + defs.PageSize - 1) / defs.PageSize - startPage)
	newPages := int((newBrk + defs.PageSize - 1) / defs.PageSize - startPage)

	switch {
	case newPages > oldPages:
		if !as.IsRangeEmpty(startPage+uintptr(oldPages), newPages-oldPages) {
			return curBrk, defs.ENOMEM
		}
		if oldPages == 0 {
			as.Insert(&Vmarea_t{
				Start: startPage, End: startPage + uintptr(newPages),
				Prot: defs.ProtRead | defs.ProtWrite, Shared: false, Anon: true,
				Mobj: NewAnonMobj(frames, log),
			})
		} else {
			v, ok := as.Lookup(startPage)
			if !ok {
				return curBrk, defs.EFAULT
			}
			as.mu.Lock()
			v.End = startPage + uintptr(newPages)
			as.mu.Unlock()
		}
	case newPages < oldPages:
		if err := as.Remove(startPage+uintptr(newPages), oldPages-newPages); err != 0 {
			return curBrk, err
		}
	}

	as.mu.Lock()
	as.brk = newBrk
	as.mu.Unlock()
	return newBrk, 0
}
