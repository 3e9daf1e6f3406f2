package vm

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/mem"
)

// PageFault resolves a hardware page fault at virtual address va with the
// given cause (spec.md §4.2): find the covering vmarea, check cause
// against its protection, fetch (and, for anon/shadow, lazily allocate)
// the backing pframe, and install a pagetable mapping for it. Any nonzero
// error is a segfault. PageFault does not kill the process itself; its
// only caller here, AddrSpace_t's Read/Write copy loop, returns the error
// to its own caller.
func PageFault(as *AddrSpace_t, va uintptr, cause defs.FaultCause) defs.Err_t {
	vfn := va / defs.PageSize

	vma, ok := as.Lookup(vfn)
	if !ok {
		return defs.EFAULT
	}
	if !vma.permits(cause) {
		return defs.EACCES
	}

	forwrite := cause&defs.FaultWrite != 0
	pf, err := vma.Mobj.GetPframe(vma.objOffset(vfn), forwrite)
	if err != 0 {
		return err
	}

	flags := mem.PTPresent | mem.PTUser
	if forwrite && vma.Prot&defs.ProtWrite != 0 {
		flags |= mem.PTWrite
	}
	as.Pt.Map(vfn*defs.PageSize, pf.Pa, flags)
	as.Tlb.FlushRange(vfn*defs.PageSize, 1)
	return 0
}
