package vm

import "github.com/mit-pdos/gokernel/src/defs"

// Vmarea_t is a contiguous run of virtual pages with uniform protection
// and a single backing memory object (spec.md §3). Start/End are page
// numbers, not byte addresses, so ranges compare and split cheaply.
type Vmarea_t struct {
	Start, End uintptr // half-open [Start, End) page-number range
	Off        int     // page offset into the backing object
	Prot       int     // ProtRead|ProtWrite|ProtExec
	Shared     bool     // SHARED vs PRIVATE
	Anon       bool     // optional ANON flag
	Mobj       Mobj_i
	AS         *AddrSpace_t
}

func (v *Vmarea_t) Npages() int { return int(v.End - v.Start) }

func (v *Vmarea_t) contains(vfn uintptr) bool {
	return vfn >= v.Start && vfn < v.End
}

// objOffset computes spec.md §4.2's "object offset vfn − vma.start +
// vma.off" for a virtual page number inside this vmarea.
func (v *Vmarea_t) objOffset(vfn uintptr) int {
	return int(vfn-v.Start) + v.Off
}

// permits reports whether cause is compatible with this vmarea's
// protection bits, per spec.md §4.2's pagefault matching rule: absent
// WRITE and EXEC implies READ.
func (v *Vmarea_t) permits(cause defs.FaultCause) bool {
	if cause&defs.FaultWrite != 0 {
		return v.Prot&defs.ProtWrite != 0
	}
	if cause&defs.FaultExec != 0 {
		return v.Prot&defs.ProtExec != 0
	}
	return v.Prot&defs.ProtRead != 0
}
