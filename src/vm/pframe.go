package vm

import "github.com/mit-pdos/gokernel/src/mem"

// Pframe_t is a cached resident page owned by a specific mobj (spec.md §3):
// the (owning mobj, page-number, physical page, dirty flag) tuple.
type Pframe_t struct {
	Owner   Mobj_i
	Pagenum int
	Pa      mem.Pa_t
	Frame   *mem.Frame
	Dirty   bool
}
