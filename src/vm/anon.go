package vm

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

// AnonMobj_t is the zero-fill memory object: fresh pages read as all
// zeroes and are never backed by anything on disk. It backs private
// anonymous vmareas (mmap MAP_ANON, brk-grown heap, stacks).
type AnonMobj_t struct {
	mobjBase
}

func NewAnonMobj(frames mem.FrameAllocator_i, log klog.Logger) Mobj_i {
	return &AnonMobj_t{mobjBase: newMobjBase(frames, log)}
}

func (a *AnonMobj_t) Type() MobjType { return MobjAnon }

func (a *AnonMobj_t) GetPframe(pagenum int, forwrite bool) (*Pframe_t, defs.Err_t) {
	return defaultGetPframe(a, &a.mobjBase, pagenum)
}

func (a *AnonMobj_t) FillPframe(pf *Pframe_t) defs.Err_t {
	for i := range pf.Frame.Data {
		pf.Frame.Data[i] = 0
	}
	return 0
}

func (a *AnonMobj_t) FlushPframe(pf *Pframe_t) defs.Err_t { return 0 }

func (a *AnonMobj_t) Put() {
	a.mu.Lock()
	a.refcount--
	dead := a.refcount == 0
	a.mu.Unlock()
	if dead {
		a.destroy()
	}
}

func (a *AnonMobj_t) destroy() {}
