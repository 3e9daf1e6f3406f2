package vm

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

// BlockdevMobj_t backs raw block-device mappings (e.g. mmap of /dev/hda0).
// The disk driver body is out of scope (spec.md §1); this variant exists
// so the mobj type tag set matches spec.md §3 exactly and so a real block
// driver has a slot to plug into via the same FileBacking_i FILE mobjs use.
type BlockdevMobj_t struct {
	mobjBase
	backing FileBacking_i
}

func NewBlockdevMobj(backing FileBacking_i, frames mem.FrameAllocator_i, log klog.Logger) Mobj_i {
	return &BlockdevMobj_t{mobjBase: newMobjBase(frames, log), backing: backing}
}

func (b *BlockdevMobj_t) Type() MobjType { return MobjBlockdev }

func (b *BlockdevMobj_t) GetPframe(pagenum int, forwrite bool) (*Pframe_t, defs.Err_t) {
	return defaultGetPframe(b, &b.mobjBase, pagenum)
}

func (b *BlockdevMobj_t) FillPframe(pf *Pframe_t) defs.Err_t {
	if b.backing == nil {
		return defs.ENODEV
	}
	_, err := b.backing.ReadPage(pf.Pagenum, pf.Frame.Data[:])
	return err
}

func (b *BlockdevMobj_t) FlushPframe(pf *Pframe_t) defs.Err_t {
	if !pf.Dirty || b.backing == nil {
		return 0
	}
	if err := b.backing.WritePage(pf.Pagenum, pf.Frame.Data[:]); err != 0 {
		return err
	}
	pf.Dirty = false
	return 0
}

func (b *BlockdevMobj_t) Put() {
	b.mu.Lock()
	b.refcount--
	dead := b.refcount == 0
	b.mu.Unlock()
	if dead {
		b.destroy()
	}
}

func (b *BlockdevMobj_t) destroy() {}
