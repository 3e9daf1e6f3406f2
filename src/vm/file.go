package vm

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

// FileBacking_i is the interface a vnode implements so its data can back a
// FILE mobj. Defined here (not in vfs) so vm never imports vfs — vfs
// imports vm for this interface, which its Mmap operation returns, and a
// cycle the other way is forbidden.
type FileBacking_i interface {
	ReadPage(pagenum int, dst []byte) (int, defs.Err_t)
	WritePage(pagenum int, src []byte) defs.Err_t
}

// FileMobj_t is a vnode-backed memory object: pages are demand-read from
// the vnode on first access and, for SHARED mappings, written back on
// flush.
type FileMobj_t struct {
	mobjBase
	backing FileBacking_i
}

func NewFileMobj(backing FileBacking_i, frames mem.FrameAllocator_i, log klog.Logger) Mobj_i {
	return &FileMobj_t{mobjBase: newMobjBase(frames, log), backing: backing}
}

func (f *FileMobj_t) Type() MobjType { return MobjFile }

func (f *FileMobj_t) GetPframe(pagenum int, forwrite bool) (*Pframe_t, defs.Err_t) {
	return defaultGetPframe(f, &f.mobjBase, pagenum)
}

func (f *FileMobj_t) FillPframe(pf *Pframe_t) defs.Err_t {
	n, err := f.backing.ReadPage(pf.Pagenum, pf.Frame.Data[:])
	if err != 0 {
		return err
	}
	for i := n; i < len(pf.Frame.Data); i++ {
		pf.Frame.Data[i] = 0
	}
	return 0
}

func (f *FileMobj_t) FlushPframe(pf *Pframe_t) defs.Err_t {
	if !pf.Dirty {
		return 0
	}
	if err := f.backing.WritePage(pf.Pagenum, pf.Frame.Data[:]); err != 0 {
		return err
	}
	pf.Dirty = false
	return 0
}

func (f *FileMobj_t) Put() {
	f.mu.Lock()
	f.refcount--
	dead := f.refcount == 0
	f.mu.Unlock()
	if dead {
		f.destroy()
	}
}

func (f *FileMobj_t) destroy() {
	f.mu.Lock()
	keys := f.cache.Keys()
	f.mu.Unlock()
	for _, k := range keys {
		if pf, ok := f.cache.Get(k); ok {
			f.FlushPframe(pf)
		}
	}
}
