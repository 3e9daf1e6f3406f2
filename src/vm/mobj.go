// Package vm implements the virtual memory core from spec.md §4.2: address
// spaces made of vmareas backed by reference-counted memory objects, a
// shadow-object chain implementing copy-on-write, pagefault resolution,
// and mmap/munmap/brk placement.
package vm

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

type MobjType int

const (
	MobjAnon MobjType = iota
	MobjFile
	MobjShadow
	MobjBlockdev
)

func (t MobjType) String() string {
	switch t {
	case MobjAnon:
		return "ANON"
	case MobjFile:
		return "FILE"
	case MobjShadow:
		return "SHADOW"
	case MobjBlockdev:
		return "BLOCKDEV"
	default:
		return "?"
	}
}

// pframeCacheSize bounds the per-mobj resident page cache (spec.md §3's
// "dictionary of cached page-frames keyed by page number"), implemented as
// an LRU (github.com/hashicorp/golang-lru/v2, following the corpus's
// sigmaos usage of the same library for its directory cache) rather than an
// unbounded map. It is sized generously because this core has no swap
// device to page evicted frames out to (spec.md's Non-goals exclude real
// demand paging) — eviction here only ever fires against a
// pathologically large single mobj, at which point FlushPframe is called
// exactly as a real write-back would be, but for an ANON object with no
// backing store that is a last-resort data loss, not a supported path.
const pframeCacheSize = 1 << 16

// Mobj_i is the polymorphic memory-object contract from spec.md §3: a
// type tag, an operations table (here, ordinary interface dispatch, per
// spec.md §9's guidance to prefer "enum-plus-dispatch-table" over an
// embedded C-style vtable struct), a refcount, a mutex, and a pframe
// cache.
type Mobj_i interface {
	Type() MobjType
	Ref()
	Put()
	RefCount() int
	Lock()
	Unlock()

	// GetPframe returns the pframe for pagenum, creating/filling it via
	// FillPframe if not already cached. forwrite indicates the caller
	// intends to write through the returned frame.
	GetPframe(pagenum int, forwrite bool) (*Pframe_t, defs.Err_t)
	// FillPframe populates a freshly allocated, still-empty pframe.
	FillPframe(pf *Pframe_t) defs.Err_t
	// FlushPframe writes a dirty pframe back to its backing store, if any.
	FlushPframe(pf *Pframe_t) defs.Err_t

	findPframe(pagenum int) *Pframe_t
	destroy()
}

// mobjBase is embedded by every concrete mobj variant; it supplies the
// refcount, mutex, and pframe cache so each variant only implements the
// operations that differ (spec.md §9's polymorphism note).
type mobjBase struct {
	mu       sync.Mutex
	refcount int
	cache    *lru.Cache[int, *Pframe_t]
	frames   mem.FrameAllocator_i
	log      klog.Logger
}

func newMobjBase(frames mem.FrameAllocator_i, log klog.Logger) mobjBase {
	if log == nil {
		log = klog.Nop()
	}
	c, err := lru.NewWithEvict[int, *Pframe_t](pframeCacheSize, func(_ int, pf *Pframe_t) {
		pf.Owner.FlushPframe(pf)
	})
	if err != nil {
		panic(err)
	}
	return mobjBase{refcount: 1, cache: c, frames: frames, log: log}
}

func (b *mobjBase) Lock()   { b.mu.Lock() }
func (b *mobjBase) Unlock() { b.mu.Unlock() }

func (b *mobjBase) Ref() {
	b.mu.Lock()
	b.refcount++
	b.mu.Unlock()
}

func (b *mobjBase) RefCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refcount
}

func (b *mobjBase) findPframe(pagenum int) *Pframe_t {
	b.mu.Lock()
	defer b.mu.Unlock()
	pf, ok := b.cache.Get(pagenum)
	if !ok {
		return nil
	}
	return pf
}

func (b *mobjBase) insertPframe(pf *Pframe_t) {
	b.mu.Lock()
	b.cache.Add(pf.Pagenum, pf)
	b.mu.Unlock()
}

// defaultGetPframe implements mobj_default_get_pframe from
// original_source: look up a cached frame, otherwise allocate one and ask
// the concrete variant's FillPframe to populate it.
func defaultGetPframe(o Mobj_i, base *mobjBase, pagenum int) (*Pframe_t, defs.Err_t) {
	if pf := base.findPframe(pagenum); pf != nil {
		return pf, 0
	}
	pas, err := base.frames.AllocN(1)
	if err != 0 {
		return nil, err
	}
	pf := &Pframe_t{Owner: o, Pagenum: pagenum, Pa: pas[0], Frame: base.frames.Frame(pas[0])}
	if err := o.FillPframe(pf); err != 0 {
		base.frames.FreeN(pas)
		return nil, err
	}
	base.insertPframe(pf)
	return pf, 0
}
