package vm

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

// ShadowMobj_t is the copy-on-write overlay from spec.md §3/§4.2: it holds
// a reference to its immediate shadowed object and to the non-shadow
// bottom of the chain, and materializes a private copy of a page only when
// written.
type ShadowMobj_t struct {
	mobjBase
	shadowed Mobj_i
	bottom   Mobj_i
}

// NewShadow creates a new, already-locked-by-nobody shadow object on top
// of shadowed, taking one reference on shadowed and one on the chain's
// bottom object (original_source/kernel/vm/shadow.c's shadow_create).
func NewShadow(shadowed Mobj_i, frames mem.FrameAllocator_i, log klog.Logger) Mobj_i {
	shadowed.Ref()
	var bottom Mobj_i
	if so, ok := shadowed.(*ShadowMobj_t); ok {
		bottom = so.bottom
	} else {
		bottom = shadowed
	}
	bottom.Ref()
	return &ShadowMobj_t{
		mobjBase: newMobjBase(frames, log),
		shadowed: shadowed,
		bottom:   bottom,
	}
}

func (s *ShadowMobj_t) Type() MobjType { return MobjShadow }

// Bottom exposes the chain's bottom object, used by callers that need to
// assert spec.md §8's "S.bottom.type ≠ SHADOW" invariant.
func (s *ShadowMobj_t) Bottom() Mobj_i { return s.bottom }

// Shadowed exposes the immediate link, used by Collapse and by tests
// walking the chain.
func (s *ShadowMobj_t) Shadowed() Mobj_i { return s.shadowed }

// GetPframe implements shadow_get_pframe from original_source/kernel/vm/
// shadow.c: writers always go through the default path (materializing a
// private copy via FillPframe); readers walk the chain iteratively,
// never recursively, so an arbitrarily long fork-bomb chain cannot
// overflow the call stack.
func (s *ShadowMobj_t) GetPframe(pagenum int, forwrite bool) (*Pframe_t, defs.Err_t) {
	if forwrite {
		return defaultGetPframe(s, &s.mobjBase, pagenum)
	}
	if pf := s.findPframe(pagenum); pf != nil {
		return pf, 0
	}
	for cur := s.shadowed; ; {
		if pf := cur.findPframe(pagenum); pf != nil {
			return pf, 0
		}
		so, ok := cur.(*ShadowMobj_t)
		if !ok {
			break
		}
		cur = so.shadowed
	}
	return s.bottom.GetPframe(pagenum, false)
}

// FillPframe implements shadow_fill_pframe: copy the nearest ancestor's
// bytes into pf, walking the chain iteratively and falling back to the
// bottom object.
func (s *ShadowMobj_t) FillPframe(pf *Pframe_t) defs.Err_t {
	for cur := s.shadowed; ; {
		if src := cur.findPframe(pf.Pagenum); src != nil {
			copy(pf.Frame.Data[:], src.Frame.Data[:])
			return 0
		}
		so, ok := cur.(*ShadowMobj_t)
		if !ok {
			break
		}
		cur = so.shadowed
	}
	src, err := s.bottom.GetPframe(pf.Pagenum, false)
	if err != 0 {
		return err
	}
	copy(pf.Frame.Data[:], src.Frame.Data[:])
	return 0
}

func (s *ShadowMobj_t) FlushPframe(pf *Pframe_t) defs.Err_t { return 0 }

func (s *ShadowMobj_t) Put() {
	s.mu.Lock()
	s.refcount--
	dead := s.refcount == 0
	s.mu.Unlock()
	if dead {
		s.destroy()
	}
}

func (s *ShadowMobj_t) destroy() {
	if s.shadowed != nil {
		s.shadowed.Put()
	}
	if s.bottom != nil {
		s.bottom.Put()
	}
}

// Collapse splices s.shadowed out of the chain whenever s is the sole
// referent of it (refcount 1), migrating every pframe the collapsed link
// holds — that s does not already have — into s before dropping the
// link. spec.md's Open Questions flag that original_source's
// shadow_collapse never actually migrates pages before unlinking; this
// implementation does the migration first so no page is ever lost.
func (s *ShadowMobj_t) Collapse() {
	s.mu.Lock()
	shadowed := s.shadowed
	s.mu.Unlock()

	so, ok := shadowed.(*ShadowMobj_t)
	if !ok {
		return
	}

	// Canonical order: lock s (the parent in the chain) before shadowed,
	// per spec.md §5's deadlock-avoidance rule for mobj locks during
	// collapse.
	s.mu.Lock()
	so.mu.Lock()

	if so.refcount != 1 {
		so.mu.Unlock()
		s.mu.Unlock()
		return
	}

	for _, k := range so.cache.Keys() {
		if _, have := s.cache.Peek(k); have {
			continue
		}
		if pf, ok := so.cache.Get(k); ok {
			migrated := &Pframe_t{Owner: s, Pagenum: pf.Pagenum, Pa: pf.Pa, Frame: pf.Frame, Dirty: pf.Dirty}
			s.cache.Add(k, migrated)
		}
	}

	newShadowed := so.shadowed
	s.shadowed = newShadowed
	so.mu.Unlock()
	s.mu.Unlock()

	if newShadowed != nil {
		newShadowed.Ref()
	}
	// Dropping our reference to so now runs so's destructor, which in
	// turn Puts so.shadowed and so.bottom — safe because we already took
	// our own reference to the new shadowed link above.
	so.Put()
}
