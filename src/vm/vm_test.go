package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
)

func newTestAS() *AddrSpace_t {
	return NewAddrSpace(mem.NewSoftPagetable(), mem.NewBitmapAllocator(), klog.Nop())
}

// TestForkCOWDivergence exercises spec.md §8 scenario 6 end to end: an
// anonymous page is written by the parent before fork, both parent and
// child read the same value immediately after fork (still sharing frames
// through their fresh shadows), and a write by either one is invisible to
// the other.
func TestForkCOWDivergence(t *testing.T) {
	parent := newTestAS()
	frames := mem.NewBitmapAllocator()

	base := NewAnonMobj(frames, klog.Nop())
	parent.Insert(&Vmarea_t{
		Start: defs.UserLow / defs.PageSize, End: defs.UserLow/defs.PageSize + 1,
		Prot: defs.ProtRead | defs.ProtWrite, Mobj: base,
	})

	buf := []byte("hello")
	n, err := parent.Write(defs.UserLow, buf)
	require.EqualValues(t, 0, err)
	require.Equal(t, len(buf), n)

	child, err := parent.Clone(mem.NewSoftPagetable())
	require.EqualValues(t, 0, err)

	got := make([]byte, len(buf))
	_, err = parent.Read(defs.UserLow, got)
	require.EqualValues(t, 0, err)
	assert.Equal(t, buf, got)

	_, err = child.Read(defs.UserLow, got)
	require.EqualValues(t, 0, err)
	assert.Equal(t, buf, got, "child must see the parent's pre-fork contents")

	_, err = child.Write(defs.UserLow, []byte("WORLD"))
	require.EqualValues(t, 0, err)

	_, err = parent.Read(defs.UserLow, got)
	require.EqualValues(t, 0, err)
	assert.Equal(t, buf, got, "parent must not observe the child's post-fork write")

	childGot := make([]byte, 5)
	_, err = child.Read(defs.UserLow, childGot)
	require.EqualValues(t, 0, err)
	assert.Equal(t, []byte("WORLD"), childGot)
}

// TestShadowChainBottomInvariant checks spec.md §8's "S.bottom.type ≠
// SHADOW" invariant across a chain of three stacked shadows.
func TestShadowChainBottomInvariant(t *testing.T) {
	frames := mem.NewBitmapAllocator()
	anon := NewAnonMobj(frames, klog.Nop())

	s1 := NewShadow(anon, frames, klog.Nop()).(*ShadowMobj_t)
	s2 := NewShadow(s1, frames, klog.Nop()).(*ShadowMobj_t)
	s3 := NewShadow(s2, frames, klog.Nop()).(*ShadowMobj_t)

	assert.Equal(t, anon, s1.Bottom())
	assert.Equal(t, anon, s2.Bottom())
	assert.Equal(t, anon, s3.Bottom())
	assert.NotEqual(t, MobjShadow, s3.Bottom().Type())
}

// TestCollapseAllShortensChainAfterSiblingExit exercises AddrSpace_t.
// CollapseAll end to end: a grandchild's shadow chain has a middle link
// (the exited child's own shadow) collapsed out once that sibling's
// address space is destroyed and drops its reference, mirroring
// original_source's vmmap_collapse being swept from a surviving address
// space rather than the dying one.
func TestCollapseAllShortensChainAfterSiblingExit(t *testing.T) {
	frames := mem.NewBitmapAllocator()
	root := newTestAS()

	base := NewAnonMobj(frames, klog.Nop())
	root.Insert(&Vmarea_t{
		Start: defs.UserLow / defs.PageSize, End: defs.UserLow/defs.PageSize + 1,
		Prot: defs.ProtRead | defs.ProtWrite, Mobj: base,
	})

	child, err := root.Clone(mem.NewSoftPagetable())
	require.EqualValues(t, 0, err)

	grandchild, err := child.Clone(mem.NewSoftPagetable())
	require.EqualValues(t, 0, err)

	gv, ok := grandchild.Lookup(defs.UserLow / defs.PageSize)
	require.True(t, ok)
	gs, ok := gv.Mobj.(*ShadowMobj_t)
	require.True(t, ok)
	middle, ok := gs.Shadowed().(*ShadowMobj_t)
	require.True(t, ok, "grandchild's shadow must chain through child's own shadow")

	child.Destroy() // simulates the child process exiting

	grandchild.CollapseAll()
	assert.NotEqual(t, middle, gs.Shadowed(), "collapse should have spliced the exited sibling's shadow out")
	assert.Equal(t, base, gs.Shadowed())
}

// TestShadowCollapseMigratesPages verifies the Open-Question fix: a page
// resident only in the collapsed middle link is still readable through
// the parent after Collapse, not lost.
func TestShadowCollapseMigratesPages(t *testing.T) {
	frames := mem.NewBitmapAllocator()
	anon := NewAnonMobj(frames, klog.Nop())

	s1 := NewShadow(anon, frames, klog.Nop()).(*ShadowMobj_t)
	pf, err := s1.GetPframe(0, true)
	require.EqualValues(t, 0, err)
	copy(pf.Frame.Data[:5], []byte("abcde"))
	pf.Dirty = true

	s2 := NewShadow(s1, frames, klog.Nop()).(*ShadowMobj_t)
	s1.Put() // s2 is now the sole referent of s1, as it would be after a vmarea retargets from s1 to s2

	s2.Collapse()

	assert.Equal(t, anon, s2.Shadowed())
	got, err := s2.GetPframe(0, false)
	require.EqualValues(t, 0, err)
	assert.Equal(t, []byte("abcde"), got.Frame.Data[:5])
}

func TestFindRangeFirstFit(t *testing.T) {
	as := newTestAS()
	frames := mem.NewBitmapAllocator()

	lowPage := defs.UserLow / defs.PageSize
	as.Insert(&Vmarea_t{Start: lowPage, End: lowPage + 2, Mobj: NewAnonMobj(frames, klog.Nop())})
	as.Insert(&Vmarea_t{Start: lowPage + 2, End: lowPage + 4, Mobj: NewAnonMobj(frames, klog.Nop())})

	start, err := as.FindRange(1, defs.LowToHigh)
	require.EqualValues(t, 0, err)
	assert.Equal(t, lowPage+4, start)

	assert.True(t, as.IsRangeEmpty(lowPage+4, 1))
	assert.False(t, as.IsRangeEmpty(lowPage, 1))
}

func TestMmapAnonThenMunmap(t *testing.T) {
	as := newTestAS()
	frames := mem.NewBitmapAllocator()

	addr, err := Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 2, Prot: defs.ProtRead | defs.ProtWrite, Flags: defs.MapPrivate | defs.MapAnon,
	})
	require.EqualValues(t, 0, err)

	_, err = as.Write(addr, []byte("ok"))
	require.EqualValues(t, 0, err)

	require.EqualValues(t, 0, Munmap(as, addr, 2))
	assert.True(t, as.IsRangeEmpty(addr/defs.PageSize, 2))

	_, err = as.Read(addr, make([]byte, 2))
	assert.EqualValues(t, defs.EFAULT, err)
}

func TestMmapRejectsBadFlagsAndOffset(t *testing.T) {
	as := newTestAS()
	frames := mem.NewBitmapAllocator()

	_, err := Mmap(as, frames, klog.Nop(), MmapRequest{Npages: 1, Flags: 0})
	assert.EqualValues(t, defs.EINVAL, err, "neither PRIVATE nor SHARED set")

	_, err = Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 1, Flags: defs.MapPrivate | defs.MapShared,
	})
	assert.EqualValues(t, defs.EINVAL, err, "both PRIVATE and SHARED set")

	_, err = Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 1, Flags: defs.MapPrivate | defs.MapAnon, Off: 1,
	})
	assert.EqualValues(t, defs.EINVAL, err, "offset not page-aligned")

	_, err = Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 1, Flags: defs.MapPrivate | defs.MapAnon, Off: -defs.PageSize,
	})
	assert.EqualValues(t, defs.EINVAL, err, "negative offset")
}

func TestMmapFixedOutsideUserRangeIsEINVAL(t *testing.T) {
	as := newTestAS()
	frames := mem.NewBitmapAllocator()

	_, err := Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 1, Flags: defs.MapPrivate | defs.MapAnon | defs.MapFixed,
		Addr: defs.UserLow - defs.PageSize,
	})
	assert.EqualValues(t, defs.EINVAL, err, "addr below USER_LOW")

	_, err = Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 1, Flags: defs.MapPrivate | defs.MapAnon | defs.MapFixed,
		Addr: defs.UserHigh - defs.PageSize/2,
	})
	assert.EqualValues(t, defs.EINVAL, err, "addr not page-aligned")

	npages := 2
	_, err = Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: npages, Flags: defs.MapPrivate | defs.MapAnon | defs.MapFixed,
		Addr: defs.UserHigh - uintptr(npages-1)*defs.PageSize,
	})
	assert.EqualValues(t, defs.EINVAL, err, "mapping's end runs past USER_HIGH")

	addr, err := Mmap(as, frames, klog.Nop(), MmapRequest{
		Npages: 1, Flags: defs.MapPrivate | defs.MapAnon | defs.MapFixed,
		Addr: defs.UserLow,
	})
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.UserLow, addr)
}

func TestBrkGrowAndShrink(t *testing.T) {
	as := newTestAS()
	frames := mem.NewBitmapAllocator()

	b1, err := Brk(as, frames, klog.Nop(), defs.UserLow+defs.PageSize)
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.UserLow+defs.PageSize, b1)

	_, err = as.Write(defs.UserLow, []byte("heap"))
	require.EqualValues(t, 0, err)

	b2, err := Brk(as, frames, klog.Nop(), defs.UserLow+3*defs.PageSize)
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.UserLow+3*defs.PageSize, b2)

	got := make([]byte, 4)
	_, err = as.Read(defs.UserLow, got)
	require.EqualValues(t, 0, err)
	assert.Equal(t, []byte("heap"), got)

	b3, err := Brk(as, frames, klog.Nop(), defs.UserLow+defs.PageSize)
	require.EqualValues(t, 0, err)
	assert.Equal(t, defs.UserLow+defs.PageSize, b3)

	_, err = as.Read(defs.UserLow+2*defs.PageSize, make([]byte, 1))
	assert.EqualValues(t, defs.EFAULT, err)
}

func TestBrkOutOfRangeIsENOMEM(t *testing.T) {
	as := newTestAS()
	frames := mem.NewBitmapAllocator()

	_, err := Brk(as, frames, klog.Nop(), defs.UserLow+defs.PageSize)
	require.EqualValues(t, 0, err)

	_, err = Brk(as, frames, klog.Nop(), defs.UserLow-defs.PageSize)
	assert.EqualValues(t, defs.ENOMEM, err)

	_, err = Brk(as, frames, klog.Nop(), defs.UserHigh+defs.PageSize)
	assert.EqualValues(t, defs.ENOMEM, err)
}
