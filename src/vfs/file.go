package vfs

import (
	"sync"

	"github.com/mit-pdos/gokernel/src/defs"
)

// file mode bits, distinct from a vnode's protection bits — these gate
// what a particular open instance of a vnode may do.
const (
	FmodeRead = 1 << iota
	FmodeWrite
	FmodeAppend
)

// OpenFile_t is spec.md §3's "refcounted triple of (vnode-reference, mode
// bits, byte position)".
type OpenFile_t struct {
	mu    sync.Mutex
	Vnode *Vnode_t
	Mode  int
	Pos   int

	refcount int
}

func newOpenFile(v *Vnode_t, mode int) *OpenFile_t {
	return &OpenFile_t{Vnode: v, Mode: mode, refcount: 1}
}

func (f *OpenFile_t) Ref() {
	f.mu.Lock()
	f.refcount++
	f.mu.Unlock()
}

// Put decrements the open-file's refcount, releasing its vnode reference
// once no descriptor (or dup) still points at it.
func (f *OpenFile_t) Put() {
	f.mu.Lock()
	f.refcount--
	dead := f.refcount == 0
	f.mu.Unlock()
	if dead {
		f.Vnode.Put()
	}
}

// Fdtable_t is a process's fixed-size descriptor table (spec.md §3).
type Fdtable_t struct {
	mu  sync.Mutex
	fds []*OpenFile_t
}

func NewFdtable(n int) *Fdtable_t {
	return &Fdtable_t{fds: make([]*OpenFile_t, n)}
}

// getEmptyFd scans low-to-high for a free slot, per spec.md §4.3.
func (t *Fdtable_t) getEmptyFd() (int, defs.Err_t) {
	for i, f := range t.fds {
		if f == nil {
			return i, 0
		}
	}
	return 0, defs.EMFILE
}

// Install places f into the lowest free slot and returns its descriptor.
func (t *Fdtable_t) Install(f *OpenFile_t) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd, err := t.getEmptyFd()
	if err != 0 {
		return 0, err
	}
	t.fds[fd] = f
	return fd, 0
}

// Get returns the open file at fd without changing its refcount, or
// EBADF if fd is out of range or unused.
func (t *Fdtable_t) Get(fd int) (*OpenFile_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.fds) || t.fds[fd] == nil {
		return nil, defs.EBADF
	}
	return t.fds[fd], 0
}

// Close removes fd from the table and puts its open file.
func (t *Fdtable_t) Close(fd int) defs.Err_t {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.fds) || t.fds[fd] == nil {
		t.mu.Unlock()
		return defs.EBADF
	}
	f := t.fds[fd]
	t.fds[fd] = nil
	t.mu.Unlock()
	f.Put()
	return 0
}

// Dup installs a fresh reference to fd's open file in the lowest free slot.
func (t *Fdtable_t) Dup(fd int) (int, defs.Err_t) {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.fds) || t.fds[fd] == nil {
		t.mu.Unlock()
		return 0, defs.EBADF
	}
	f := t.fds[fd]
	nfd, err := t.getEmptyFd()
	if err != 0 {
		t.mu.Unlock()
		return 0, err
	}
	f.Ref()
	t.fds[nfd] = f
	t.mu.Unlock()
	return nfd, 0
}

// Dup2 makes nfd an exact duplicate of ofd, closing whatever nfd held
// first. Dup2(fd, fd) is a no-op that returns fd.
func (t *Fdtable_t) Dup2(ofd, nfd int) (int, defs.Err_t) {
	t.mu.Lock()
	if ofd < 0 || ofd >= len(t.fds) || t.fds[ofd] == nil {
		t.mu.Unlock()
		return 0, defs.EBADF
	}
	if nfd < 0 || nfd >= len(t.fds) {
		t.mu.Unlock()
		return 0, defs.EBADF
	}
	if ofd == nfd {
		t.mu.Unlock()
		return nfd, 0
	}
	old := t.fds[nfd]
	f := t.fds[ofd]
	f.Ref()
	t.fds[nfd] = f
	t.mu.Unlock()
	if old != nil {
		old.Put()
	}
	return nfd, 0
}

// Clone duplicates every open descriptor for a forked child (spec.md
// §4.4's "duplicate open files").
func (t *Fdtable_t) Clone() *Fdtable_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := NewFdtable(len(t.fds))
	for i, f := range t.fds {
		if f != nil {
			f.Ref()
			nt.fds[i] = f
		}
	}
	return nt
}

// CloseAll releases every open descriptor, called during process exit.
func (t *Fdtable_t) CloseAll() {
	t.mu.Lock()
	fds := make([]*OpenFile_t, len(t.fds))
	copy(fds, t.fds)
	for i := range t.fds {
		t.fds[i] = nil
	}
	t.mu.Unlock()
	for _, f := range fds {
		if f != nil {
			f.Put()
		}
	}
}
