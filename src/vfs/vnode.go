// Package vfs implements the virtual filesystem core from spec.md §4.3:
// reference-counted vnodes interned by inode number, path resolution,
// per-process descriptor tables, and the directory/regular-file syscall
// surface. Concrete filesystems (ramfs, device nodes) implement VnodeOps_i;
// this package never assumes an on-disk layout.
package vfs

import (
	"sync"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/vm"
)

// Dirent_t is one directory entry returned by Readdir.
type Dirent_t struct {
	Inum defs.Inum_t
	Name string
}

// Stat_t is the subset of struct stat spec.md §4.3's stat syscall reports.
type Stat_t struct {
	Inum  defs.Inum_t
	Type  defs.VnodeType
	Size  int
	Links int
	Major int
	Minor int
}

// VnodeOps_i is the filesystem-driver operation table from spec.md §4.3.
// Every method receives the vnode already locked by the caller, matching
// the "must be held during any read/write/readdir/..." rule in spec.md
// §5, except Lookup/Create/Mknod/Mkdir/Rmdir/Link/Unlink/Rename which lock
// the parent directory but not the (possibly not-yet-existing) target.
type VnodeOps_i interface {
	Read(v *Vnode_t, pos int, buf []byte) (int, defs.Err_t)
	Write(v *Vnode_t, pos int, buf []byte) (int, defs.Err_t)
	Truncate(v *Vnode_t, size int) defs.Err_t
	Stat(v *Vnode_t) (Stat_t, defs.Err_t)
	Readdir(v *Vnode_t, pos int) (Dirent_t, int, defs.Err_t)

	Lookup(dir *Vnode_t, name string) (*Vnode_t, defs.Err_t)
	Create(dir *Vnode_t, name string, mode defs.VnodeType) (*Vnode_t, defs.Err_t)
	Mknod(dir *Vnode_t, name string, typ defs.VnodeType, major, minor int) (*Vnode_t, defs.Err_t)
	Mkdir(dir *Vnode_t, name string) (*Vnode_t, defs.Err_t)
	Rmdir(dir *Vnode_t, name string) defs.Err_t
	Link(dir *Vnode_t, name string, target *Vnode_t) defs.Err_t
	Unlink(dir *Vnode_t, name string) defs.Err_t
	Rename(olddir *Vnode_t, oldname string, newdir *Vnode_t, newname string) defs.Err_t

	Mmap(v *Vnode_t) (vm.FileBacking_i, defs.Err_t)
}

// Filesystem_i is what a mounted filesystem exposes to the core: its root
// vnode and the shared operations table its vnodes dispatch through
// (spec.md §7's "Filesystem driver" collaborator).
type Filesystem_i interface {
	Root() *Vnode_t
	Ops() VnodeOps_i
	// Get interns and returns the vnode for inum, incrementing its
	// refcount; the second return is false if inum has no live inode.
	Get(inum defs.Inum_t) (*Vnode_t, bool)
}

// Vnode_t is the in-memory inode from spec.md §3: reference count, mutex,
// type, length, an operations table, a back-reference to its owning
// filesystem, and an optional device-id pair. Vnodes are interned per
// filesystem by inode number so every lookup of the same inode returns
// the same *Vnode_t with an incremented refcount.
type Vnode_t struct {
	mu sync.Mutex

	Inum  defs.Inum_t
	Type  defs.VnodeType
	Len   int
	Major int
	Minor int

	FS  Filesystem_i
	Ops VnodeOps_i

	refcount int
}

func NewVnode(inum defs.Inum_t, typ defs.VnodeType, fs Filesystem_i, ops VnodeOps_i) *Vnode_t {
	return &Vnode_t{Inum: inum, Type: typ, FS: fs, Ops: ops, refcount: 1}
}

func (v *Vnode_t) Lock()   { v.mu.Lock() }
func (v *Vnode_t) Unlock() { v.mu.Unlock() }

// Ref increments the vnode's refcount; used whenever a caller hands out an
// existing *Vnode_t pointer (interning) rather than constructing a new one.
func (v *Vnode_t) Ref() {
	v.mu.Lock()
	v.refcount++
	v.mu.Unlock()
}

// Put decrements the refcount and, on reaching zero, calls the owning
// filesystem's DeleteVnode (spec.md §4.3's reference-counting discipline).
func (v *Vnode_t) Put() {
	v.mu.Lock()
	v.refcount--
	dead := v.refcount == 0
	v.mu.Unlock()
	if dead {
		if d, ok := v.FS.(interface{ DeleteVnode(*Vnode_t) }); ok {
			d.DeleteVnode(v)
		}
	}
}

func (v *Vnode_t) RefCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refcount
}

// VlockInOrder locks a and b in the canonical order spec.md §4.3/§5
// requires for link and rename: by ascending inode number, so two threads
// racing to link/rename the same pair never deadlock.
func VlockInOrder(a, b *Vnode_t) {
	if a == b {
		a.Lock()
		return
	}
	if a.Inum < b.Inum {
		a.Lock()
		b.Lock()
	} else {
		b.Lock()
		a.Lock()
	}
}

func VunlockInOrder(a, b *Vnode_t) {
	if a == b {
		a.Unlock()
		return
	}
	a.Unlock()
	b.Unlock()
}
