// Package ramfs is a concrete, memory-only filesystem driver implementing
// vfs.VnodeOps_i and vfs.Filesystem_i: every file's data lives in a Go
// byte slice, every directory is a name-to-inum map, and every vnode is
// interned by inode number in a refcounted cache, mirroring the icache
// discipline in the teacher's fs.refcache_t but simplified since there is
// no on-disk block layout to fault in from.
package ramfs

import (
	"sync"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/vfs"
	"github.com/mit-pdos/gokernel/src/vm"
)

// inode_t is the data a ramfs inode carries. Its vfs.Vnode_t counterpart
// holds only the type/len/refcount fields the core needs; everything
// filesystem-specific lives here, keyed by inum in Filesystem_t.nodes.
type inode_t struct {
	mu       sync.Mutex
	inum     defs.Inum_t
	typ      defs.VnodeType
	data     []byte
	children map[string]defs.Inum_t // valid for VnodeDir only
	names    []string                // insertion order, for stable Readdir
	links    int
	major    int
	minor    int
	dev      deviceBacking_i
}

// Filesystem_t is a mounted ramfs instance: a monotonic inode allocator,
// the inode table, and a refcounted vnode cache so repeated lookups of the
// same inode return the identical *vfs.Vnode_t (spec.md §3's interning
// requirement).
type Filesystem_t struct {
	mu       sync.Mutex
	nextInum defs.Inum_t
	nodes    map[defs.Inum_t]*inode_t
	vcache   map[defs.Inum_t]*vfs.Vnode_t

	root *vfs.Vnode_t
	log  klog.Logger
}

// New creates an empty ramfs with a root directory at inode 1.
func New(log klog.Logger) *Filesystem_t {
	if log == nil {
		log = klog.Nop()
	}
	fs := &Filesystem_t{
		nextInum: 1,
		nodes:    make(map[defs.Inum_t]*inode_t),
		vcache:   make(map[defs.Inum_t]*vfs.Vnode_t),
		log:      log,
	}
	rootInum := fs.allocInum()
	root := &inode_t{inum: rootInum, typ: defs.VnodeDir, children: map[string]defs.Inum_t{}, links: 2}
	fs.mu.Lock()
	fs.nodes[rootInum] = root
	fs.mu.Unlock()
	fs.root = fs.internLocked(root)
	return fs
}

func (fs *Filesystem_t) allocInum() defs.Inum_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.nextInum
	fs.nextInum++
	return n
}

// internLocked returns the cached vnode for n's inode, creating it (with
// refcount 1) if this is the first reference, or bumping the refcount of
// the existing one.
func (fs *Filesystem_t) internLocked(n *inode_t) *vfs.Vnode_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if v, ok := fs.vcache[n.inum]; ok {
		v.Ref()
		return v
	}
	v := vfs.NewVnode(n.inum, n.typ, fs, fs)
	v.Major, v.Minor = n.major, n.minor
	v.Len = len(n.data)
	fs.vcache[n.inum] = v
	return v
}

func (fs *Filesystem_t) Root() *vfs.Vnode_t     { fs.root.Ref(); return fs.root }
func (fs *Filesystem_t) Ops() vfs.VnodeOps_i    { return fs }

func (fs *Filesystem_t) Get(inum defs.Inum_t) (*vfs.Vnode_t, bool) {
	fs.mu.Lock()
	n, ok := fs.nodes[inum]
	fs.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fs.internLocked(n), true
}

// DeleteVnode implements the icache-eviction hook vfs.Vnode_t.Put calls on
// the last reference: drop the vnode from the cache, and if the inode's
// link count has already reached zero (it was unlinked while open), free
// its data too.
func (fs *Filesystem_t) DeleteVnode(v *vfs.Vnode_t) {
	fs.mu.Lock()
	delete(fs.vcache, v.Inum)
	n, ok := fs.nodes[v.Inum]
	if ok && n.links == 0 {
		delete(fs.nodes, v.Inum)
	}
	fs.mu.Unlock()
}

func (fs *Filesystem_t) inode(v *vfs.Vnode_t) *inode_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.nodes[v.Inum]
}

func (fs *Filesystem_t) syncVnodeLen(v *vfs.Vnode_t, n *inode_t) {
	n.mu.Lock()
	l := len(n.data)
	n.mu.Unlock()
	v.Len = l
}

func (fs *Filesystem_t) Read(v *vfs.Vnode_t, pos int, buf []byte) (int, defs.Err_t) {
	n := fs.inode(v)
	n.mu.Lock()
	dev := n.dev
	n.mu.Unlock()
	if dev != nil {
		return dev.Read(pos, buf)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if pos >= len(n.data) {
		return 0, 0
	}
	c := copy(buf, n.data[pos:])
	return c, 0
}

func (fs *Filesystem_t) Write(v *vfs.Vnode_t, pos int, buf []byte) (int, defs.Err_t) {
	n := fs.inode(v)
	n.mu.Lock()
	dev := n.dev
	n.mu.Unlock()
	if dev != nil {
		return dev.Write(pos, buf)
	}

	n.mu.Lock()
	need := pos + len(buf)
	if need > len(n.data) {
		grown := make([]byte, need)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[pos:], buf)
	n.mu.Unlock()
	fs.syncVnodeLen(v, n)
	return len(buf), 0
}

func (fs *Filesystem_t) Truncate(v *vfs.Vnode_t, size int) defs.Err_t {
	n := fs.inode(v)
	n.mu.Lock()
	if size <= len(n.data) {
		n.data = n.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	n.mu.Unlock()
	fs.syncVnodeLen(v, n)
	return 0
}

func (fs *Filesystem_t) Stat(v *vfs.Vnode_t) (vfs.Stat_t, defs.Err_t) {
	n := fs.inode(v)
	n.mu.Lock()
	defer n.mu.Unlock()
	return vfs.Stat_t{
		Inum: n.inum, Type: n.typ, Size: len(n.data),
		Links: n.links, Major: n.major, Minor: n.minor,
	}, 0
}

func (fs *Filesystem_t) Readdir(v *vfs.Vnode_t, pos int) (vfs.Dirent_t, int, defs.Err_t) {
	n := fs.inode(v)
	n.mu.Lock()
	defer n.mu.Unlock()
	if pos < 0 || pos >= len(n.names) {
		return vfs.Dirent_t{}, 0, defs.ENOENT
	}
	name := n.names[pos]
	inum := n.children[name]
	return vfs.Dirent_t{Inum: inum, Name: name}, 1, 0
}

func (fs *Filesystem_t) Lookup(dir *vfs.Vnode_t, name string) (*vfs.Vnode_t, defs.Err_t) {
	if name == "." {
		dir.Ref()
		return dir, 0
	}
	dn := fs.inode(dir)
	dn.mu.Lock()
	if name == ".." {
		parent := dn.parentInum(fs)
		dn.mu.Unlock()
		v, ok := fs.Get(parent)
		if !ok {
			return nil, defs.ENOENT
		}
		return v, 0
	}
	inum, ok := dn.children[name]
	dn.mu.Unlock()
	if !ok {
		return nil, defs.ENOENT
	}
	v, ok := fs.Get(inum)
	if !ok {
		return nil, defs.ENOENT
	}
	return v, 0
}

// parentInum stores ".." as an ordinary child entry so no back-reference
// to a *Filesystem_t needs to live on inode_t (spec.md §7's rule that
// back-references are never traversed during destruction — this sidesteps
// the question entirely for the root's self-referential "..").
func (n *inode_t) parentInum(fs *Filesystem_t) defs.Inum_t {
	if p, ok := n.children[".."]; ok {
		return p
	}
	return n.inum
}

func (fs *Filesystem_t) create(dir *vfs.Vnode_t, name string, typ defs.VnodeType, major, minor int) (*vfs.Vnode_t, defs.Err_t) {
	dn := fs.inode(dir)
	dn.mu.Lock()
	if _, exists := dn.children[name]; exists {
		dn.mu.Unlock()
		return nil, defs.EEXIST
	}
	dn.mu.Unlock()

	inum := fs.allocInum()
	n := &inode_t{inum: inum, typ: typ, links: 1, major: major, minor: minor}
	if typ == defs.VnodeCharDev || typ == defs.VnodeBlockDev {
		n.dev = deviceForMinor(major, minor)
	}
	if typ == defs.VnodeDir {
		n.children = map[string]defs.Inum_t{"..": dir.Inum}
		n.links = 2
	}

	fs.mu.Lock()
	fs.nodes[inum] = n
	fs.mu.Unlock()

	dn.mu.Lock()
	dn.children[name] = inum
	dn.names = append(dn.names, name)
	if typ == defs.VnodeDir {
		dn.links++
	}
	dn.mu.Unlock()

	return fs.internLocked(n), 0
}

func (fs *Filesystem_t) Create(dir *vfs.Vnode_t, name string, typ defs.VnodeType) (*vfs.Vnode_t, defs.Err_t) {
	return fs.create(dir, name, typ, 0, 0)
}

// Mknod implements vfs.VnodeOps_i.Mknod for both device classes; typ
// selects VnodeCharDev vs. VnodeBlockDev, matching do_mknod's mode
// validation (S_IFCHR/S_IFBLK) in original_source/kernel/fs/vfs_syscall.c.
func (fs *Filesystem_t) Mknod(dir *vfs.Vnode_t, name string, typ defs.VnodeType, major, minor int) (*vfs.Vnode_t, defs.Err_t) {
	return fs.create(dir, name, typ, major, minor)
}

func (fs *Filesystem_t) Mkdir(dir *vfs.Vnode_t, name string) (*vfs.Vnode_t, defs.Err_t) {
	return fs.create(dir, name, defs.VnodeDir, 0, 0)
}

func (fs *Filesystem_t) Rmdir(dir *vfs.Vnode_t, name string) defs.Err_t {
	dn := fs.inode(dir)
	dn.mu.Lock()
	inum, ok := dn.children[name]
	if !ok {
		dn.mu.Unlock()
		return defs.ENOENT
	}
	fs.mu.Lock()
	child := fs.nodes[inum]
	fs.mu.Unlock()

	child.mu.Lock()
	isDir := child.typ == defs.VnodeDir
	empty := len(child.children) == 1 // only ".."
	child.mu.Unlock()
	if !isDir {
		dn.mu.Unlock()
		return defs.ENOTDIR
	}
	if !empty {
		dn.mu.Unlock()
		return defs.ENOTEMPTY
	}

	delete(dn.children, name)
	dn.names = removeName(dn.names, name)
	dn.links--
	dn.mu.Unlock()

	child.mu.Lock()
	child.links = 0
	child.mu.Unlock()
	return 0
}

func (fs *Filesystem_t) Link(dir *vfs.Vnode_t, name string, target *vfs.Vnode_t) defs.Err_t {
	dn := fs.inode(dir)
	tn := fs.inode(target)

	dn.mu.Lock()
	if _, exists := dn.children[name]; exists {
		dn.mu.Unlock()
		return defs.EEXIST
	}
	dn.children[name] = target.Inum
	dn.names = append(dn.names, name)
	dn.mu.Unlock()

	tn.mu.Lock()
	tn.links++
	tn.mu.Unlock()
	return 0
}

func (fs *Filesystem_t) Unlink(dir *vfs.Vnode_t, name string) defs.Err_t {
	dn := fs.inode(dir)
	dn.mu.Lock()
	inum, ok := dn.children[name]
	if !ok {
		dn.mu.Unlock()
		return defs.ENOENT
	}
	delete(dn.children, name)
	dn.names = removeName(dn.names, name)
	dn.mu.Unlock()

	fs.mu.Lock()
	n := fs.nodes[inum]
	fs.mu.Unlock()
	n.mu.Lock()
	n.links--
	dead := n.links == 0
	n.mu.Unlock()
	if dead {
		fs.mu.Lock()
		if _, cached := fs.vcache[inum]; !cached {
			delete(fs.nodes, inum)
		}
		fs.mu.Unlock()
	}
	return 0
}

func (fs *Filesystem_t) Rename(olddir *vfs.Vnode_t, oldname string, newdir *vfs.Vnode_t, newname string) defs.Err_t {
	odn := fs.inode(olddir)
	odn.mu.Lock()
	inum, ok := odn.children[oldname]
	if !ok {
		odn.mu.Unlock()
		return defs.ENOENT
	}
	fs.mu.Lock()
	n := fs.nodes[inum]
	fs.mu.Unlock()
	if n.typ == defs.VnodeDir {
		odn.mu.Unlock()
		return defs.EPERM
	}
	delete(odn.children, oldname)
	odn.names = removeName(odn.names, oldname)
	odn.mu.Unlock()

	ndn := fs.inode(newdir)
	ndn.mu.Lock()
	if old, exists := ndn.children[newname]; exists {
		ndn.names = removeName(ndn.names, newname)
		fs.mu.Lock()
		if on := fs.nodes[old]; on != nil {
			on.mu.Lock()
			on.links--
			on.mu.Unlock()
		}
		fs.mu.Unlock()
	} else {
		ndn.names = append(ndn.names, newname)
	}
	ndn.children[newname] = inum
	ndn.mu.Unlock()
	return 0
}

// Mmap hands back the filesystem itself as the FileBacking_i for a FILE or
// BLOCKDEV mobj: pagenum maps directly onto a PageSize-aligned slice of the
// inode's data (spec.md §4.2's file-mapping path). Directories and char
// devices have nothing page-shaped to map, matching do_mmap's "vn_ops->
// mmap doesn't exist" check (ENODEV) — this port always has the method,
// so it rejects by vnode type instead.
func (fs *Filesystem_t) Mmap(v *vfs.Vnode_t) (vm.FileBacking_i, defs.Err_t) {
	switch v.Type {
	case defs.VnodeRegular, defs.VnodeBlockDev:
		return &fileBacking{fs: fs, inum: v.Inum}, 0
	default:
		return nil, defs.ENODEV
	}
}

type fileBacking struct {
	fs   *Filesystem_t
	inum defs.Inum_t
}

func (b *fileBacking) ReadPage(pagenum int, dst []byte) (int, defs.Err_t) {
	b.fs.mu.Lock()
	n := b.fs.nodes[b.inum]
	b.fs.mu.Unlock()
	off := pagenum * defs.PageSize
	n.mu.Lock()
	defer n.mu.Unlock()
	if off >= len(n.data) {
		return 0, 0
	}
	return copy(dst, n.data[off:]), 0
}

func (b *fileBacking) WritePage(pagenum int, src []byte) defs.Err_t {
	b.fs.mu.Lock()
	n := b.fs.nodes[b.inum]
	b.fs.mu.Unlock()
	off := pagenum * defs.PageSize
	n.mu.Lock()
	defer n.mu.Unlock()
	need := off + len(src)
	if need > len(n.data) {
		grown := make([]byte, need)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:], src)
	return 0
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, s := range names {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
