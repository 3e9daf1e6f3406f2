package vfs

import (
	"github.com/mit-pdos/gokernel/src/defs"
)

// CWD is the per-process addressable state Syscalls needs beyond the
// descriptor table: the current-working-directory vnode (spec.md §3's
// Process attribute). Passed by pointer so Chdir can swap it in place.
type CWD struct {
	Vnode *Vnode_t
}

// Syscalls bundles a filesystem root with the per-process state every
// operation below needs, mirroring spec.md §4.3's function table exposed
// to the syscall dispatcher.
type Syscalls struct {
	Root *Vnode_t
	Fds  *Fdtable_t
	Cwd  *CWD
}

func modeFromOflags(oflags int) (int, defs.Err_t) {
	acc := oflags & defs.OAccMode
	var mode int
	switch acc {
	case defs.ORdOnly:
		mode = FmodeRead
	case defs.OWrOnly:
		mode = FmodeWrite
	case defs.ORdWr:
		mode = FmodeRead | FmodeWrite
	default:
		return 0, defs.EINVAL
	}
	if oflags&defs.OAppend != 0 {
		mode |= FmodeAppend
	}
	return mode, 0
}

// Open implements spec.md §4.3's descriptor-table Open: namev_open, mode
// validation (EISDIR for a writable directory open, ENXIO for a device
// vnode with no device union), O_TRUNC truncation under the vnode lock,
// and installation into the lowest free fd slot.
func (s *Syscalls) Open(path string, oflags int, typ defs.VnodeType, major, minor int) (int, defs.Err_t) {
	mode, err := modeFromOflags(oflags)
	if err != 0 {
		return 0, err
	}

	v, err := Open(s.Root, s.Cwd.Vnode, path, oflags, typ, major, minor)
	if err != 0 {
		return 0, err
	}

	if v.Type == defs.VnodeDir && mode&(FmodeWrite) != 0 {
		v.Put()
		return 0, defs.EISDIR
	}
	// Approximates "device union is null" as major==0 && minor==0: a real
	// device node like /dev/tty0 (major 2) with no backing driver wired up
	// still opens as a plain file rather than ENXIO. Acceptable since driver
	// bodies are out of scope; see DESIGN.md.
	if (v.Type == defs.VnodeCharDev || v.Type == defs.VnodeBlockDev) && v.Major == 0 && v.Minor == 0 {
		v.Put()
		return 0, defs.ENXIO
	}

	if oflags&defs.OTrunc != 0 && v.Type == defs.VnodeRegular && mode&FmodeWrite != 0 {
		v.Lock()
		terr := v.Ops.Truncate(v, 0)
		v.Unlock()
		if terr != 0 {
			v.Put()
			return 0, terr
		}
	}

	of := newOpenFile(v, mode)
	fd, err := s.Fds.Install(of)
	if err != 0 {
		of.Put()
		return 0, err
	}
	return fd, 0
}

// Read implements the read row of spec.md §4.3's syscall table.
func (s *Syscalls) Read(fd int, buf []byte) (int, defs.Err_t) {
	f, err := s.Fds.Get(fd)
	if err != 0 {
		return 0, err
	}
	if f.Mode&FmodeRead == 0 {
		return 0, defs.EBADF
	}
	v := f.Vnode
	if v.Type == defs.VnodeDir {
		return 0, defs.EISDIR
	}

	v.Lock()
	f.mu.Lock()
	pos := f.Pos
	f.mu.Unlock()
	n, rerr := v.Ops.Read(v, pos, buf)
	v.Unlock()
	if n > 0 {
		f.mu.Lock()
		f.Pos += n
		f.mu.Unlock()
	}
	return n, rerr
}

// Write implements the write row: APPEND forces every write to the
// current end of file before the vnode operation runs.
func (s *Syscalls) Write(fd int, buf []byte) (int, defs.Err_t) {
	f, err := s.Fds.Get(fd)
	if err != 0 {
		return 0, err
	}
	if f.Mode&FmodeWrite == 0 {
		return 0, defs.EBADF
	}
	v := f.Vnode

	v.Lock()
	f.mu.Lock()
	pos := f.Pos
	if f.Mode&FmodeAppend != 0 {
		pos = v.Len
	}
	f.mu.Unlock()
	n, werr := v.Ops.Write(v, pos, buf)
	v.Unlock()
	if n > 0 {
		f.mu.Lock()
		f.Pos = pos + n
		f.mu.Unlock()
	}
	return n, werr
}

func (s *Syscalls) Close(fd int) defs.Err_t { return s.Fds.Close(fd) }
func (s *Syscalls) Dup(fd int) (int, defs.Err_t) { return s.Fds.Dup(fd) }
func (s *Syscalls) Dup2(ofd, nfd int) (int, defs.Err_t) { return s.Fds.Dup2(ofd, nfd) }

func (s *Syscalls) Lseek(fd int, offset int, whence int) (int, defs.Err_t) {
	f, err := s.Fds.Get(fd)
	if err != 0 {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var np int
	switch whence {
	case defs.SeekSet:
		np = offset
	case defs.SeekCur:
		np = f.Pos + offset
	case defs.SeekEnd:
		f.Vnode.Lock()
		np = f.Vnode.Len + offset
		f.Vnode.Unlock()
	default:
		return 0, defs.EINVAL
	}
	if np < 0 {
		return 0, defs.EINVAL
	}
	f.Pos = np
	return np, 0
}

// Mkdir implements spec.md §4.3's mkdir row.
func (s *Syscalls) Mkdir(path string) defs.Err_t {
	parent, name, err := Dir(s.Root, s.Cwd.Vnode, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	if parent.Type != defs.VnodeDir {
		return defs.ENOTDIR
	}
	if len(name) == 0 || len(name) > int(nameMax) {
		return defs.ENAMETOOLONG
	}

	parent.Lock()
	defer parent.Unlock()
	if _, lerr := parent.Ops.Lookup(parent, name); lerr == 0 {
		return defs.EEXIST
	} else if lerr != defs.ENOENT {
		return lerr
	}
	nv, merr := parent.Ops.Mkdir(parent, name)
	if merr != 0 {
		return merr
	}
	nv.Put()
	return 0
}

// Rmdir implements the rmdir row: "." is EINVAL, ".." is ENOTEMPTY.
func (s *Syscalls) Rmdir(path string) defs.Err_t {
	parent, name, err := Dir(s.Root, s.Cwd.Vnode, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	if parent.Type != defs.VnodeDir {
		return defs.ENOTDIR
	}
	if name == "." {
		return defs.EINVAL
	}
	if name == ".." {
		return defs.ENOTEMPTY
	}
	if len(name) > int(nameMax) {
		return defs.ENAMETOOLONG
	}

	parent.Lock()
	defer parent.Unlock()
	return parent.Ops.Rmdir(parent, name)
}

// Unlink implements the unlink row: unlinking a directory is EPERM.
func (s *Syscalls) Unlink(path string) defs.Err_t {
	parent, name, err := Dir(s.Root, s.Cwd.Vnode, path)
	if err != 0 {
		return err
	}
	defer parent.Put()
	if parent.Type != defs.VnodeDir {
		return defs.ENOTDIR
	}
	if len(name) > int(nameMax) {
		return defs.ENAMETOOLONG
	}

	parent.Lock()
	target, lerr := parent.Ops.Lookup(parent, name)
	if lerr == 0 {
		isDir := target.Type == defs.VnodeDir
		target.Put()
		if isDir {
			parent.Unlock()
			return defs.EPERM
		}
	}
	uerr := parent.Ops.Unlink(parent, name)
	parent.Unlock()
	return uerr
}

// Link implements the link row: locking both vnodes in canonical order.
func (s *Syscalls) Link(oldpath, newpath string) defs.Err_t {
	target, err := Resolve(s.Root, s.Cwd.Vnode, oldpath)
	if err != 0 {
		return err
	}
	defer target.Put()
	if target.Type == defs.VnodeDir {
		return defs.EPERM
	}

	parent, name, derr := Dir(s.Root, s.Cwd.Vnode, newpath)
	if derr != 0 {
		return derr
	}
	defer parent.Put()
	if parent.Type != defs.VnodeDir {
		return defs.ENOTDIR
	}
	if len(name) > int(nameMax) {
		return defs.ENAMETOOLONG
	}

	VlockInOrder(parent, target)
	lerr := parent.Ops.Link(parent, name, target)
	VunlockInOrder(parent, target)
	return lerr
}

// Rename implements the rename row (directory rename unsupported, as in
// spec.md's teaching source: callers get EPERM for a directory oldpath).
func (s *Syscalls) Rename(oldpath, newpath string) defs.Err_t {
	olddir, oldname, err := Dir(s.Root, s.Cwd.Vnode, oldpath)
	if err != 0 {
		return err
	}
	defer olddir.Put()
	newdir, newname, err := Dir(s.Root, s.Cwd.Vnode, newpath)
	if err != 0 {
		return err
	}
	defer newdir.Put()
	if olddir.Type != defs.VnodeDir || newdir.Type != defs.VnodeDir {
		return defs.ENOTDIR
	}
	if len(oldname) > int(nameMax) || len(newname) > int(nameMax) {
		return defs.ENAMETOOLONG
	}

	VlockInOrder(olddir, newdir)
	rerr := olddir.Ops.Rename(olddir, oldname, newdir, newname)
	VunlockInOrder(olddir, newdir)
	return rerr
}

// Chdir implements the chdir row: resolves target, swaps cwd, releasing
// the previous reference.
func (s *Syscalls) Chdir(path string) defs.Err_t {
	v, err := Resolve(s.Root, s.Cwd.Vnode, path)
	if err != 0 {
		return err
	}
	if v.Type != defs.VnodeDir {
		v.Put()
		return defs.ENOTDIR
	}
	old := s.Cwd.Vnode
	s.Cwd.Vnode = v
	old.Put()
	return 0
}

// Getdent implements the getdent row: advances f_pos by readdir's raw
// return, independent of how many bytes dirp reports.
func (s *Syscalls) Getdent(fd int) (Dirent_t, defs.Err_t) {
	f, err := s.Fds.Get(fd)
	if err != 0 {
		return Dirent_t{}, err
	}
	v := f.Vnode
	if v.Type != defs.VnodeDir {
		return Dirent_t{}, defs.ENOTDIR
	}

	v.Lock()
	f.mu.Lock()
	pos := f.Pos
	f.mu.Unlock()
	dent, advance, derr := v.Ops.Readdir(v, pos)
	v.Unlock()
	if derr != 0 {
		return Dirent_t{}, derr
	}
	f.mu.Lock()
	f.Pos += advance
	f.mu.Unlock()
	return dent, 0
}

// Mknod implements do_mknod's mode validation
// (original_source/kernel/fs/vfs_syscall.c): typ must be regular, char, or
// block, matching S_IFREG/S_IFCHR/S_IFBLK.
func (s *Syscalls) Mknod(path string, typ defs.VnodeType, major, minor int) defs.Err_t {
	switch typ {
	case defs.VnodeRegular, defs.VnodeCharDev, defs.VnodeBlockDev:
	default:
		return defs.EINVAL
	}

	v, err := Open(s.Root, s.Cwd.Vnode, path, defs.OCreat, typ, major, minor)
	if err != 0 {
		return err
	}
	v.Put()
	return 0
}

func (s *Syscalls) Stat(path string) (Stat_t, defs.Err_t) {
	v, err := Resolve(s.Root, s.Cwd.Vnode, path)
	if err != 0 {
		return Stat_t{}, err
	}
	defer v.Put()
	v.Lock()
	defer v.Unlock()
	return v.Ops.Stat(v)
}
