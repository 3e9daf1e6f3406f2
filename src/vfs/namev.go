package vfs

import (
	"strings"

	"github.com/mit-pdos/gokernel/src/defs"
)

const nameMax = defs.NameMax

// splitFirst returns the first non-empty, non-"." path component and the
// remainder of path after it. "." and empty components (from repeated or
// leading/trailing slashes) are skipped, per spec.md §4.3's resolve rule.
func splitFirst(path string) (comp, rest string) {
	for {
		path = strings.TrimPrefix(path, "/")
		i := strings.IndexByte(path, '/')
		if i < 0 {
			comp, rest = path, ""
		} else {
			comp, rest = path[:i], path[i+1:]
		}
		if comp == "" || comp == "." {
			if rest == "" {
				return "", ""
			}
			path = rest
			continue
		}
		return comp, rest
	}
}

// Resolve implements spec.md §4.3's `resolve(base, path) -> vnode`: walks
// every component of path starting from root (if path is absolute) or
// base (if relative; the caller substitutes the process cwd when base is
// nil), invoking each intermediate directory's Lookup and taking its
// returned reference. ".." at the root resolves to the root itself
// without calling Lookup.
func Resolve(root *Vnode_t, base *Vnode_t, path string) (*Vnode_t, defs.Err_t) {
	var cur *Vnode_t
	if strings.HasPrefix(path, "/") {
		cur = root
		cur.Ref()
	} else {
		if base == nil {
			base = root
		}
		cur = base
		cur.Ref()
	}

	comp, rest := splitFirst(path)
	for comp != "" {
		if len(comp) > nameMax {
			cur.Put()
			return nil, defs.ENAMETOOLONG
		}
		if cur.Type != defs.VnodeDir {
			cur.Put()
			return nil, defs.ENOTDIR
		}
		if comp == ".." && cur == root {
			comp, rest = splitFirst(rest)
			continue
		}
		cur.Lock()
		next, err := cur.Ops.Lookup(cur, comp)
		cur.Unlock()
		cur.Put()
		if err != 0 {
			return nil, err
		}
		cur = next
		comp, rest = splitFirst(rest)
	}
	return cur, 0
}

// Dir implements spec.md §4.3's `dir(base, path) -> (parent, basename)`:
// resolve every component up to but not including the last, so callers can
// use the parent for create/mkdir/unlink/rmdir even when the final
// component does not yet exist.
func Dir(root *Vnode_t, base *Vnode_t, path string) (parent *Vnode_t, basename string, err defs.Err_t) {
	trimmed := strings.TrimRight(path, "/")
	i := strings.LastIndexByte(trimmed, '/')
	var dirpart string
	if i < 0 {
		dirpart, basename = "", trimmed
	} else {
		dirpart, basename = trimmed[:i], trimmed[i+1:]
		if dirpart == "" && strings.HasPrefix(path, "/") {
			dirpart = "/"
		}
	}
	if len(basename) > nameMax {
		return nil, "", defs.ENAMETOOLONG
	}

	if dirpart == "" {
		if base == nil {
			base = root
		}
		base.Ref()
		return base, basename, 0
	}
	if strings.HasPrefix(path, "/") && dirpart == "/" {
		root.Ref()
		return root, basename, 0
	}

	parent, err = Resolve(root, base, dirpart)
	if err != 0 {
		return nil, "", err
	}
	if parent.Type != defs.VnodeDir {
		parent.Put()
		return nil, "", defs.ENOTDIR
	}
	return parent, basename, 0
}

// Open implements spec.md §4.3's `open(base, path, oflags, mode, devid) ->
// vnode`: resolve-like, but if the final component is missing and O_CREAT
// is set, invoke the parent's Create (or Mknod for device types).
func Open(root *Vnode_t, base *Vnode_t, path string, oflags int, typ defs.VnodeType, major, minor int) (*Vnode_t, defs.Err_t) {
	if oflags&defs.OCreat == 0 {
		return Resolve(root, base, path)
	}

	parent, name, err := Dir(root, base, path)
	if err != 0 {
		return nil, err
	}
	defer parent.Put()
	if parent.Type != defs.VnodeDir {
		return nil, defs.ENOTDIR
	}

	parent.Lock()
	existing, lerr := parent.Ops.Lookup(parent, name)
	if lerr == 0 {
		parent.Unlock()
		return existing, 0
	}
	if lerr != defs.ENOENT {
		parent.Unlock()
		return nil, lerr
	}

	var created *Vnode_t
	if typ == defs.VnodeCharDev || typ == defs.VnodeBlockDev {
		created, err = parent.Ops.Mknod(parent, name, typ, major, minor)
	} else {
		created, err = parent.Ops.Create(parent, name, typ)
	}
	parent.Unlock()
	if err != 0 {
		return nil, err
	}
	return created, 0
}
