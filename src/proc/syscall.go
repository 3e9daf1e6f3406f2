package proc

import (
	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/sched"
	"github.com/mit-pdos/gokernel/src/vfs"
	"github.com/mit-pdos/gokernel/src/vm"
)

// Fork implements spec.md §4.4's fork(2): clone the address space with
// COW, duplicate open files, and start a new thread. The child returns 0
// from entry's perspective (it is simply a fresh thread); the parent gets
// the child's pid back from Fork itself, mirroring
// original_source/kernel/proc/fork.c's do_fork without needing a
// register-context copy since there is no real user-mode trap frame here.
func (t *Table_t) Fork(p *Proc_t, entry func(*sched.Thread_t)) (*Proc_t, defs.Err_t) {
	childAS, err := p.AS.Clone(t.ptFactory())
	if err != 0 {
		return nil, err
	}

	t.mu.Lock()
	pid := t.allocPid()
	child := &Proc_t{
		Pid: pid, Name: p.Name, Parent: p,
		Wait: sched.NewQueue(),
		AS:   childAS,
		log:  t.log,
	}
	child.Fds = p.Fds.Clone()
	child.Cwd = &vfs.CWD{Vnode: p.Cwd.Vnode}
	child.Cwd.Vnode.Ref()
	child.Sys = &vfs.Syscalls{Root: t.root, Fds: child.Fds, Cwd: child.Cwd}
	child.Thread = sched.NewThread(defs.Tid_t(pid), p.Name, child, entry, t.log)

	p.mu.Lock()
	p.Children = append(p.Children, child)
	p.mu.Unlock()

	t.procs[pid] = child
	t.mu.Unlock()

	t.sched.Kickoff(child.Thread)
	return child, 0
}

// Mmap implements spec.md §4.2's full mmap(2) surface. MAP_ANON requests
// (fd must be -1) go straight to vm.Mmap; file-backed requests resolve fd
// and apply the file-mapping permission checks original_source's do_mmap
// enumerates before vm.Mmap ever runs: PROT_READ requires the descriptor
// be open for reading (EACCES), MAP_SHARED+PROT_WRITE requires it be open
// for writing (EACCES), PROT_WRITE forbids an APPEND-only descriptor
// (EACCES), and the vnode must support mmap (ENODEV, surfaced by
// VnodeOps_i.Mmap itself for non-mappable vnode types).
func (t *Table_t) Mmap(p *Proc_t, fd int, addr uintptr, npages, prot, flags, off int) (uintptr, defs.Err_t) {
	req := vm.MmapRequest{Addr: addr, Npages: npages, Prot: prot, Flags: flags, Off: off}

	if flags&defs.MapAnon != 0 {
		if fd != -1 {
			return 0, defs.EINVAL
		}
		return vm.Mmap(p.AS, t.fr, t.log, req)
	}

	f, err := p.Fds.Get(fd)
	if err != 0 {
		return 0, err
	}
	if prot&defs.ProtRead != 0 && f.Mode&vfs.FmodeRead == 0 {
		return 0, defs.EACCES
	}
	if prot&defs.ProtWrite != 0 {
		if flags&defs.MapShared != 0 && f.Mode&vfs.FmodeWrite == 0 {
			return 0, defs.EACCES
		}
		if f.Mode&vfs.FmodeAppend != 0 {
			return 0, defs.EACCES
		}
	}

	v := f.Vnode
	v.Lock()
	backing, mmErr := v.Ops.Mmap(v)
	v.Unlock()
	if mmErr != 0 {
		return 0, mmErr
	}

	req.Backing = backing
	req.Blockdev = v.Type == defs.VnodeBlockDev
	return vm.Mmap(p.AS, t.fr, t.log, req)
}

func (t *Table_t) Munmap(p *Proc_t, addr uintptr, npages int) defs.Err_t {
	return vm.Munmap(p.AS, addr, npages)
}

func (t *Table_t) Brk(p *Proc_t, newBrk uintptr) (uintptr, defs.Err_t) {
	return vm.Brk(p.AS, t.fr, t.log, newBrk)
}
