// Package proc is the thin process supervisor from spec.md's overview:
// process creation inherits address space, descriptors, and cwd; exit
// reparents orphans to init, releases VFS and VM resources, and wakes the
// parent's wait queue; waitpid reaps. It ties the sched, vm, and vfs
// packages together without either of them needing to know it exists.
package proc

import (
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
	"github.com/mit-pdos/gokernel/src/mem"
	"github.com/mit-pdos/gokernel/src/sched"
	"github.com/mit-pdos/gokernel/src/vfs"
	"github.com/mit-pdos/gokernel/src/vm"
)

// State_t is a process's lifecycle state (spec.md §3's invariant: a
// process is DEAD iff its sole thread is EXITED).
type State_t int

const (
	Running State_t = iota
	Dead
)

// Proc_t is spec.md §3's Process type: pid, name, parent back-reference,
// owned children, a single thread, status/state, a wait queue the parent
// sleeps on, an address space, a cwd, and a descriptor table.
type Proc_t struct {
	mu sync.Mutex

	Pid    defs.Pid_t
	Name   string
	Parent *Proc_t
	Children []*Proc_t

	Thread *sched.Thread_t
	State  State_t
	Status int

	Wait *sched.Queue_t

	AS   *vm.AddrSpace_t
	Cwd  *vfs.CWD
	Fds  *vfs.Fdtable_t
	Sys  *vfs.Syscalls

	log klog.Logger
}

// Table_t is the global process table from spec.md §3/§4.4: a pid
// allocator that skips live pids, the process list, and a back-reference
// to init for reparenting orphans.
type Table_t struct {
	mu      sync.Mutex
	procs   map[defs.Pid_t]*Proc_t
	nextPid defs.Pid_t
	init    *Proc_t
	sched   *sched.Scheduler_t
	log     klog.Logger

	root      *vfs.Vnode_t
	ptFactory func() mem.Pagetable_i
	fr        mem.FrameAllocator_i
}

// NewTable builds the process supervisor. ptFactory mints a fresh
// Pagetable_i for every process (Create) and every fork child (Fork) —
// spec.md §3/§4.4's "fresh ... page-table root" per process; sharing one
// Pagetable_i across processes would let two of them collide at the same
// virtual address.
func NewTable(s *sched.Scheduler_t, root *vfs.Vnode_t, ptFactory func() mem.Pagetable_i, fr mem.FrameAllocator_i, log klog.Logger) *Table_t {
	if log == nil {
		log = klog.Nop()
	}
	return &Table_t{
		procs:     make(map[defs.Pid_t]*Proc_t),
		nextPid:   defs.InitPid,
		sched:     s,
		log:       log,
		root:      root,
		ptFactory: ptFactory,
		fr:        fr,
	}
}

// allocPid returns the next pid, skipping any still-live pid, as spec.md
// §3 requires ("reused from a monotonic counter that skips live pids").
func (t *Table_t) allocPid() defs.Pid_t {
	for {
		pid := t.nextPid
		t.nextPid++
		if t.nextPid >= defs.MaxPid {
			t.nextPid = defs.InitPid
		}
		if _, live := t.procs[pid]; !live {
			return pid
		}
	}
}

// Create makes a new process with a fresh address space and, unless this
// is the very first process, inherits the parent's descriptor table and
// cwd by cloning them (spec.md's proc-supervisor overview). entry runs on
// the new process's sole thread.
func (t *Table_t) Create(name string, parent *Proc_t, entry func(*sched.Thread_t)) *Proc_t {
	t.mu.Lock()
	pid := t.allocPid()

	p := &Proc_t{
		Pid: pid, Name: name, Parent: parent,
		Wait: sched.NewQueue(),
		AS:   vm.NewAddrSpace(t.ptFactory(), t.fr, t.log),
		log:  t.log,
	}

	if parent != nil {
		p.Fds = parent.Fds.Clone()
		p.Cwd = &vfs.CWD{Vnode: parent.Cwd.Vnode}
		p.Cwd.Vnode.Ref()
	} else {
		p.Fds = vfs.NewFdtable(defs.MaxFds)
		t.root.Ref()
		p.Cwd = &vfs.CWD{Vnode: t.root}
	}
	p.Sys = &vfs.Syscalls{Root: t.root, Fds: p.Fds, Cwd: p.Cwd}

	p.Thread = sched.NewThread(defs.Tid_t(pid), name, p, entry, t.log)

	if parent != nil {
		parent.mu.Lock()
		parent.Children = append(parent.Children, p)
		parent.mu.Unlock()
	}
	if pid == defs.InitPid {
		t.init = p
	}
	t.procs[pid] = p
	t.mu.Unlock()

	t.sched.Kickoff(p.Thread)
	return p
}

func (t *Table_t) Lookup(pid defs.Pid_t) (*Proc_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	return p, ok
}

// Exit implements proc_cleanup + proc_thread_exiting from
// original_source/kernel/proc/proc.c: releases every open descriptor and
// the cwd reference, reparents children to init (or, if this is init
// exiting, drops them from its child list without reparenting them — a
// full shutdown is out of scope), broadcasts on the parent's wait queue,
// and finally exits the underlying thread. The address space is left in
// place for reap to destroy. Exit returns to its caller once the thread
// has handed control back to the core loop.
func (t *Table_t) Exit(p *Proc_t, status int) {
	mapped := p.AS.MappedPages()
	t.log.Infow("proc exiting",
		"pid", p.Pid, "status", status,
		"mapped", humanize.Bytes(uint64(mapped)*defs.PageSize))

	p.Fds.CloseAll()
	p.Cwd.Vnode.Put()

	t.mu.Lock()
	p.mu.Lock()
	p.State = Dead
	p.Status = status
	orphans := p.Children
	p.Children = nil
	parent := p.Parent
	p.mu.Unlock()

	if t.init != nil && t.init != p {
		for _, c := range orphans {
			c.mu.Lock()
			c.Parent = t.init
			c.mu.Unlock()
			t.init.mu.Lock()
			t.init.Children = append(t.init.Children, c)
			t.init.mu.Unlock()
		}
	}
	t.mu.Unlock()

	if parent != nil {
		t.sched.BroadcastOn(parent.Wait)
	}

	t.sched.ThreadExit(p.Thread, status)
}

// reap finishes destroying a DEAD child: original_source's proc_destroy,
// minus the on-disk bookkeeping this port has no equivalent for. Address
// space teardown (spec.md §4.4's "destroy") happens here rather than in
// Exit, since a zombie's address space must stay valid for anything that
// inspects it (e.g. accounting in the exit log) until it is actually
// reaped. Dropping p's mobj references here can bring a sibling shadow
// object's referent down to its sole remaining referent, so the parent's
// own chain gets a chance to collapse — original_source's vmmap_collapse
// walking every vmarea, wired here since it is otherwise never called.
func (t *Table_t) reap(p *Proc_t) {
	p.AS.Destroy()

	if p.Parent != nil {
		p.Parent.AS.CollapseAll()
	}

	t.mu.Lock()
	delete(t.procs, p.Pid)
	t.mu.Unlock()
}

// Waitpid implements spec.md's waitpid: pid > 0 waits for that specific
// child; pid == -1 waits for any child; both reap the child once dead.
func (t *Table_t) Waitpid(p *Proc_t, pid defs.Pid_t) (defs.Pid_t, int, defs.Err_t) {
	if pid == 0 || pid < -1 {
		return 0, 0, defs.ENOTSUP
	}

	for {
		p.mu.Lock()
		var dead *Proc_t
		found := false
		for i, c := range p.Children {
			if pid > 0 && c.Pid != pid {
				continue
			}
			found = true
			c.mu.Lock()
			isDead := c.State == Dead
			c.mu.Unlock()
			if isDead {
				dead = c
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
		p.mu.Unlock()

		if pid > 0 && !found && dead == nil {
			return 0, 0, defs.ECHILD
		}
		if pid == -1 && !found {
			return 0, 0, defs.ECHILD
		}
		if dead != nil {
			dead.mu.Lock()
			status := dead.Status
			childPid := dead.Pid
			dead.mu.Unlock()
			t.reap(dead)
			return childPid, status, 0
		}

		t.sched.SleepOn(p.Thread, p.Wait)
	}
}

// Kill cancels every thread of proc (spec.md's proc_kill; here a process
// has exactly one thread). Must never be called on the calling process's
// own proc.
func (t *Table_t) Kill(p *Proc_t) {
	t.sched.Cancel(p.Thread)
}

// KillAll cancels every process except the caller, init, and any direct
// child of the idle process (pid 0), then exits the caller —
// original_source's proc_kill_all.
func (t *Table_t) KillAll(caller *Proc_t, status int) {
	t.mu.Lock()
	var victims []*Proc_t
	for _, p := range t.procs {
		if p == caller {
			continue
		}
		p.mu.Lock()
		sparedInit := p == t.init || (p.Parent != nil && p.Parent.Pid == defs.IdlePid)
		p.mu.Unlock()
		if sparedInit {
			continue
		}
		victims = append(victims, p)
	}
	t.mu.Unlock()

	for _, v := range victims {
		t.Kill(v)
	}
	t.Exit(caller, status)
}
