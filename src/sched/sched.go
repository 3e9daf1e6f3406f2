// Package sched implements the cooperative thread scheduler from spec.md
// §4.1: run queue, wait queues, cancellable and uninterruptible sleep, and
// broadcast wakeup. There is no per-goroutine "curthr" global (see
// SPEC_FULL.md's ambient stack notes and spec.md §9's design note on global
// mutable state) — every primitive takes the calling thread's *Thread_t
// explicitly, the same way the teacher's kthread_t flows through an
// explicitly-passed curthr rather than living in unconstrained global state.
//
// A single dedicated "core" goroutine plays the role of core_switch's idle
// loop: it is the only goroutine that ever dequeues from the run queue.
// Every kernel thread is otherwise a goroutine parked on its own resume
// channel except while it holds "the CPU"; Switch (and the primitives built
// on it) hand control to the core goroutine and then park, so at most one
// thread's kernel logic executes at a time — the cooperative, single-core
// discipline spec.md §5 requires — even though the underlying Go runtime is
// free to multiplex the parked goroutines across OS threads.
package sched

import (
	"sync"

	"github.com/mit-pdos/gokernel/src/defs"
	"github.com/mit-pdos/gokernel/src/klog"
)

type State_t int

const (
	NoState State_t = iota
	Runnable
	OnCPU
	Sleep
	SleepCancellable
	Exited
)

func (s State_t) String() string {
	switch s {
	case NoState:
		return "NO_STATE"
	case Runnable:
		return "RUNNABLE"
	case OnCPU:
		return "ON_CPU"
	case Sleep:
		return "SLEEP"
	case SleepCancellable:
		return "SLEEP_CANCELLABLE"
	case Exited:
		return "EXITED"
	default:
		return "?"
	}
}

// Thread_t is the scheduler's view of a kernel thread (spec.md §3). Owner
// is opaque to sched — the proc package stores its *Proc_t there — so this
// package has no dependency on proc and no import cycle.
type Thread_t struct {
	Tid   defs.Tid_t
	Owner interface{}
	Name  string

	mu              sync.Mutex
	State           State_t
	WaitChan        *Queue_t
	Cancelled       bool
	RetVal          int
	PreemptionCount int

	qelem interface{}
	wake  chan struct{}

	entry func(*Thread_t)
	log   klog.Logger
}

// NewThread allocates a thread in NO_STATE. Its goroutine parks
// immediately, waiting for the scheduler to dispatch it via make_runnable
// and a subsequent switch; entry only begins executing once that happens.
func NewThread(tid defs.Tid_t, name string, owner interface{}, entry func(*Thread_t), log klog.Logger) *Thread_t {
	if log == nil {
		log = klog.Nop()
	}
	t := &Thread_t{
		Tid:   tid,
		Name:  name,
		Owner: owner,
		State: NoState,
		wake:  make(chan struct{}, 1),
		entry: entry,
		log:   log,
	}
	go func() {
		<-t.wake
		t.entry(t)
	}()
	return t
}

func (t *Thread_t) GetState() State_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State
}

func (t *Thread_t) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Cancelled
}

func (t *Thread_t) PreemptionDisable() {
	t.mu.Lock()
	t.PreemptionCount++
	t.mu.Unlock()
}

func (t *Thread_t) PreemptionEnable() {
	t.mu.Lock()
	if t.PreemptionCount == 0 {
		panic("preemption count underflow")
	}
	t.PreemptionCount--
	t.mu.Unlock()
}

func (t *Thread_t) PreemptionEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.PreemptionCount == 0
}

// Scheduler_t owns the single core-local run queue. Every operation that
// touches it does so with s.mu held, standing in for the teacher's
// intr_setipl(IPL_HIGH) masking (spec.md §5).
type Scheduler_t struct {
	mu        sync.Mutex
	cond      *sync.Cond
	runq      *Queue_t
	coreYield chan struct{}
	log       klog.Logger
}

// New starts the scheduler's core goroutine (spec.md §4.1's core-specific
// idle loop) and returns a ready-to-use Scheduler_t.
func New(log klog.Logger) *Scheduler_t {
	if log == nil {
		log = klog.Nop()
	}
	s := &Scheduler_t{
		runq:      NewQueue(),
		coreYield: make(chan struct{}, 1),
		log:       log,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.coreLoop()
	return s
}

// coreLoop is the only goroutine that ever dequeues the run queue. It
// dispatches one thread, then blocks until that thread (or a later one in
// the chain) hands control back via coreYield — exactly one thread is ever
// ON_CPU at a time.
func (s *Scheduler_t) coreLoop() {
	for {
		s.mu.Lock()
		next := s.dequeueRunnableLocked()
		next.mu.Lock()
		next.State = OnCPU
		next.mu.Unlock()
		s.mu.Unlock()

		next.wake <- struct{}{}
		<-s.coreYield
	}
}

// dequeueRunnableLocked blocks until the run queue is non-empty, mirroring
// core_switch's "halt awaiting interrupt" loop. s.mu must be held; it is
// released while waiting and re-acquired before returning.
func (s *Scheduler_t) dequeueRunnableLocked() *Thread_t {
	for s.runq.Empty() {
		s.cond.Wait()
	}
	return s.runq.dequeue()
}

// MakeRunnable implements spec.md §4.1 make_runnable(t). t must not be the
// calling thread and must not already be ON_CPU.
func (s *Scheduler_t) MakeRunnable(t *Thread_t) {
	t.mu.Lock()
	if t.State == OnCPU {
		t.mu.Unlock()
		panic("make_runnable: thread is ON_CPU")
	}
	t.State = Runnable
	t.mu.Unlock()

	s.mu.Lock()
	s.runq.enqueue(t)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Kickoff is an alias for MakeRunnable used to start a newly created
// thread (proc's Create and Fork call it for every new process); every
// later dispatch is driven by the core loop reacting to threads
// relinquishing control.
func (s *Scheduler_t) Kickoff(t *Thread_t) {
	s.MakeRunnable(t)
}

// Switch is the key primitive from spec.md §4.1: t (the calling thread,
// already off ON_CPU with its new state set by the caller) is deposited
// onto deposit (nil means "nowhere"; ThreadExit does the same hand-off
// without calling Switch); control is
// handed back to the core goroutine to pick the next runnable thread, and t
// parks until it is dispatched again.
func (s *Scheduler_t) Switch(t *Thread_t, deposit *Queue_t) {
	if t.GetState() == OnCPU {
		panic("switch: current thread must not be ON_CPU")
	}

	s.mu.Lock()
	if deposit != nil {
		deposit.enqueue(t)
	}
	s.mu.Unlock()

	s.coreYield <- struct{}{}
	<-t.wake
}

// Yield implements spec.md §4.1 yield().
func (s *Scheduler_t) Yield(t *Thread_t) {
	t.mu.Lock()
	if t.State != OnCPU {
		t.mu.Unlock()
		panic("yield: not ON_CPU")
	}
	t.State = Runnable
	t.mu.Unlock()
	s.Switch(t, s.runq)
}

// SleepOn implements spec.md §4.1 sleep_on(q), the uninterruptible sleep.
func (s *Scheduler_t) SleepOn(t *Thread_t, q *Queue_t) {
	t.mu.Lock()
	t.State = Sleep
	t.mu.Unlock()
	s.Switch(t, q)
}

// CancellableSleepOn implements spec.md §4.1 cancellable_sleep_on(q).
func (s *Scheduler_t) CancellableSleepOn(t *Thread_t, q *Queue_t) defs.Err_t {
	t.mu.Lock()
	if t.Cancelled {
		t.mu.Unlock()
		return defs.EINTR
	}
	t.State = SleepCancellable
	t.mu.Unlock()

	s.Switch(t, q)

	if t.IsCancelled() {
		return defs.EINTR
	}
	return 0
}

// WakeupOn implements spec.md §4.1 wakeup_on(q, out): dequeues one thread
// if the queue is non-empty and makes it runnable, returning it (or nil).
func (s *Scheduler_t) WakeupOn(q *Queue_t) *Thread_t {
	s.mu.Lock()
	woken := q.dequeue()
	if woken == nil {
		s.mu.Unlock()
		return nil
	}
	woken.mu.Lock()
	woken.State = Runnable
	woken.mu.Unlock()
	s.runq.enqueue(woken)
	s.cond.Broadcast()
	s.mu.Unlock()
	return woken
}

// BroadcastOn implements spec.md §4.1 broadcast_on(q).
func (s *Scheduler_t) BroadcastOn(q *Queue_t) {
	for s.WakeupOn(q) != nil {
	}
}

// Cancel implements spec.md §4.1 cancel(t). It never touches an
// uninterruptible sleeper beyond setting the flag.
func (s *Scheduler_t) Cancel(t *Thread_t) {
	t.mu.Lock()
	t.Cancelled = true
	needWake := t.State == SleepCancellable
	q := t.WaitChan
	t.mu.Unlock()

	if !needWake {
		return
	}

	s.mu.Lock()
	if q != nil {
		q.remove(t)
	}
	t.mu.Lock()
	t.State = Runnable
	t.mu.Unlock()
	s.runq.enqueue(t)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// ThreadExit marks t EXITED with retval and hands control back to the core
// loop without depositing t anywhere: t's goroutine returns from
// ThreadExit and terminates naturally, matching spec.md §4.1's "switches
// away with no deposit".
func (s *Scheduler_t) ThreadExit(t *Thread_t, retval int) {
	t.mu.Lock()
	t.RetVal = retval
	t.State = Exited
	t.mu.Unlock()

	s.coreYield <- struct{}{}
	// t never parks again: its entry function returns to the goroutine
	// launched in NewThread, which then exits.
}
