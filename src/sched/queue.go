package sched

import "container/list"

// Queue_t is the FIFO wait-channel type from spec.md §4.1: the run queue
// and every wait queue share this representation, so any Queue_t is
// addressable as a wait channel by any memory location that holds one.
type Queue_t struct {
	l *list.List
}

func NewQueue() *Queue_t {
	return &Queue_t{l: list.New()}
}

func (q *Queue_t) enqueue(t *Thread_t) {
	if t.qelem != nil {
		panic("thread already on a queue")
	}
	t.qelem = q.l.PushBack(t)
	t.WaitChan = q
}

func (q *Queue_t) dequeue() *Thread_t {
	if q.l.Len() == 0 {
		return nil
	}
	e := q.l.Front()
	q.l.Remove(e)
	t := e.Value.(*Thread_t)
	t.qelem = nil
	t.WaitChan = nil
	return t
}

func (q *Queue_t) remove(t *Thread_t) {
	if t.qelem == nil || t.WaitChan != q {
		panic("thread not on this queue")
	}
	q.l.Remove(t.qelem.(*list.Element))
	t.qelem = nil
	t.WaitChan = nil
}

// Empty reports whether the queue currently holds no threads. As with the
// teacher's sched_queue_empty, Empty takes no lock of its own; read
// without the scheduler's lock held, its answer can be stale by the time
// the caller acts on it.
func (q *Queue_t) Empty() bool {
	return q.l.Len() == 0
}

func (q *Queue_t) Len() int {
	return q.l.Len()
}
