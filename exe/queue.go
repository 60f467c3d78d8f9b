package exe

import (
	"fmt"
	"sync"
)

// Handle is the augmented task reference a worker pops from its queue:
// the task id plus the window the worker must cover.
type Handle struct {
	ID     TaskID
	Window Window
}

// DoneCallback is invoked by a queue exactly once per enqueued task id,
// after every sub-task of that id has completed. A non-nil error carries
// the first failure observed by a worker.
type DoneCallback func(id TaskID, err error)

// TaskQueue is a typed task queue served by a fixed pool of worker
// goroutines. The scheduler routes each task type to exactly one queue.
type TaskQueue interface {
	// Enqueue hands a ready task to the queue. Called by the scheduler
	// only.
	Enqueue(id TaskID)

	// SetCallback installs the completion callback. Must be called
	// before the first Enqueue.
	SetCallback(cb DoneCallback)

	// Close posts the termination sentinel to every worker and blocks
	// until they exit. In-flight tasks run to completion.
	Close()
}

// fifo is the shared blocking queue under both queue implementations:
// an unbounded FIFO of handles guarded by a mutex and condition
// variable. pop blocks until a handle or the termination sentinel
// arrives.
type fifo struct {
	mu     sync.Mutex
	ready  *sync.Cond
	queue  []Handle
	closed bool
}

func newFIFO() *fifo {
	f := &fifo{}
	f.ready = sync.NewCond(&f.mu)
	return f
}

// push appends handles and wakes one worker per handle
func (f *fifo) push(handles ...Handle) {
	f.mu.Lock()
	f.queue = append(f.queue, handles...)
	f.mu.Unlock()
	for range handles {
		f.ready.Signal()
	}
}

// pop blocks until a handle is available. The second result is false
// when the queue has been closed and drained: the termination sentinel.
func (f *fifo) pop() (Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && !f.closed {
		f.ready.Wait()
	}
	if len(f.queue) == 0 {
		return Handle{}, false
	}
	h := f.queue[0]
	f.queue = f.queue[1:]
	return h, true
}

func (f *fifo) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.ready.Broadcast()
}

// FIFOQueue executes each enqueued task as a single unit of work over
// the full population window.
type FIFOQueue struct {
	tm       *TaskManager
	fifo     *fifo
	callback DoneCallback
	workers  sync.WaitGroup
	slots    int
}

// NewFIFOQueue creates a FIFO queue served by slots worker goroutines
func NewFIFOQueue(tm *TaskManager, slots int) (*FIFOQueue, error) {
	if slots < 1 {
		return nil, fmt.Errorf("slots must be > 0: %w", ErrInvalidArgument)
	}
	q := &FIFOQueue{tm: tm, fifo: newFIFO(), slots: slots}
	q.workers.Add(slots)
	for i := 0; i < slots; i++ {
		go q.work()
	}
	return q, nil
}

// SetCallback installs the completion callback
func (q *FIFOQueue) SetCallback(cb DoneCallback) {
	q.callback = cb
}

// Slots returns the worker pool size
func (q *FIFOQueue) Slots() int {
	return q.slots
}

// Enqueue hands a ready task to the worker pool
func (q *FIFOQueue) Enqueue(id TaskID) {
	q.fifo.push(Handle{ID: id, Window: FullWindow})
}

// Close shuts the queue down and joins its workers
func (q *FIFOQueue) Close() {
	q.fifo.close()
	q.workers.Wait()
}

// work is the worker loop: pop, run, report, until the sentinel
func (q *FIFOQueue) work() {
	defer q.workers.Done()
	for {
		h, ok := q.fifo.pop()
		if !ok {
			return
		}
		err := runHandle(q.tm, h)
		q.callback(h.ID, err)
	}
}

// runHandle executes one handle's body, wrapping any failure with the
// owning task's identity.
func runHandle(tm *TaskManager, h Handle) error {
	t, err := tm.Task(h.ID)
	if err != nil {
		return err
	}
	if err := t.Run(h.Window); err != nil {
		return &TaskError{ID: t.ID(), Name: t.Name(), Owner: t.Owner(), Err: err}
	}
	return nil
}
