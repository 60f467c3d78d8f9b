package exe

import (
	"fmt"
	"sync"
)

// DefaultMinVectorSize is the smallest window width the splitting queue
// will produce.
const DefaultMinVectorSize = 50

// SplittingFIFOQueue subdivides data-parallel tasks into windowed
// sub-tasks sharing the task id, so one large agent population can
// occupy every worker at once. A split task is reported upstream only
// after all of its sub-tasks complete; the first sub-task error wins.
type SplittingFIFOQueue struct {
	tm       *TaskManager
	fifo     *fifo
	callback DoneCallback
	workers  sync.WaitGroup
	slots    int

	mu            sync.Mutex
	splits        map[TaskID]*splitState
	maxSplits     int
	minVectorSize int
}

type splitState struct {
	incomplete int
	firstErr   error
}

// NewSplittingFIFOQueue creates a splitting queue served by slots worker
// goroutines. max_tasks_per_split defaults to slots and min_vector_size
// to DefaultMinVectorSize.
func NewSplittingFIFOQueue(tm *TaskManager, slots int) (*SplittingFIFOQueue, error) {
	if slots < 1 {
		return nil, fmt.Errorf("slots must be > 0: %w", ErrInvalidArgument)
	}
	q := &SplittingFIFOQueue{
		tm:            tm,
		fifo:          newFIFO(),
		slots:         slots,
		splits:        make(map[TaskID]*splitState),
		maxSplits:     slots,
		minVectorSize: DefaultMinVectorSize,
	}
	q.workers.Add(slots)
	for i := 0; i < slots; i++ {
		go q.work()
	}
	return q, nil
}

// SetCallback installs the completion callback
func (q *SplittingFIFOQueue) SetCallback(cb DoneCallback) {
	q.callback = cb
}

// Slots returns the worker pool size
func (q *SplittingFIFOQueue) Slots() int {
	return q.slots
}

// SetMaxTasksPerSplit bounds the number of sub-tasks per split
func (q *SplittingFIFOQueue) SetMaxTasksPerSplit(n int) error {
	if n < 1 {
		return fmt.Errorf("max_tasks_per_split must be > 0: %w", ErrInvalidArgument)
	}
	q.mu.Lock()
	q.maxSplits = n
	q.mu.Unlock()
	return nil
}

// MaxTasksPerSplit returns the current sub-task bound
func (q *SplittingFIFOQueue) MaxTasksPerSplit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSplits
}

// SetMinVectorSize sets the smallest window width a split may produce
func (q *SplittingFIFOQueue) SetMinVectorSize(n int) error {
	if n < 1 {
		return fmt.Errorf("min_vector_size must be > 0: %w", ErrInvalidArgument)
	}
	q.mu.Lock()
	q.minVectorSize = n
	q.mu.Unlock()
	return nil
}

// MinVectorSize returns the smallest window width a split may produce
func (q *SplittingFIFOQueue) MinVectorSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.minVectorSize
}

// Enqueue hands a ready task to the worker pool, splitting it into
// windowed sub-tasks when the owning population is large enough.
func (q *SplittingFIFOQueue) Enqueue(id TaskID) {
	t, err := q.tm.Task(id)
	if err != nil {
		q.callback(id, err)
		return
	}

	handles := q.split(t)
	if len(handles) > 1 {
		q.mu.Lock()
		q.splits[id] = &splitState{incomplete: len(handles)}
		q.mu.Unlock()
	}
	q.fifo.push(handles...)
}

// split computes the sub-task windows for a task. Populations no larger
// than min_vector_size*2 and non-splittable tasks produce a single
// full-window handle.
func (q *SplittingFIFOQueue) split(t *Task) []Handle {
	q.mu.Lock()
	maxSplits, minSize := q.maxSplits, q.minVectorSize
	q.mu.Unlock()

	n := t.Population()
	if !t.Splittable() || n <= minSize*2 {
		return []Handle{{ID: t.ID(), Window: FullWindow}}
	}

	k := n / minSize
	if k > maxSplits {
		k = maxSplits
	}
	if k < 2 {
		return []Handle{{ID: t.ID(), Window: FullWindow}}
	}

	// spread the remainder over the leading windows
	width := n / k
	extra := n % k
	handles := make([]Handle, 0, k)
	offset := 0
	for i := 0; i < k; i++ {
		count := width
		if i < extra {
			count++
		}
		handles = append(handles, Handle{ID: t.ID(), Window: Window{Offset: offset, Count: count}})
		offset += count
	}
	return handles
}

// Close shuts the queue down and joins its workers
func (q *SplittingFIFOQueue) Close() {
	q.fifo.close()
	q.workers.Wait()
}

func (q *SplittingFIFOQueue) work() {
	defer q.workers.Done()
	for {
		h, ok := q.fifo.pop()
		if !ok {
			return
		}
		err := runHandle(q.tm, h)
		q.taskDone(h.ID, err)
	}
}

// taskDone folds a sub-task completion into its split state; the task id
// goes upstream only when the last sub-task finishes.
func (q *SplittingFIFOQueue) taskDone(id TaskID, err error) {
	q.mu.Lock()
	st, isSplit := q.splits[id]
	if isSplit {
		if err != nil && st.firstErr == nil {
			st.firstErr = err
		}
		st.incomplete--
		if st.incomplete > 0 {
			q.mu.Unlock()
			return
		}
		err = st.firstErr
		delete(q.splits, id)
	}
	q.mu.Unlock()
	q.callback(id, err)
}
