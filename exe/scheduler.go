package exe

import (
	"fmt"
	"sync"
	"time"

	"github.com/flocksim/flock/log"
)

// QueueID identifies a queue registered with a scheduler
type QueueID int

// Scheduler walks the finalized DAG one iteration at a time, routing
// ready tasks to typed queues and folding worker completions back into
// the task manager.
type Scheduler struct {
	tm     *TaskManager
	logger log.Logger

	queues []TaskQueue
	route  map[TaskType]QueueID

	doneMu   sync.Mutex
	doneCond *sync.Cond
	doneq    []doneEntry
}

type doneEntry struct {
	id  TaskID
	err error
}

// SchedulerOption configures a scheduler at construction
type SchedulerOption func(*Scheduler)

// WithLogger routes scheduler diagnostics to a logger
func WithLogger(logger log.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a scheduler over a task manager
func NewScheduler(tm *TaskManager, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		tm:     tm,
		logger: log.NopLogger{},
		route:  make(map[TaskType]QueueID),
	}
	s.doneCond = sync.NewCond(&s.doneMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddQueue registers a queue and wires its completion callback. The
// returned id is used by AssignType.
func (s *Scheduler) AddQueue(q TaskQueue) QueueID {
	q.SetCallback(s.taskDoneCallback)
	s.queues = append(s.queues, q)
	return QueueID(len(s.queues) - 1)
}

// AssignType routes a task type to a queue. A type may be assigned to
// only one queue.
func (s *Scheduler) AssignType(typ TaskType, qid QueueID) error {
	if int(qid) < 0 || int(qid) >= len(s.queues) {
		return fmt.Errorf("queue id %d: %w", qid, ErrInvalidArgument)
	}
	if assigned, ok := s.route[typ]; ok {
		return fmt.Errorf("task type %s already assigned to queue %d: %w", typ, assigned, ErrInvalidArgument)
	}
	s.route[typ] = qid
	return nil
}

// taskDoneCallback receives completions from queue workers
func (s *Scheduler) taskDoneCallback(id TaskID, err error) {
	s.doneMu.Lock()
	s.doneq = append(s.doneq, doneEntry{id: id, err: err})
	s.doneMu.Unlock()
	s.doneCond.Signal()
}

// RunIteration executes every task of the DAG exactly once, honoring all
// dependencies. On a worker error it stops dispatching, drains the
// in-flight tasks, resets the iteration state, and returns the first
// error observed.
func (s *Scheduler) RunIteration() error {
	if !s.tm.Finalized() {
		return ErrNotFinalized
	}
	if len(s.tm.Roots()) == 0 {
		return ErrNoRunnableTasks
	}

	started := time.Now()
	var firstErr error

	for !s.tm.IterComplete() {
		if firstErr == nil {
			if err := s.dispatchReady(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil && s.tm.IterAssignedCount() == 0 {
			// nothing in flight and nothing more will be dispatched
			break
		}

		s.doneMu.Lock()
		for len(s.doneq) == 0 {
			s.doneCond.Wait()
		}
		drained := s.doneq
		s.doneq = nil
		s.doneMu.Unlock()

		for _, entry := range drained {
			if entry.err != nil && firstErr == nil {
				firstErr = entry.err
			}
			if err := s.tm.IterDone(entry.id); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	s.tm.IterReset()
	s.logger.Debug("iteration finished in %s (%d tasks)", time.Since(started), s.tm.TaskCount())
	return firstErr
}

// dispatchReady drains the ready set into the routed queues
func (s *Scheduler) dispatchReady() error {
	for s.tm.IterTaskAvailable() {
		id, err := s.tm.IterPop()
		if err != nil {
			// raced with another drain; the ready set is simply empty
			return nil
		}
		t, err := s.tm.Task(id)
		if err != nil {
			return err
		}
		qid, ok := s.route[t.Type()]
		if !ok {
			// release the popped task so the iteration can drain, then
			// surface the configuration error
			_ = s.tm.IterDone(id)
			return fmt.Errorf("task %q type %s: %w", t.Name(), t.Type(), ErrUnassignedType)
		}
		s.queues[qid].Enqueue(id)
	}
	return nil
}

// Close shuts down every queue, joining all workers
func (s *Scheduler) Close() {
	for _, q := range s.queues {
		q.Close()
	}
}
