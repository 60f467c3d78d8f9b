package sim

import (
	"fmt"
	"time"
)

// RunIteration executes one simulated time step: every task of the DAG
// runs exactly once, then agent deaths are compacted.
func (e *Engine) RunIteration() error {
	if !e.ready {
		return fmt.Errorf("run before Setup: %w", ErrNotReady)
	}
	e.iteration++
	started := time.Now()
	if err := e.sched.RunIteration(); err != nil {
		return fmt.Errorf("run %s iteration %d: %w", e.runID, e.iteration, err)
	}
	e.Mem.CompactDead()
	e.logger.Info("run %s: iteration %d done in %s", e.runID, e.iteration, time.Since(started))
	return nil
}

// Run executes the given number of iterations, stopping at the first
// failure.
func (e *Engine) Run(iterations int) error {
	for i := 0; i < iterations; i++ {
		if err := e.RunIteration(); err != nil {
			return err
		}
	}
	return nil
}

// Close joins every worker goroutine. The engine cannot run further
// iterations afterwards.
func (e *Engine) Close() {
	if e.sched != nil {
		e.sched.Close()
	}
}
