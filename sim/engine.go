package sim

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flocksim/flock/exe"
	"github.com/flocksim/flock/graph"
	"github.com/flocksim/flock/log"
	"github.com/flocksim/flock/mb"
	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/model"
	"github.com/flocksim/flock/pop"
)

var (
	// ErrNotReady reports an operation that requires an earlier setup
	// step
	ErrNotReady = errors.New("sim: engine not ready")

	// ErrAlreadySetup reports a mutation after Setup froze the engine
	ErrAlreadySetup = errors.New("sim: engine already set up")

	// ErrUnknownFunction reports a function registration that matches
	// no declared transition function
	ErrUnknownFunction = errors.New("sim: unknown function")

	// ErrMissingFunction reports a declared transition function with no
	// registered implementation at setup time
	ErrMissingFunction = errors.New("sim: missing function implementation")
)

// AgentFunc is a transition function body. The engine invokes it once
// per applicable agent row with the iterator positioned on that row;
// implementations read and write the row through it and use the client
// for permitted message traffic. Implementations must not step the
// iterator.
type AgentFunc func(agent *mem.MemoryIterator, msgs *mb.Client) error

// Engine owns the process-wide state of one simulation: the memory
// manager, the board manager, the task manager, and the scheduler. It
// replaces the singletons of classic agent frameworks with one
// explicitly passed context.
type Engine struct {
	runID  string
	logger log.Logger

	Mem    *mem.Manager
	Boards *mb.Manager
	Tasks  *exe.TaskManager

	slots            int
	minVectorSize    int
	maxTasksPerSplit int

	writer pop.Writer

	mdl      *model.Model
	compiled *graph.CompiledGraph
	funcs    map[string]AgentFunc // "agent.function" -> implementation

	sched      *exe.Scheduler
	selections map[string][]int32 // condition task -> per-row branch pick
	condSizes  map[string]func() int
	iteration  int
	ready      bool
}

// Option configures an engine at construction
type Option func(*Engine)

// WithLogger routes engine diagnostics to a logger
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSlots sets the worker count per queue
func WithSlots(slots int) Option {
	return func(e *Engine) { e.slots = slots }
}

// WithSplitParams tunes task splitting: the smallest window width and
// the sub-task bound (0 keeps the default of one per slot).
func WithSplitParams(minVectorSize, maxTasksPerSplit int) Option {
	return func(e *Engine) {
		e.minVectorSize = minVectorSize
		e.maxTasksPerSplit = maxTasksPerSplit
	}
}

// WithWriter installs a population snapshot writer driven by the
// pop-write tasks
func WithWriter(w pop.Writer) Option {
	return func(e *Engine) { e.writer = w }
}

// SetWriter installs a population snapshot writer. Must be called
// before Setup.
func (e *Engine) SetWriter(w pop.Writer) error {
	if e.ready {
		return ErrAlreadySetup
	}
	e.writer = w
	return nil
}

// NewEngine creates an engine with empty registries
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		runID:         uuid.NewString(),
		logger:        log.NopLogger{},
		Mem:           mem.NewManager(),
		Boards:        mb.NewManager(),
		Tasks:         exe.NewTaskManager(),
		slots:         1,
		minVectorSize: exe.DefaultMinVectorSize,
		funcs:         make(map[string]AgentFunc),
		selections:    make(map[string][]int32),
		condSizes:     make(map[string]func() int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunID returns the unique id stamped on this simulation run
func (e *Engine) RunID() string {
	return e.runID
}

// Iteration returns the current iteration number: the starting
// iteration set by ReadPopulation (0 if none was read) plus the number
// of iterations started since
func (e *Engine) Iteration() int {
	return e.iteration
}

// Graph returns the compiled DAG, or nil before LoadModel
func (e *Engine) Graph() *graph.CompiledGraph {
	return e.compiled
}

// LoadModel validates and compiles the model, then registers every
// agent type, memory variable, and message board.
func (e *Engine) LoadModel(m *model.Model) error {
	if e.ready {
		return ErrAlreadySetup
	}
	compiled, err := graph.Compile(m)
	if err != nil {
		return err
	}

	for _, a := range m.Agents {
		if err := e.Mem.RegisterAgent(a.Name); err != nil {
			return err
		}
		for _, v := range a.Memory {
			if err := e.Mem.RegisterVar(a.Name, v.Name, v.Type); err != nil {
				return err
			}
		}
	}
	for _, msg := range m.Messages {
		if err := e.Boards.RegisterMessage(msg.Name); err != nil {
			return err
		}
		for _, v := range msg.Vars {
			if err := e.Boards.DeclareVar(msg.Name, v.Name, v.Type); err != nil {
				return err
			}
		}
	}

	e.mdl = m
	e.compiled = compiled
	e.logger.Info("run %s: model %q compiled into %d tasks",
		e.runID, m.Name, len(compiled.Specs()))
	return nil
}

// RegisterFunction installs the implementation of one declared
// transition function.
func (e *Engine) RegisterFunction(agentName, fnName string, fn AgentFunc) error {
	if e.ready {
		return ErrAlreadySetup
	}
	if e.mdl == nil {
		return fmt.Errorf("register %s.%s before LoadModel: %w", agentName, fnName, ErrNotReady)
	}
	a := e.mdl.AgentByName(agentName)
	if a == nil {
		return fmt.Errorf("agent %q: %w", agentName, ErrUnknownFunction)
	}
	for _, f := range a.Functions {
		if f.Name == fnName {
			e.funcs[agentName+"."+fnName] = fn
			return nil
		}
	}
	return fmt.Errorf("agent %q function %q: %w", agentName, fnName, ErrUnknownFunction)
}

// ReadPopulation fills agent memory from a population file and returns
// its iteration number, which becomes the engine's starting iteration.
func (e *Engine) ReadPopulation(r pop.Reader, path string) (int, error) {
	if e.mdl == nil {
		return 0, fmt.Errorf("read population before LoadModel: %w", ErrNotReady)
	}
	addInt := func(agent, varName string, v int64) error {
		am, err := e.Mem.Agent(agent)
		if err != nil {
			return err
		}
		vec, err := am.Vector(varName)
		if err != nil {
			return err
		}
		return vec.AppendInt(v)
	}
	addDouble := func(agent, varName string, v float64) error {
		am, err := e.Mem.Agent(agent)
		if err != nil {
			return err
		}
		vec, err := am.Vector(varName)
		if err != nil {
			return err
		}
		return vec.AppendDouble(v)
	}
	itno, err := r.ReadPop(path, addInt, addDouble)
	if err != nil {
		return 0, err
	}
	if err := e.Mem.CheckUniformSize(); err != nil {
		return 0, err
	}
	// lock layouts and reserve for the read population
	for _, name := range e.Mem.AgentNames() {
		am, _ := e.Mem.Agent(name)
		am.HintPopulationSize(am.Size())
	}
	e.iteration = itno
	return itno, nil
}

// Schema exposes the declared agent layouts for population plugins
func (e *Engine) Schema() []mem.AgentLayout {
	return e.Mem.Layout()
}
