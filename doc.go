// flock - a runtime engine for large-scale agent-based simulations
//
// A model declares a population of heterogeneous agents; each agent
// carries typed memory variables and a set of transition functions
// arranged as a state machine. Agents communicate only through typed
// messages posted to global message boards. The engine executes the
// model iteration by iteration: a compiler turns the model into a
// single DAG of runnable tasks with data and sync dependencies, and a
// work-stealing-style scheduler executes it on pools of worker
// goroutines, splitting large agent populations into windows so they
// occupy every worker at once.
//
// # Packages
//
//   - mem:    columnar agent memory, shadows, and row iterators
//   - mb:     double-buffered message boards, writers, and capability
//     clients
//   - model:  the plain-data model description with condition trees
//   - graph:  the model-graph compiler producing the reduced task DAG
//   - exe:    task manager, typed queues, workers, and the scheduler
//   - pop:    population I/O plugins (XML, CSV, SQLite, Postgres,
//     Redis)
//   - sim:    the engine context tying everything together
//   - config: YAML runtime configuration
//   - log:    the logging facade
//
// # Quick start
//
//	eng := sim.NewEngine(sim.WithSlots(8))
//	eng.LoadModel(m)
//	eng.RegisterFunction("Circle", "move", move)
//	eng.Setup()
//	defer eng.Close()
//	eng.Run(100)
//
// The flock CLI wraps the same flow for models and populations stored
// as XML:
//
//	flock run model.xml pop0.xml 100 --output-format csv
package flock
