// Package sim is the integration layer of the flock engine: it owns the
// memory, board, and task registries as one explicit context, compiles
// a model into the task DAG, binds user transition functions to
// function tasks, and drives the scheduler iteration by iteration.
//
// A typical embedding:
//
//	eng := sim.NewEngine(sim.WithSlots(8))
//	eng.LoadModel(m)
//	eng.RegisterFunction("Circle", "move", move)
//	eng.ReadPopulation(xmlpop.NewReader(eng.Schema()), "pop0.xml")
//	eng.Setup()
//	defer eng.Close()
//	eng.Run(100)
package sim
