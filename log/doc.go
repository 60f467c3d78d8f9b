// Package log provides the logging facade used by the flock simulation
// engine.
//
// Engine components accept a Logger value; nothing in the engine writes to
// a global sink unless the package-level helpers are used. Two
// implementations are provided: DefaultLogger over the standard library
// log package, and GologLogger over github.com/kataras/golog, which is
// what the flock CLI installs.
//
//	logger := log.NewGologLogger(golog.Default)
//	logger.SetLevel(log.LogLevelDebug)
//	eng := sim.NewEngine(sim.WithLogger(logger))
package log
