package main

import (
	"fmt"
	"plugin"

	"github.com/flocksim/flock/log"
	"github.com/flocksim/flock/mb"
	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/model"
	"github.com/flocksim/flock/sim"
)

// registerFunctions binds transition function bodies for every function
// the model declares. Bodies come from the model's functionFiles, which
// name Go plugins exporting one symbol per function as
// <Agent>_<Function> with the sim.AgentFunc signature. A function with
// no plugin symbol falls back to a no-op body with a warning, which
// keeps pure-data models runnable.
func registerFunctions(eng *sim.Engine, m *model.Model, logger log.Logger) error {
	symbols := make(map[string]sim.AgentFunc)
	for _, file := range m.FunctionFiles {
		p, err := plugin.Open(file)
		if err != nil {
			return fmt.Errorf("function file %q: %w", file, err)
		}
		for _, a := range m.Agents {
			for _, fn := range a.Functions {
				name := fmt.Sprintf("%s_%s", a.Name, fn.Name)
				sym, err := p.Lookup(name)
				if err != nil {
					continue // may live in another function file
				}
				switch impl := sym.(type) {
				case *sim.AgentFunc:
					symbols[a.Name+"."+fn.Name] = *impl
				case func(*mem.MemoryIterator, *mb.Client) error:
					symbols[a.Name+"."+fn.Name] = impl
				default:
					return fmt.Errorf("function file %q: symbol %s has type %T, want sim.AgentFunc",
						file, name, sym)
				}
			}
		}
	}

	for _, a := range m.Agents {
		for _, fn := range a.Functions {
			impl, ok := symbols[a.Name+"."+fn.Name]
			if !ok {
				logger.Warn("no implementation for %s.%s, using a no-op body", a.Name, fn.Name)
				impl = noopFunc
			}
			if err := eng.RegisterFunction(a.Name, fn.Name, impl); err != nil {
				return err
			}
		}
	}
	return nil
}

func noopFunc(_ *mem.MemoryIterator, _ *mb.Client) error { return nil }
