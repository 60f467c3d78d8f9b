package model

import (
	"fmt"

	"github.com/flocksim/flock/mem"
)

// Validate runs every semantic check on the model description. It
// returns the first failure wrapped in ErrModelValidation; a valid model
// returns nil. Compilation refuses invalid models before any iteration
// runs.
func (m *Model) Validate() error {
	if len(m.Agents) == 0 {
		return fmt.Errorf("model %q declares no agents: %w", m.Name, ErrModelValidation)
	}

	timeUnits := m.timeUnitSet()
	if err := m.validateTimeUnits(); err != nil {
		return err
	}

	msgVars := make(map[string]map[string]mem.TypeTag, len(m.Messages))
	seenMsg := make(map[string]struct{}, len(m.Messages))
	for _, msg := range m.Messages {
		if _, dup := seenMsg[msg.Name]; dup {
			return fmt.Errorf("duplicate message %q: %w", msg.Name, ErrModelValidation)
		}
		seenMsg[msg.Name] = struct{}{}
		vars, err := validateVarDecls("message", msg.Name, msg.Vars)
		if err != nil {
			return err
		}
		if len(msg.Vars) == 0 {
			return fmt.Errorf("message %q declares no variables: %w", msg.Name, ErrModelValidation)
		}
		msgVars[msg.Name] = vars
	}

	seenAgent := make(map[string]struct{}, len(m.Agents))
	for _, a := range m.Agents {
		if _, dup := seenAgent[a.Name]; dup {
			return fmt.Errorf("duplicate agent %q: %w", a.Name, ErrModelValidation)
		}
		seenAgent[a.Name] = struct{}{}
		if err := m.validateAgent(a, msgVars, timeUnits); err != nil {
			return err
		}
	}
	return nil
}

func validateVarDecls(kind, owner string, decls []VarDecl) (map[string]mem.TypeTag, error) {
	vars := make(map[string]mem.TypeTag, len(decls))
	for _, v := range decls {
		if v.Name == "" {
			return nil, fmt.Errorf("%s %q declares an unnamed variable: %w", kind, owner, ErrModelValidation)
		}
		if v.Type != mem.TypeInt && v.Type != mem.TypeDouble {
			// dynamic arrays and user record types are a declared
			// restriction: scalars only, for agents and messages alike
			return nil, fmt.Errorf("%s %q, variable %q: only int and double variables are supported: %w",
				kind, owner, v.Name, ErrModelValidation)
		}
		if _, dup := vars[v.Name]; dup {
			return nil, fmt.Errorf("%s %q, duplicate variable %q: %w", kind, owner, v.Name, ErrModelValidation)
		}
		vars[v.Name] = v.Type
	}
	return vars, nil
}

func (m *Model) validateAgent(a *Agent, msgVars map[string]map[string]mem.TypeTag, timeUnits map[string]struct{}) error {
	if len(a.Memory) == 0 {
		return fmt.Errorf("agent %q declares no memory: %w", a.Name, ErrModelValidation)
	}
	if len(a.Functions) == 0 {
		return fmt.Errorf("agent %q declares no functions: %w", a.Name, ErrModelValidation)
	}
	vars, err := validateVarDecls("agent", a.Name, a.Memory)
	if err != nil {
		return err
	}

	seenFn := make(map[string]struct{}, len(a.Functions))
	for _, fn := range a.Functions {
		if fn.Name == "" {
			return fmt.Errorf("agent %q declares an unnamed function: %w", a.Name, ErrModelValidation)
		}
		if _, dup := seenFn[fn.Name]; dup {
			return fmt.Errorf("agent %q, duplicate function %q: %w", a.Name, fn.Name, ErrModelValidation)
		}
		seenFn[fn.Name] = struct{}{}

		if fn.CurrentState == "" || fn.NextState == "" {
			return fmt.Errorf("agent %q, function %q: current and next state are required: %w",
				a.Name, fn.Name, ErrModelValidation)
		}

		seenVar := make(map[string]struct{}, len(fn.Vars))
		for _, va := range fn.Vars {
			if _, ok := vars[va.Name]; !ok {
				return fmt.Errorf("agent %q, function %q references unknown variable %q: %w",
					a.Name, fn.Name, va.Name, ErrModelValidation)
			}
			if _, dup := seenVar[va.Name]; dup {
				return fmt.Errorf("agent %q, function %q lists variable %q twice: %w",
					a.Name, fn.Name, va.Name, ErrModelValidation)
			}
			seenVar[va.Name] = struct{}{}
		}

		for _, msg := range fn.Inputs {
			if _, ok := msgVars[msg]; !ok {
				return fmt.Errorf("agent %q, function %q inputs unknown message %q: %w",
					a.Name, fn.Name, msg, ErrModelValidation)
			}
		}
		for _, msg := range fn.Outputs {
			if _, ok := msgVars[msg]; !ok {
				return fmt.Errorf("agent %q, function %q outputs unknown message %q: %w",
					a.Name, fn.Name, msg, ErrModelValidation)
			}
		}
		for _, in := range fn.Inputs {
			for _, out := range fn.Outputs {
				if in == out {
					return fmt.Errorf("agent %q, function %q both reads and posts message %q: %w",
						a.Name, fn.Name, in, ErrModelValidation)
				}
			}
		}

		if fn.Condition != nil {
			if err := fn.Condition.Validate(a.Name, vars, timeUnits); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Model) validateTimeUnits() error {
	seen := map[string]struct{}{"iteration": {}}
	for _, tu := range m.TimeUnits {
		if tu.Name == "" {
			return fmt.Errorf("unnamed time unit: %w", ErrModelValidation)
		}
		if _, dup := seen[tu.Name]; dup {
			return fmt.Errorf("duplicate time unit %q: %w", tu.Name, ErrModelValidation)
		}
		if _, ok := seen[tu.Unit]; !ok {
			return fmt.Errorf("time unit %q references unknown unit %q: %w", tu.Name, tu.Unit, ErrModelValidation)
		}
		if tu.Period < 1 {
			return fmt.Errorf("time unit %q has period %d, must be >= 1: %w", tu.Name, tu.Period, ErrModelValidation)
		}
		seen[tu.Name] = struct{}{}
	}
	return nil
}
