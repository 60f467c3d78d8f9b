package pop

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/model"
)

// ParseModelFile reads an xmodel v2 file into a model description. The
// returned model is not yet validated; callers run model.Validate or
// graph.Compile, which validates first.
func ParseModelFile(path string) (*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model file %q: %v: %w", path, err, ErrIO)
	}
	return ParseModel(data, path)
}

// ParseModel parses xmodel v2 XML. name is used in diagnostics only.
func ParseModel(data []byte, name string) (*model.Model, error) {
	var doc xmlModel
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("model file %q: %v: %w", name, err, ErrSchema)
	}
	if doc.XMLName.Local != "xmodel" {
		return nil, fmt.Errorf("model file %q: root element is %q, expected \"xmodel\": %w",
			name, doc.XMLName.Local, ErrSchema)
	}
	if doc.Version != "2" {
		return nil, fmt.Errorf("model file %q: xmodel version %q, expected \"2\": %w",
			name, doc.Version, ErrSchema)
	}

	m := &model.Model{
		Name:        doc.Name,
		Version:     doc.ModelVersion,
		Author:      doc.Author,
		Description: doc.Description,
	}

	for _, c := range doc.Environment.Constants {
		tag, err := mem.ParseTypeTag(c.Type)
		if err != nil {
			return nil, fmt.Errorf("model file %q: constant %q has type %q: %w",
				name, c.Name, c.Type, ErrSchema)
		}
		m.Constants = append(m.Constants, model.Constant{Name: c.Name, Type: tag, Value: c.Value})
	}
	for _, tu := range doc.Environment.TimeUnits {
		period, err := strconv.Atoi(strings.TrimSpace(tu.Period))
		if err != nil {
			return nil, fmt.Errorf("model file %q: time unit %q has period %q: %w",
				name, tu.Name, tu.Period, ErrSchema)
		}
		m.TimeUnits = append(m.TimeUnits, model.TimeUnit{Name: tu.Name, Unit: tu.Unit, Period: period})
	}
	m.FunctionFiles = append(m.FunctionFiles, doc.Environment.FunctionFiles...)

	for _, xa := range doc.Agents {
		a := &model.Agent{Name: xa.Name}
		for _, v := range xa.Memory {
			tag, err := mem.ParseTypeTag(v.Type)
			if err != nil {
				return nil, fmt.Errorf("model file %q: agent %q variable %q has type %q: %w",
					name, xa.Name, v.Name, v.Type, ErrSchema)
			}
			a.Memory = append(a.Memory, model.VarDecl{Name: v.Name, Type: tag})
		}
		for _, xf := range xa.Functions {
			fn, err := convertFunction(name, xa.Name, a, xf)
			if err != nil {
				return nil, err
			}
			a.Functions = append(a.Functions, fn)
		}
		m.Agents = append(m.Agents, a)
	}

	for _, xm := range doc.Messages {
		msg := &model.Message{Name: xm.Name}
		for _, v := range xm.Variables {
			tag, err := mem.ParseTypeTag(v.Type)
			if err != nil {
				return nil, fmt.Errorf("model file %q: message %q variable %q has type %q: %w",
					name, xm.Name, v.Name, v.Type, ErrSchema)
			}
			msg.Vars = append(msg.Vars, model.VarDecl{Name: v.Name, Type: tag})
		}
		m.Messages = append(m.Messages, msg)
	}

	return m, nil
}

func convertFunction(file, agent string, a *model.Agent, xf xmlFunction) (*model.Function, error) {
	fn := &model.Function{
		Name:         xf.Name,
		CurrentState: xf.CurrentState,
		NextState:    xf.NextState,
	}
	for _, in := range xf.Inputs {
		fn.Inputs = append(fn.Inputs, in.MessageName)
	}
	for _, out := range xf.Outputs {
		fn.Outputs = append(fn.Outputs, out.MessageName)
	}

	// the memoryAccess block is optional; a function without one gets
	// read-write access to the agent's whole memory
	if xf.MemoryAccess == nil {
		for _, v := range a.Memory {
			fn.Vars = append(fn.Vars, model.VarAccess{Name: v.Name, Mode: model.ReadWrite})
		}
	} else {
		for _, name := range xf.MemoryAccess.ReadOnly {
			fn.Vars = append(fn.Vars, model.VarAccess{Name: name, Mode: model.ReadOnly})
		}
		for _, name := range xf.MemoryAccess.ReadWrite {
			fn.Vars = append(fn.Vars, model.VarAccess{Name: name, Mode: model.ReadWrite})
		}
	}

	if xf.Condition != nil {
		cond, err := convertCondition(file, agent, xf.Name, xf.Condition)
		if err != nil {
			return nil, err
		}
		fn.Condition = cond
	}
	return fn, nil
}

// convertCondition turns the nested XML condition form into an arena
// condition tree.
func convertCondition(file, agent, fn string, xc *xmlCondition) (*model.Condition, error) {
	fail := func(format string, args ...any) error {
		prefix := fmt.Sprintf("model file %q: agent %q function %q condition: ", file, agent, fn)
		return fmt.Errorf(prefix+format+": %w", append(args, ErrSchema)...)
	}

	if xc.Not != nil {
		inner, err := convertCondition(file, agent, fn, xc.Not)
		if err != nil {
			return nil, err
		}
		return model.Not(inner), nil
	}

	if xc.Time != nil {
		phase, err := parseOperandValue(xc.Time.Phase)
		if err != nil && xc.Time.Phase != "" {
			return nil, fail("time phase %q", xc.Time.Phase)
		}
		if xc.Time.Duration == "" {
			return model.Time(xc.Time.Period, phase, 0, false), nil
		}
		dur, err := strconv.Atoi(strings.TrimSpace(xc.Time.Duration))
		if err != nil {
			return nil, fail("time duration %q", xc.Time.Duration)
		}
		return model.Time(xc.Time.Period, phase, dur, true), nil
	}

	if xc.Lhs == nil || xc.Rhs == nil || xc.Op == "" {
		return nil, fail("lhs, op and rhs are required")
	}
	op := model.Op(strings.TrimSpace(xc.Op))

	// nested (condition op condition)
	if xc.Lhs.Condition != nil || xc.Rhs.Condition != nil {
		if xc.Lhs.Condition == nil || xc.Rhs.Condition == nil {
			return nil, fail("nested conditions require conditions on both sides")
		}
		if !op.IsCombination() {
			return nil, fail("operator %q cannot join conditions", op)
		}
		lhs, err := convertCondition(file, agent, fn, xc.Lhs.Condition)
		if err != nil {
			return nil, err
		}
		rhs, err := convertCondition(file, agent, fn, xc.Rhs.Condition)
		if err != nil {
			return nil, err
		}
		return model.Combine(lhs, op, rhs), nil
	}

	if !op.IsComparison() {
		return nil, fail("operator %q cannot compare values", op)
	}
	lhs, err := parseOperandValue(xc.Lhs.Value)
	if err != nil {
		return nil, fail("lhs value %q", xc.Lhs.Value)
	}
	rhs, err := parseOperandValue(xc.Rhs.Value)
	if err != nil {
		return nil, fail("rhs value %q", xc.Rhs.Value)
	}
	return model.Compare(lhs, op, rhs), nil
}

// parseOperandValue maps "a.name" to an agent variable reference and
// anything else to a numeric literal.
func parseOperandValue(s string) (model.Operand, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "a.") {
		return model.AgentVar(strings.TrimPrefix(s, "a.")), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Operand{}, err
	}
	return model.Literal(v), nil
}

// XML document structures for the xmodel v2 schema

type xmlModel struct {
	XMLName      xml.Name
	Version      string         `xml:"version,attr"`
	Name         string         `xml:"name"`
	ModelVersion string         `xml:"version"`
	Author       string         `xml:"author"`
	Description  string         `xml:"description"`
	Environment  xmlEnvironment `xml:"environment"`
	Agents       []xmlAgent     `xml:"agents>xagent"`
	Messages     []xmlMessage   `xml:"messages>message"`
}

type xmlEnvironment struct {
	Constants     []xmlVariable `xml:"constants>constant"`
	DataTypes     []xmlDataType `xml:"dataTypes>dataType"`
	TimeUnits     []xmlTimeUnit `xml:"timeUnits>timeUnit"`
	FunctionFiles []string      `xml:"functionFiles>file"`
}

type xmlDataType struct {
	Name string `xml:"name"`
}

type xmlTimeUnit struct {
	Name   string `xml:"name"`
	Unit   string `xml:"unit"`
	Period string `xml:"period"`
}

type xmlVariable struct {
	Type  string `xml:"type"`
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

type xmlAgent struct {
	Name      string        `xml:"name"`
	Memory    []xmlVariable `xml:"memory>variable"`
	Functions []xmlFunction `xml:"functions>function"`
}

type xmlFunction struct {
	Name         string           `xml:"name"`
	CurrentState string           `xml:"currentState"`
	NextState    string           `xml:"nextState"`
	Condition    *xmlCondition    `xml:"condition"`
	Inputs       []xmlIOPut       `xml:"inputs>input"`
	Outputs      []xmlIOPut       `xml:"outputs>output"`
	MemoryAccess *xmlMemoryAccess `xml:"memoryAccess"`
}

type xmlIOPut struct {
	MessageName string `xml:"messageName"`
}

type xmlMemoryAccess struct {
	ReadOnly  []string `xml:"readOnly>variableName"`
	ReadWrite []string `xml:"readWrite>variableName"`
}

type xmlCondition struct {
	Not  *xmlCondition `xml:"not"`
	Time *xmlTime      `xml:"time"`
	Lhs  *xmlOperand   `xml:"lhs"`
	Op   string        `xml:"op"`
	Rhs  *xmlOperand   `xml:"rhs"`
}

type xmlOperand struct {
	Value     string        `xml:"value"`
	Condition *xmlCondition `xml:"condition"`
}

type xmlTime struct {
	Period   string `xml:"period"`
	Phase    string `xml:"phase"`
	Duration string `xml:"duration"`
}

type xmlMessage struct {
	Name      string        `xml:"name"`
	Variables []xmlVariable `xml:"variables>variable"`
}
