// Package xmlpop reads and writes population snapshots in the states
// XML dialect: a states root holding an itno iteration number followed
// by one xagent element per agent row.
package xmlpop

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/pop"
)

// Reader parses population files against a declared agent schema
type Reader struct {
	schema map[string]map[string]mem.TypeTag
	order  map[string][]string
}

// NewReader creates a reader for the given agent schema
func NewReader(schema []mem.AgentLayout) *Reader {
	r := &Reader{
		schema: make(map[string]map[string]mem.TypeTag, len(schema)),
		order:  make(map[string][]string, len(schema)),
	}
	for _, a := range schema {
		vars := make(map[string]mem.TypeTag, len(a.Vars))
		var order []string
		for _, v := range a.Vars {
			vars[v.Name] = v.Tag
			order = append(order, v.Name)
		}
		r.schema[a.Name] = vars
		r.order[a.Name] = order
	}
	return r
}

// ReadPop parses a population file, delivering each value through the
// matching callback, and returns the file's iteration number.
// Malformed structure, unknown agents, unknown variables, and uncastable
// values are distinct error kinds, each naming the offending element
// path.
func (r *Reader) ReadPop(path string, addInt pop.AddInt, addDouble pop.AddDouble) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("population file %q: %v: %w", path, err, pop.ErrIO)
	}
	defer f.Close()
	return r.read(f, path, addInt, addDouble)
}

// read walks the token stream with an explicit element stack rather
// than unwinding through nested decode calls.
func (r *Reader) read(src io.Reader, path string, addInt pop.AddInt, addDouble pop.AddDouble) (int, error) {
	dec := xml.NewDecoder(src)

	var (
		stack     []string
		iteration int
		sawItno   bool
		agent     string // current xagent's declared name, once seen
		text      strings.Builder
	)

	elemPath := func() string {
		return "/" + strings.Join(stack, "/")
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("population file %q: %v: %w", path, err, pop.ErrSchema)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch len(stack) {
			case 0:
				if name != "states" {
					return 0, fmt.Errorf("population file %q: root element %q, expected \"states\": %w",
						path, name, pop.ErrSchema)
				}
			case 1:
				if name != "itno" && name != "xagent" {
					return 0, fmt.Errorf("population file %q: unexpected element at /states/%s: %w",
						path, name, pop.ErrSchema)
				}
				if name == "xagent" {
					agent = ""
				}
			case 2:
				// children of xagent: name, then variables
			default:
				return 0, fmt.Errorf("population file %q: unexpected nesting at %s/%s: %w",
					path, elemPath(), name, pop.ErrSchema)
			}
			stack = append(stack, name)
			text.Reset()

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			if len(stack) == 0 {
				return 0, fmt.Errorf("population file %q: unbalanced close of %q: %w",
					path, t.Name.Local, pop.ErrSchema)
			}
			value := strings.TrimSpace(text.String())
			current := stack[len(stack)-1]

			switch {
			case len(stack) == 2 && current == "itno":
				n, err := strconv.Atoi(value)
				if err != nil || n < 0 {
					return 0, fmt.Errorf("population file %q at /states/itno: value %q is not a non-negative integer: %w",
						path, value, pop.ErrBadValue)
				}
				iteration = n
				sawItno = true

			case len(stack) == 3 && current == "name":
				if _, ok := r.schema[value]; !ok {
					return 0, fmt.Errorf("population file %q at %s: %q: %w",
						path, elemPath(), value, pop.ErrUnknownAgent)
				}
				agent = value

			case len(stack) == 3:
				if agent == "" {
					return 0, fmt.Errorf("population file %q at %s: variable before agent name: %w",
						path, elemPath(), pop.ErrSchema)
				}
				tag, ok := r.schema[agent][current]
				if !ok {
					return 0, fmt.Errorf("population file %q at %s: agent %q: %w",
						path, elemPath(), agent, pop.ErrUnknownVariable)
				}
				if err := deliver(agent, current, tag, value, addInt, addDouble); err != nil {
					return 0, fmt.Errorf("population file %q at %s: %w", path, elemPath(), err)
				}
			}

			stack = stack[:len(stack)-1]
			text.Reset()
		}
	}

	if !sawItno {
		return 0, fmt.Errorf("population file %q: missing itno element: %w", path, pop.ErrSchema)
	}
	return iteration, nil
}

func deliver(agent, varName string, tag mem.TypeTag, value string, addInt pop.AddInt, addDouble pop.AddDouble) error {
	switch tag {
	case mem.TypeInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("value %q is not a valid int: %w", value, pop.ErrBadValue)
		}
		return addInt(agent, varName, n)
	default:
		x, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("value %q is not a valid double: %w", value, pop.ErrBadValue)
		}
		return addDouble(agent, varName, x)
	}
}
