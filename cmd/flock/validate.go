package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flocksim/flock/graph"
	"github.com/flocksim/flock/pop"
)

var validateCmd = &cobra.Command{
	Use:   "validate <model.xml>",
	Short: "Parse and validate a model file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := pop.ParseModelFile(args[0])
		if err != nil {
			return err
		}
		compiled, err := graph.Compile(m)
		if err != nil {
			return err
		}
		fmt.Printf("model %q is valid: %d agents, %d messages, %d tasks\n",
			m.Name, len(m.Agents), len(m.Messages), len(compiled.Specs()))
		return nil
	},
}
