package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flocksim/flock/graph"
	"github.com/flocksim/flock/pop"
)

var flagGraphFormat string

var graphCmd = &cobra.Command{
	Use:   "graph <model.xml>",
	Short: "Compile a model and print its task DAG",
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
		exporter := graph.NewExporter(compiled)
		switch flagGraphFormat {
		case "dot":
			fmt.Print(exporter.DrawDOT())
		case "mermaid":
			fmt.Print(exporter.DrawMermaid())
		default:
			return fmt.Errorf("graph format %q, want dot or mermaid: %w",
				flagGraphFormat, pop.ErrUnknownFormat)
		}
		return nil
	},
}

func init() {
	graphCmd.Flags().StringVar(&flagGraphFormat, "format", "dot", "output format: dot or mermaid")
}
