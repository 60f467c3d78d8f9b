// Command flock runs agent-based simulations: it parses a model file,
// compiles it into a task DAG, loads a population, and executes
// iterations on a parallel scheduler.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kataras/golog"
	"github.com/spf13/cobra"

	"github.com/flocksim/flock/exe"
	flocklog "github.com/flocksim/flock/log"
	"github.com/flocksim/flock/mem"
	"github.com/flocksim/flock/model"
	"github.com/flocksim/flock/pop"
)

// Exit codes; kept distinct so callers can tell failure classes apart.
const (
	exitOK             = 0
	exitFailure        = 1
	exitModelInvalid   = 2
	exitIO             = 3
	exitSchema         = 4
	exitUnknownAgent   = 5
	exitUnknownVar     = 6
	exitBadValue       = 7
	exitNotImplemented = 8
	exitRuntime        = 9
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "flock",
	Short:         "flock is a runtime engine for large-scale agent-based simulations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a flock.yaml config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error, none")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(graphCmd)
}

func newLogger(level string) *flocklog.GologLogger {
	logger := flocklog.NewGologLogger(golog.Default)
	logger.SetLevel(flocklog.ParseLevel(level))
	return logger
}

// exitCodeFor maps an error to its failure class
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pop.ErrBadValue):
		return exitBadValue
	case errors.Is(err, pop.ErrUnknownAgent):
		return exitUnknownAgent
	case errors.Is(err, pop.ErrUnknownVariable):
		return exitUnknownVar
	case errors.Is(err, pop.ErrSchema):
		return exitSchema
	case errors.Is(err, pop.ErrIO), errors.Is(err, mem.ErrSizeMismatch):
		return exitIO
	case errors.Is(err, pop.ErrNotImplemented), errors.Is(err, model.ErrNotImplemented):
		return exitNotImplemented
	case errors.Is(err, pop.ErrUnknownFormat):
		return exitNotImplemented
	case errors.Is(err, model.ErrModelValidation):
		return exitModelInvalid
	default:
		var taskErr *exe.TaskError
		if errors.As(err, &taskErr) {
			return exitRuntime
		}
		return exitFailure
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "flock: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}
