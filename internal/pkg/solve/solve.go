/*
Package solve is the boundary to the numerical power-system solver.
The Solver interface is what an external AC-PF/OPF engine has to
provide, the Driver wraps it with the fallback ladder the studies run
through, and VirtualSolver stands in for the real engine during tests
and offline runs.
*/
package solve

import (
	"fmt"
	"strings"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
)

// Power flow algorithms, in default fallback order.
const (
	AlgNR   = "nr"
	AlgBFSW = "bfsw"
	AlgGS   = "gs"
)

// Initialization modes. InitDC asks the solver for a DC power flow
// first and a warm AC solve from its angles.
const (
	InitAuto    = "auto"
	InitFlat    = "flat"
	InitResults = "results"
	InitDC      = "dc"
)

// Default convergence settings.
const (
	DefaultMaxIteration = 100
	DefaultToleranceMVA = 1e-3
)

// Options selects algorithm and convergence behavior for one attempt.
type Options struct {
	Algorithm      string
	Init           string
	MaxIteration   int
	ToleranceMVA   float64
	EnforceQLimits bool
}

// DefaultOptions is the first rung of the fallback ladder.
func DefaultOptions() Options {
	return Options{
		Algorithm:    AlgNR,
		Init:         InitAuto,
		MaxIteration: DefaultMaxIteration,
		ToleranceMVA: DefaultToleranceMVA,
	}
}

// Result reports one solver call. On convergence the result tables of
// the network are filled.
type Result struct {
	Converged  bool
	Algorithm  string
	Init       string
	Iterations int
}

// Solver is the external engine contract. Implementations fill the
// network's result tables and set its convergence marks; a false
// Converged without error means the iteration ran and diverged.
type Solver interface {
	SolvePF(net *powernet.Network, opt Options) (Result, error)
	SolveOPF(net *powernet.Network, opt Options) (Result, error)
}

// Attempt records one rung of the fallback ladder.
type Attempt struct {
	Mode         string
	Algorithm    string
	Init         string
	ToleranceMVA float64
	Converged    bool
	Err          error
}

func (a Attempt) String() string {
	out := fmt.Sprintf("%s %s/%s tol=%g", a.Mode, a.Algorithm, a.Init, a.ToleranceMVA)
	switch {
	case a.Converged:
		return out + " converged"
	case a.Err != nil:
		return out + " error: " + a.Err.Error()
	default:
		return out + " diverged"
	}
}

// NoConvergenceError carries the full attempt history after the ladder
// is exhausted.
type NoConvergenceError struct {
	Mode     string
	Attempts []Attempt
}

func (e *NoConvergenceError) Error() string {
	lines := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		lines[i] = a.String()
	}
	return fmt.Sprintf("%s did not converge after %d attempts: [%s]",
		e.Mode, len(e.Attempts), strings.Join(lines, "; "))
}
