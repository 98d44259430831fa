package solve

import (
	"log"

	"github.com/ohmwork/gridcore/internal/pkg/metrics"
	"github.com/ohmwork/gridcore/internal/pkg/powernet"
)

// Driver sequences solver calls: standard algorithms first, relaxed
// tolerances second, DC initialization last. The first convergence
// wins, a full miss returns the attempt history.
type Driver struct {
	solver Solver
}

// NewDriver wraps a solver with the fallback ladder.
func NewDriver(s Solver) *Driver {
	return &Driver{solver: s}
}

// pf tolerance used on the relaxed rungs.
const relaxedToleranceMVA = 1e-4

func (d *Driver) attemptPF(net *powernet.Network, opt Options, attempts *[]Attempt) (Result, bool) {
	res, err := d.solver.SolvePF(net, opt)
	a := Attempt{
		Mode:         "pf",
		Algorithm:    opt.Algorithm,
		Init:         opt.Init,
		ToleranceMVA: opt.ToleranceMVA,
		Converged:    err == nil && res.Converged,
		Err:          err,
	}
	*attempts = append(*attempts, a)
	metrics.SolverAttempts.WithLabelValues("pf", opt.Algorithm, outcome(a)).Inc()
	return res, a.Converged
}

func outcome(a Attempt) string {
	switch {
	case a.Converged:
		return "converged"
	case a.Err != nil:
		return "error"
	default:
		return "diverged"
	}
}

// RunPF solves the AC power flow with the documented fallback
// sequence.
func (d *Driver) RunPF(net *powernet.Network) (Result, error) {
	var attempts []Attempt

	for _, alg := range []string{AlgNR, AlgBFSW, AlgGS} {
		opt := DefaultOptions()
		opt.Algorithm = alg
		if res, ok := d.attemptPF(net, opt, &attempts); ok {
			return res, nil
		}
	}

	for _, alg := range []string{AlgNR, AlgGS} {
		opt := Options{
			Algorithm:    alg,
			Init:         InitFlat,
			MaxIteration: 500,
			ToleranceMVA: relaxedToleranceMVA,
		}
		if res, ok := d.attemptPF(net, opt, &attempts); ok {
			log.Printf("[Solve] pf converged on relaxed %s", alg)
			return res, nil
		}
	}

	opt := Options{
		Algorithm:    AlgNR,
		Init:         InitDC,
		MaxIteration: 500,
		ToleranceMVA: relaxedToleranceMVA,
	}
	if res, ok := d.attemptPF(net, opt, &attempts); ok {
		log.Println("[Solve] pf converged from DC initialization")
		return res, nil
	}

	return Result{}, &NoConvergenceError{Mode: "pf", Attempts: attempts}
}

// RunOPF solves the optimal power flow. With warmStart an initial
// power flow primes the state and the OPF starts from its results; if
// either fails the flat start runs as the fallback.
func (d *Driver) RunOPF(net *powernet.Network, warmStart bool) (Result, error) {
	var attempts []Attempt

	initMode := InitFlat
	if warmStart {
		opt := DefaultOptions()
		opt.MaxIteration = 20
		if _, ok := d.attemptPF(net, opt, &attempts); ok {
			initMode = InitResults
		} else {
			log.Println("[Solve] warm start power flow failed, falling back to flat start")
		}
	}

	if res, ok := d.attemptOPF(net, initMode, &attempts); ok {
		return res, nil
	}
	if initMode == InitResults {
		if res, ok := d.attemptOPF(net, InitFlat, &attempts); ok {
			log.Println("[Solve] opf converged on flat-start retry")
			return res, nil
		}
	}

	return Result{}, &NoConvergenceError{Mode: "opf", Attempts: attempts}
}

func (d *Driver) attemptOPF(net *powernet.Network, init string, attempts *[]Attempt) (Result, bool) {
	opt := DefaultOptions()
	opt.Init = init
	opt.EnforceQLimits = true

	res, err := d.solver.SolveOPF(net, opt)
	a := Attempt{
		Mode:         "opf",
		Algorithm:    opt.Algorithm,
		Init:         init,
		ToleranceMVA: opt.ToleranceMVA,
		Converged:    err == nil && res.Converged,
		Err:          err,
	}
	*attempts = append(*attempts, a)
	metrics.SolverAttempts.WithLabelValues("opf", opt.Algorithm, outcome(a)).Inc()
	return res, a.Converged
}
