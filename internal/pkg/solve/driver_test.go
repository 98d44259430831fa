package solve

import (
	"errors"
	"testing"

	"github.com/ohmwork/gridcore/internal/pkg/powernet"
	"gotest.tools/v3/assert"
)

func driverNet() *powernet.Network {
	return &powernet.Network{
		Buses: []powernet.Bus{{ID: "a", VnKV: 380}, {ID: "b", VnKV: 380}},
		Lines: []powernet.Line{
			{FromBus: 0, ToBus: 1, LengthKm: 50, ROhmPerKm: 0.03, XOhmPerKm: 0.26},
		},
		Gens:     []powernet.Gen{{Name: "g", Bus: 0, Type: "coal", PMW: 500, MaxPMW: 500, VmPu: 1.0}},
		Loads:    []powernet.Load{{Name: "l", Bus: 1, PMW: 480}},
		ExtGrids: []powernet.ExtGrid{{Bus: 0, Type: powernet.GridMainSlack, VmPu: 1.0}},
	}
}

func TestRunPFFirstAlgorithmWins(t *testing.T) {
	d := NewDriver(&VirtualSolver{})
	res, err := d.RunPF(driverNet())
	assert.NilError(t, err)
	assert.Assert(t, res.Converged)
	assert.Equal(t, res.Algorithm, AlgNR)
	assert.Equal(t, res.Init, InitAuto)
}

func TestRunPFFallsThroughToRelaxed(t *testing.T) {
	// Three standard rungs fail, the relaxed nr rung also fails, the
	// relaxed gs rung converges.
	d := NewDriver(&VirtualSolver{FailPF: 4})
	res, err := d.RunPF(driverNet())
	assert.NilError(t, err)
	assert.Equal(t, res.Algorithm, AlgGS)
	assert.Equal(t, res.Init, InitFlat)
}

func TestRunPFDCInitLastResort(t *testing.T) {
	d := NewDriver(&VirtualSolver{FailPF: 5})
	res, err := d.RunPF(driverNet())
	assert.NilError(t, err)
	assert.Equal(t, res.Init, InitDC)
}

func TestRunPFExhaustedLadder(t *testing.T) {
	d := NewDriver(&VirtualSolver{FailPF: 6})
	_, err := d.RunPF(driverNet())

	var nc *NoConvergenceError
	assert.Assert(t, errors.As(err, &nc))
	assert.Equal(t, nc.Mode, "pf")
	assert.Equal(t, len(nc.Attempts), 6)
	// ladder order is part of the contract
	assert.Equal(t, nc.Attempts[0].Algorithm, AlgNR)
	assert.Equal(t, nc.Attempts[1].Algorithm, AlgBFSW)
	assert.Equal(t, nc.Attempts[2].Algorithm, AlgGS)
	assert.Equal(t, nc.Attempts[3].Init, InitFlat)
	assert.Equal(t, nc.Attempts[5].Init, InitDC)
}

func TestRunOPFWarmStart(t *testing.T) {
	d := NewDriver(&VirtualSolver{})
	res, err := d.RunOPF(driverNet(), true)
	assert.NilError(t, err)
	assert.Assert(t, res.Converged)
	assert.Equal(t, res.Init, InitResults)
}

func TestRunOPFFlatRetryAfterWarmFailure(t *testing.T) {
	d := NewDriver(&VirtualSolver{FailOPF: 1})
	res, err := d.RunOPF(driverNet(), true)
	assert.NilError(t, err)
	assert.Equal(t, res.Init, InitFlat)
}

func TestRunOPFColdStart(t *testing.T) {
	d := NewDriver(&VirtualSolver{})
	res, err := d.RunOPF(driverNet(), false)
	assert.NilError(t, err)
	assert.Equal(t, res.Init, InitFlat)
}

func TestRunOPFFailureCarriesHistory(t *testing.T) {
	d := NewDriver(&VirtualSolver{FailOPF: 2})
	_, err := d.RunOPF(driverNet(), true)

	var nc *NoConvergenceError
	assert.Assert(t, errors.As(err, &nc))
	assert.Equal(t, nc.Mode, "opf")
	// warm-start pf, opf from results, opf flat retry
	assert.Equal(t, len(nc.Attempts), 3)
	assert.Assert(t, nc.Attempts[0].Mode == "pf")
}
