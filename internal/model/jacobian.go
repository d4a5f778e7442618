package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/danielflataker/usv-autopilot/internal/state"
)

// Jacobian returns F = df/dx evaluated at x (before propagation), the
// way fusion.buildStateTransition builds a state-transition matrix: start
// from the identity and overlay the non-trivial partials.
func Jacobian(x state.Vector, dt float64, theta Params) *mat.Dense {
	psi := x[state.PSI]
	v := x[state.V]

	f := mat.NewDense(state.Dim, state.Dim, nil)
	for i := 0; i < state.Dim; i++ {
		f.Set(i, i, 1.0)
	}

	f.Set(state.X, state.PSI, -dt*v*math.Sin(psi))
	f.Set(state.X, state.V, dt*math.Cos(psi))
	f.Set(state.Y, state.PSI, dt*v*math.Cos(psi))
	f.Set(state.Y, state.V, dt*math.Sin(psi))
	f.Set(state.PSI, state.R, dt)
	f.Set(state.V, state.V, 1-dt/theta.TauV)
	f.Set(state.R, state.R, 1-dt/theta.TauR)

	return f
}
