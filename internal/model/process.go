package model

import (
	"math"

	"github.com/danielflataker/usv-autopilot/internal/state"
	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Step propagates x one dt forward under input u and parameters theta:
//
//	x'  = x + dt*v*cos(psi)
//	y'  = y + dt*v*sin(psi)
//	psi'= wrap_pi(psi + dt*r)
//	v'  = v + dt*(-v/tau_v + k_v*u_s)
//	r'  = r + dt*(-r/tau_r + k_r*u_d)
//	bg' = bg
//
// If w is non-nil, it is added to the propagated state before the final
// heading re-wrap (process noise injection).
func Step(x state.Vector, u state.Input, dt float64, theta Params, w *state.Vector) (state.Vector, error) {
	const component = "model.Step"
	if err := x.Validate(component); err != nil {
		return state.Vector{}, err
	}
	if err := u.Validate(component); err != nil {
		return state.Vector{}, err
	}
	if !(dt > 0) || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return state.Vector{}, usverr.New(usverr.InvalidArgument, component, "dt must be finite and positive")
	}

	psi := x[state.PSI]
	v := x[state.V]
	r := x[state.R]

	next := state.Vector{
		state.X:   x[state.X] + dt*v*math.Cos(psi),
		state.Y:   x[state.Y] + dt*v*math.Sin(psi),
		state.PSI: state.WrapPi(psi + dt*r),
		state.V:   v + dt*(-v/theta.TauV+theta.KV*u[state.US]),
		state.R:   r + dt*(-r/theta.TauR+theta.KR*u[state.UD]),
		state.BG:  x[state.BG],
	}

	if w != nil {
		next = next.Add(*w).WrapHeading()
	}

	if err := next.Validate(component); err != nil {
		return state.Vector{}, usverr.Wrap(err, usverr.NumericError, component, "propagated state is non-finite")
	}
	return next, nil
}
