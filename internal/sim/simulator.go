// Package sim implements the deterministic forward simulator: it drives
// the process model forward with a scheduled input sequence and
// injectable process noise, producing aligned time/state/input arrays.
package sim

import (
	"github.com/danielflataker/usv-autopilot/internal/model"
	"github.com/danielflataker/usv-autopilot/internal/state"
	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// UFunc supplies the input at step k given the step index, its time, and
// the current state (callback-driven mode).
type UFunc func(k int, tk float64, xk state.Vector) (state.Input, error)

// WFunc optionally supplies additive process noise at step k. A nil
// return means no noise is injected at that step.
type WFunc func(k int, tk float64, xk state.Vector, uk state.Input) (*state.Vector, error)

// OnStep is an optional per-step observer invoked after each propagation.
// It is a pure function value; a caller needing mutable context passes a
// closure whose mutation is their own problem.
type OnStep func(k int, tk float64, xk state.Vector, uk state.Input, xNext state.Vector)

// Result holds the aligned time/state/input arrays produced by a run.
// Time is exact: T[k] = t0 + k*dt. len(T) == len(X) == len(U)+1.
type Result struct {
	T []float64
	X []state.Vector
	U []state.Input
}

// Config holds the shared simulation parameters: initial time, step size,
// and process parameters.
type Config struct {
	T0    float64
	Dt    float64
	Theta model.Params
}

// DefaultConfig returns a Config representative of a small survey USV at
// a 20 Hz step rate, so callers can start a run without hand-filling
// every field.
func DefaultConfig() Config {
	theta, err := model.NewParams(2.0, 0.8, 0.8, 1.2)
	if err != nil {
		panic(err) // constants above are known-valid
	}
	return Config{T0: 0, Dt: 0.05, Theta: theta}
}

// RunCallback drives the process model forward for nSteps steps using a
// caller-supplied input (and optional noise) callback. nSteps == 0 is
// legal and returns a single-point result with no inputs.
func RunCallback(x0 state.Vector, nSteps int, cfg Config, uFunc UFunc, wFunc WFunc, onStep OnStep) (Result, error) {
	const component = "sim.RunCallback"
	if nSteps < 0 {
		return Result{}, usverr.New(usverr.InvalidArgument, component, "nSteps must be >= 0")
	}

	res := Result{
		T: make([]float64, 1, nSteps+1),
		X: make([]state.Vector, 1, nSteps+1),
		U: make([]state.Input, 0, nSteps),
	}
	res.T[0] = cfg.T0
	res.X[0] = x0

	x := x0
	for k := 0; k < nSteps; k++ {
		tk := cfg.T0 + float64(k)*cfg.Dt
		u, err := uFunc(k, tk, x)
		if err != nil {
			return Result{}, usverr.Wrap(err, usverr.InvalidArgument, component, "u_func failed")
		}
		if err := u.Validate(component); err != nil {
			return Result{}, err
		}

		var w *state.Vector
		if wFunc != nil {
			w, err = wFunc(k, tk, x, u)
			if err != nil {
				return Result{}, usverr.Wrap(err, usverr.InvalidArgument, component, "w_func failed")
			}
		}

		xNext, err := model.Step(x, u, cfg.Dt, cfg.Theta, w)
		if err != nil {
			return Result{}, err
		}

		if onStep != nil {
			onStep(k, tk, x, u, xNext)
		}

		res.T = append(res.T, cfg.T0+float64(k+1)*cfg.Dt)
		res.X = append(res.X, xNext)
		res.U = append(res.U, u)
		x = xNext
	}

	return res, nil
}

// RunTable drives the process model forward using a precomputed input
// table: row k of uIn is used as u_k for N = len(uIn) steps.
func RunTable(x0 state.Vector, uIn []state.Input, cfg Config, wFunc WFunc, onStep OnStep) (Result, error) {
	uFunc := func(k int, tk float64, xk state.Vector) (state.Input, error) {
		return uIn[k], nil
	}
	return RunCallback(x0, len(uIn), cfg, uFunc, wFunc, onStep)
}
