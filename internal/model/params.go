// Package model implements the deterministic discrete-time process model
// of surge velocity, yaw rate, and gyro bias that underlies both the EKF
// and the simulator.
package model

import (
	"math"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Params holds the four process parameters (tau_v, tau_r, k_v, k_r).
// tau_v and tau_r are surge/yaw time constants and must be positive and
// finite; k_v and k_r are finite gains with unconstrained sign. Params is
// immutable once constructed.
type Params struct {
	TauV float64
	TauR float64
	KV   float64
	KR   float64
}

// NewParams validates and constructs a Params value.
func NewParams(tauV, tauR, kV, kR float64) (Params, error) {
	const component = "model.NewParams"
	if !(tauV > 0) || math.IsNaN(tauV) || math.IsInf(tauV, 0) {
		return Params{}, usverr.New(usverr.InvalidArgument, component, "tau_v must be finite and positive")
	}
	if !(tauR > 0) || math.IsNaN(tauR) || math.IsInf(tauR, 0) {
		return Params{}, usverr.New(usverr.InvalidArgument, component, "tau_r must be finite and positive")
	}
	if math.IsNaN(kV) || math.IsInf(kV, 0) {
		return Params{}, usverr.New(usverr.InvalidArgument, component, "k_v must be finite")
	}
	if math.IsNaN(kR) || math.IsInf(kR, 0) {
		return Params{}, usverr.New(usverr.InvalidArgument, component, "k_r must be finite")
	}
	return Params{TauV: tauV, TauR: tauR, KV: kV, KR: kR}, nil
}
