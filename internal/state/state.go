// Package state defines the fixed-arity vector contracts shared by the
// process model, the EKF, and the simulator: the 6-dimensional state
// vector and the 2-dimensional input vector, plus the index constants
// used to address their components.
package state

import (
	"fmt"
	"math"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Dim is the fixed dimension of the state vector.
const Dim = 6

// State component indices, in the canonical order (x, y, psi, v, r, bg).
const (
	X = iota
	Y
	PSI
	V
	R
	BG
)

// InputDim is the fixed dimension of the input vector.
const InputDim = 2

// Input component indices.
const (
	US = iota
	UD
)

// Vector is the state vector (x, y, psi, v, r, bg): planar position [m],
// heading [rad] wrapped to [-pi, pi), surge speed [m/s], yaw rate [rad/s],
// and gyro bias [rad/s].
type Vector [Dim]float64

// Input is the achieved-actuation input vector (u_s, u_d): surge effort
// and yaw-moment effort.
type Input [InputDim]float64

// New builds a Vector from its six components in canonical order.
func New(x, y, psi, v, r, bg float64) Vector {
	return Vector{x, y, psi, v, r, bg}
}

// NewInput builds an Input from its two components.
func NewInput(us, ud float64) Input {
	return Input{us, ud}
}

// Validate reports an InvalidArgument error if any component is
// non-finite.
func (v Vector) Validate(component string) error {
	for i, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return usverr.New(usverr.InvalidArgument, component,
				fmt.Sprintf("state component %d is non-finite: %v", i, c))
		}
	}
	return nil
}

// Validate reports an InvalidArgument error if any component is
// non-finite.
func (u Input) Validate(component string) error {
	for i, c := range u {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return usverr.New(usverr.InvalidArgument, component,
				fmt.Sprintf("input component %d is non-finite: %v", i, c))
		}
	}
	return nil
}

// Add returns v + w componentwise.
func (v Vector) Add(w Vector) Vector {
	var out Vector
	for i := range v {
		out[i] = v[i] + w[i]
	}
	return out
}

// WrapHeading returns v with the PSI component canonically wrapped to
// [-pi, pi).
func (v Vector) WrapHeading() Vector {
	v[PSI] = WrapPi(v[PSI])
	return v
}

// WrapPi returns ((a + pi) mod 2*pi) - pi using positive-modulo
// semantics, so that exact pi wraps to -pi.
func WrapPi(a float64) float64 {
	const twoPi = 2 * math.Pi
	wrapped := math.Mod(a+math.Pi, twoPi)
	if wrapped < 0 {
		wrapped += twoPi
	}
	return wrapped - math.Pi
}
