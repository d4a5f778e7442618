package ekf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/danielflataker/usv-autopilot/internal/state"
)

// MeasurementModel is the closed, tagged-variant set of sensor models the
// EKF can update against: h(x) -> z_hat, H(x) = dh/dx, and a
// sensor-specific residual function. The set is closed by design (see
// design note 9: "avoid open inheritance hierarchies; the set of models
// is closed and known"), so this is a small interface with three
// concrete implementations rather than an extensible registry.
type MeasurementModel interface {
	// Name identifies the model for logging and diagnostics.
	Name() string
	// Dim is the measurement dimension m.
	Dim() int
	// Predict returns z_hat = h(x), length Dim().
	Predict(x state.Vector) []float64
	// Jacobian returns H(x) = dh/dx, shape (Dim(), state.Dim).
	Jacobian(x state.Vector) *mat.Dense
	// Residual computes y = residual(z, z_hat) with sensor-specific
	// wrapping (identity for linear sensors, short-way angle difference
	// for heading).
	Residual(z, zHat []float64) []float64
}

// GNSSXY measures planar position (x, y) directly.
type GNSSXY struct{}

func (GNSSXY) Name() string { return "gnss_xy" }
func (GNSSXY) Dim() int     { return 2 }

func (GNSSXY) Predict(x state.Vector) []float64 {
	return []float64{x[state.X], x[state.Y]}
}

func (GNSSXY) Jacobian(state.Vector) *mat.Dense {
	h := mat.NewDense(2, state.Dim, nil)
	h.Set(0, state.X, 1)
	h.Set(1, state.Y, 1)
	return h
}

func (GNSSXY) Residual(z, zHat []float64) []float64 {
	return []float64{z[0] - zHat[0], z[1] - zHat[1]}
}

// GyroR measures yaw rate plus gyro bias: z = r + b_g. It intentionally
// ties r and b_g together; they are only individually observable when
// combined with another sensor (e.g. GNSS-derived heading change).
type GyroR struct{}

func (GyroR) Name() string { return "gyro_r" }
func (GyroR) Dim() int     { return 1 }

func (GyroR) Predict(x state.Vector) []float64 {
	return []float64{x[state.R] + x[state.BG]}
}

func (GyroR) Jacobian(state.Vector) *mat.Dense {
	h := mat.NewDense(1, state.Dim, nil)
	h.Set(0, state.R, 1)
	h.Set(0, state.BG, 1)
	return h
}

func (GyroR) Residual(z, zHat []float64) []float64 {
	return []float64{z[0] - zHat[0]}
}

// MagPsi measures heading directly, with angle-wrapped residual.
type MagPsi struct{}

func (MagPsi) Name() string { return "mag_psi" }
func (MagPsi) Dim() int     { return 1 }

func (MagPsi) Predict(x state.Vector) []float64 {
	return []float64{x[state.PSI]}
}

func (MagPsi) Jacobian(state.Vector) *mat.Dense {
	h := mat.NewDense(1, state.Dim, nil)
	h.Set(0, state.PSI, 1)
	return h
}

func (MagPsi) Residual(z, zHat []float64) []float64 {
	return []float64{ResidualHeading(z[0], zHat[0])}
}

// ResidualHeading returns the short-way angle difference a - b, wrapped
// to [-pi, pi): the value in that range that is congruent to a-b modulo
// 2*pi and minimal in magnitude.
func ResidualHeading(a, b float64) float64 {
	return state.WrapPi(a - b)
}
