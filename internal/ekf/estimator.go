// Package ekf implements the Extended Kalman Filter built on the
// process model in internal/model: predict using the analytic Jacobian,
// update over a pluggable MeasurementModel with Joseph-form covariance
// propagation so that P stays symmetric and positive semi-definite under
// any gain K.
package ekf

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/danielflataker/usv-autopilot/internal/model"
	"github.com/danielflataker/usv-autopilot/internal/state"
	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Estimator owns the mutable estimate (x, P) exclusively; theta and Q are
// configurable but treated as immutable between explicit reconfiguration
// calls (SetProcessNoise). No internal aliasing: Predict and Update
// commit atomically, so a failed call leaves (x, P) unchanged.
type Estimator struct {
	x     state.Vector
	p     *mat.SymDense
	theta model.Params
	q     *mat.SymDense
}

// New constructs an Estimator with initial state x0, initial covariance
// p0, process parameters theta, and process-noise covariance q. p0 and q
// are copied defensively and symmetrized.
func New(x0 state.Vector, p0 *mat.SymDense, theta model.Params, q *mat.SymDense) *Estimator {
	return &Estimator{
		x:     x0,
		p:     symmetrizeSym(p0),
		theta: theta,
		q:     symmetrizeSym(q),
	}
}

// Config bundles an initial covariance and process-noise covariance so
// callers don't have to hand-build two 6x6 matrices before starting an
// estimator.
type Config struct {
	P0 *mat.SymDense
	Q  *mat.SymDense
}

// DefaultConfig returns a Config with P0 = I (unit uncertainty on every
// state component) and a small diagonal Q, scaled for a 20 Hz predict
// rate on a small survey USV. Callers with better prior knowledge of
// their sensors should build their own P0/Q instead.
func DefaultConfig() Config {
	p0 := mat.NewSymDense(state.Dim, nil)
	q := mat.NewSymDense(state.Dim, nil)
	for i := 0; i < state.Dim; i++ {
		p0.SetSym(i, i, 1.0)
	}
	q.SetSym(state.X, state.X, 1e-4)
	q.SetSym(state.Y, state.Y, 1e-4)
	q.SetSym(state.PSI, state.PSI, 1e-5)
	q.SetSym(state.V, state.V, 1e-3)
	q.SetSym(state.R, state.R, 1e-3)
	q.SetSym(state.BG, state.BG, 1e-7)
	return Config{P0: p0, Q: q}
}

// NewFromConfig constructs an Estimator from cfg's P0/Q, equivalent to
// New(x0, cfg.P0, theta, cfg.Q).
func NewFromConfig(x0 state.Vector, theta model.Params, cfg Config) *Estimator {
	return New(x0, cfg.P0, theta, cfg.Q)
}

// State returns the current mean estimate.
func (e *Estimator) State() state.Vector { return e.x }

// Covariance returns the current covariance. The returned matrix is a
// defensive copy; mutating it does not affect the estimator.
func (e *Estimator) Covariance() *mat.SymDense {
	n := e.p.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(e.p)
	return out
}

// SetProcessNoise reconfigures Q. It takes effect on the next Predict.
func (e *Estimator) SetProcessNoise(q *mat.SymDense) {
	e.q = symmetrizeSym(q)
}

// Predict propagates the mean through the process model and the
// covariance through its linearization F, evaluated at the
// pre-propagation state:
//
//	F = df/dx(x, u, dt; theta)
//	x <- f(x, u, dt; theta)          (noise-free)
//	P <- F P F^T + Q, symmetrized
func (e *Estimator) Predict(u state.Input, dt float64) error {
	const component = "ekf.Predict"

	f := model.Jacobian(e.x, dt, e.theta)
	nextX, err := model.Step(e.x, u, dt, e.theta, nil)
	if err != nil {
		return err
	}

	var fp mat.Dense
	fp.Mul(f, e.p)
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	n := state.Dim
	var nextP mat.Dense
	nextP.Add(&fpft, e.q)

	sym := denseToSym(&nextP, n)
	if !finiteSym(sym) {
		return usverr.New(usverr.NumericError, component, "predicted covariance is non-finite")
	}

	e.x = nextX
	e.p = sym
	return nil
}

// UpdateResult carries the innovation, innovation covariance, and Kalman
// gain from a successful Update call, so callers can log them.
type UpdateResult struct {
	Innovation []float64
	S          *mat.Dense
	K          *mat.Dense
}

// Update performs the EKF correction step given a measurement z, its
// noise covariance r, and a measurement model m:
//
//	z_hat = h(x); H = H(x); y = residual(z, z_hat)
//	S = H P H^T + R
//	K = P H^T S^-1, obtained by solving rather than inverting
//	x <- x + K y, heading re-wrapped
//	P <- (I - KH) P (I - KH)^T + K R K^T   (Joseph form), symmetrized
//
// On any failure (x, P) are left unchanged.
func (e *Estimator) Update(z []float64, r *mat.SymDense, m MeasurementModel) (*UpdateResult, error) {
	const component = "ekf.Update"
	d := m.Dim()

	if len(z) != d {
		return nil, usverr.New(usverr.InvalidArgument, component,
			"measurement dimension mismatch with model "+m.Name())
	}
	if r.SymmetricDim() != d {
		return nil, usverr.New(usverr.InvalidArgument, component,
			"R dimension mismatch with model "+m.Name())
	}

	zHat := m.Predict(e.x)
	h := m.Jacobian(e.x)
	if rows, cols := h.Dims(); rows != d || cols != state.Dim {
		return nil, usverr.New(usverr.InvalidArgument, component, "H shape mismatch")
	}
	y := m.Residual(z, zHat)

	var hp mat.Dense
	hp.Mul(h, e.p)
	var hpht mat.Dense
	hpht.Mul(&hp, h.T())

	var s mat.Dense
	s.Add(&hpht, r)

	// Solve S K^T = H P^T (P symmetric, so P^T = P) for K^T directly,
	// rather than inverting S explicitly.
	var kt mat.Dense
	if err := kt.Solve(&s, &hp); err != nil {
		return nil, usverr.Wrap(err, usverr.NumericError, component, "innovation covariance S is singular")
	}
	var k mat.Dense
	k.CloneFrom(kt.T())

	yVec := mat.NewVecDense(d, y)
	var correction mat.VecDense
	correction.MulVec(&k, yVec)

	nextX := e.x
	for i := 0; i < state.Dim; i++ {
		nextX[i] += correction.AtVec(i)
	}
	nextX = nextX.WrapHeading()
	if err := nextX.Validate(component); err != nil {
		return nil, usverr.Wrap(err, usverr.NumericError, component, "updated state is non-finite")
	}

	ident := mat.NewDense(state.Dim, state.Dim, nil)
	for i := 0; i < state.Dim; i++ {
		ident.Set(i, i, 1)
	}
	var ikh mat.Dense
	ikh.Mul(&k, h)
	var imKH mat.Dense
	imKH.Sub(ident, &ikh)

	var term1 mat.Dense
	term1.Mul(&imKH, e.p)
	var term1b mat.Dense
	term1b.Mul(&term1, imKH.T())

	var kr mat.Dense
	kr.Mul(&k, r)
	var term2 mat.Dense
	term2.Mul(&kr, k.T())

	var nextP mat.Dense
	nextP.Add(&term1b, &term2)

	sym := denseToSym(&nextP, state.Dim)
	if !finiteSym(sym) {
		return nil, usverr.New(usverr.NumericError, component, "updated covariance is non-finite")
	}

	e.x = nextX
	e.p = sym

	return &UpdateResult{Innovation: y, S: &s, K: &k}, nil
}

func symmetrizeSym(m *mat.SymDense) *mat.SymDense {
	n := m.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			out.SetSym(i, j, v)
		}
	}
	return out
}

func denseToSym(d *mat.Dense, n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (d.At(i, j) + d.At(j, i))
			out.SetSym(i, j, v)
		}
	}
	return out
}

func finiteSym(m *mat.SymDense) bool {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
