package ekf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/danielflataker/usv-autopilot/internal/model"
	"github.com/danielflataker/usv-autopilot/internal/state"
)

func diagSym(n int, v float64) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}

func symmetryNorm(m *mat.SymDense) float64 {
	n := m.SymmetricDim()
	maxDiff := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := math.Abs(m.At(i, j) - m.At(j, i))
			if d > maxDiff {
				maxDiff = d
			}
		}
	}
	return maxDiff
}

// TestUpdate_GNSSPull reproduces the GNSS-pull scenario from the
// testable properties: P0 = diag(100,100,1,1,1,1), x0 = 0; a single
// update with z=(10,-5), R=diag(0.1,0.1) should gain close to
// 100/(100+0.1) toward the measurement.
func TestUpdate_GNSSPull(t *testing.T) {
	theta, _ := model.NewParams(2.0, 0.8, 0.8, 1.2)
	p0 := mat.NewSymDense(state.Dim, nil)
	diag := []float64{100, 100, 1, 1, 1, 1}
	for i, v := range diag {
		p0.SetSym(i, i, v)
	}
	q := diagSym(state.Dim, 1e-4)
	est := New(state.Vector{}, p0, theta, q)

	r := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1})
	_, err := est.Update([]float64{10, -5}, r, GNSSXY{})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got := est.State()
	wantX, wantY := 9.99000999, -4.99500500
	if math.Abs(got[state.X]-wantX) > 1e-6 {
		t.Errorf("x[X] = %v, want %v", got[state.X], wantX)
	}
	if math.Abs(got[state.Y]-wantY) > 1e-6 {
		t.Errorf("x[Y] = %v, want %v", got[state.Y], wantY)
	}
}

// TestUpdate_GyroTiesRAndBias reproduces the gyro-tie scenario: P0 = I,
// z_r = 0.4, R_r = 1e-4 should leave x[R]+x[BG] ~= 0.4 to 4 decimals.
func TestUpdate_GyroTiesRAndBias(t *testing.T) {
	theta, _ := model.NewParams(2.0, 0.8, 0.8, 1.2)
	p0 := diagSym(state.Dim, 1.0)
	q := diagSym(state.Dim, 1e-4)
	est := New(state.Vector{}, p0, theta, q)

	r := mat.NewSymDense(1, []float64{1e-4})
	_, err := est.Update([]float64{0.4}, r, GyroR{})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got := est.State()
	sum := got[state.R] + got[state.BG]
	if math.Abs(sum-0.4) > 1e-4 {
		t.Errorf("x[R]+x[BG] = %v, want ~0.4", sum)
	}
}

func TestHeadingResidual_WrapsShortWay(t *testing.T) {
	z := -math.Pi + 0.05
	zHat := math.Pi - 0.05
	got := ResidualHeading(z, zHat)
	if math.Abs(got-0.1) > 1e-9 {
		t.Errorf("ResidualHeading = %v, want 0.1", got)
	}
}

func TestPredict_CovarianceStaysSymmetric(t *testing.T) {
	theta, _ := model.NewParams(2.0, 0.8, 0.8, 1.2)
	p0 := diagSym(state.Dim, 1.0)
	q := diagSym(state.Dim, 1e-3)
	est := New(state.New(0, 0, 0.3, 1.0, 0.1, 0), p0, theta, q)

	if err := est.Predict(state.NewInput(0.2, -0.1), 0.1); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if d := symmetryNorm(est.Covariance()); d > 1e-12 {
		t.Errorf("||P - P^T||_inf = %v, want < 1e-12", d)
	}
}

func TestUpdate_CovarianceStaysSymmetric(t *testing.T) {
	theta, _ := model.NewParams(2.0, 0.8, 0.8, 1.2)
	p0 := diagSym(state.Dim, 2.0)
	q := diagSym(state.Dim, 1e-3)
	est := New(state.New(1, 1, 0.1, 1, 0, 0), p0, theta, q)

	r := mat.NewSymDense(2, []float64{0.5, 0, 0, 0.5})
	if _, err := est.Update([]float64{1.2, 0.8}, r, GNSSXY{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if d := symmetryNorm(est.Covariance()); d > 1e-12 {
		t.Errorf("||P - P^T||_inf = %v, want < 1e-12", d)
	}
}

func TestUpdate_DimensionMismatchLeavesStateUnchanged(t *testing.T) {
	theta, _ := model.NewParams(2.0, 0.8, 0.8, 1.2)
	p0 := diagSym(state.Dim, 1.0)
	q := diagSym(state.Dim, 1e-4)
	x0 := state.New(3, 4, 0.2, 1, 0, 0)
	est := New(x0, p0, theta, q)

	r := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	if _, err := est.Update([]float64{1, 2, 3}, r, GNSSXY{}); err == nil {
		t.Fatal("expected dimension-mismatch error")
	}

	if est.State() != x0 {
		t.Errorf("state changed after failed update: got %v, want %v", est.State(), x0)
	}
}

func TestUpdate_MagPsiUsesAngleResidual(t *testing.T) {
	theta, _ := model.NewParams(2.0, 0.8, 0.8, 1.2)
	p0 := diagSym(state.Dim, 1.0)
	q := diagSym(state.Dim, 1e-4)
	est := New(state.New(0, 0, math.Pi-0.01, 0, 0, 0), p0, theta, q)

	r := mat.NewSymDense(1, []float64{0.01})
	result, err := est.Update([]float64{-math.Pi + 0.01}, r, MagPsi{})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	// The true innovation should be small (~0.02), not ~2*pi.
	if math.Abs(result.Innovation[0]) > 0.1 {
		t.Errorf("innovation = %v, want small angle-wrapped residual", result.Innovation[0])
	}
}
