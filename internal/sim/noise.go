package sim

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Generator is the seeded random-number capability the simulator accepts
// for process-noise injection (design note 9: "a seeded generator object
// with a normal(mu, sigma, n) capability"). The simulator itself stays
// deterministic given a Generator constructed from a fixed seed.
type Generator interface {
	// Normal draws n samples from N(mu, sigma^2).
	Normal(mu, sigma float64, n int) []float64
}

// GaussianGenerator is a Generator backed by gonum's distuv.Normal over a
// seeded PRNG source, so identical seeds reproduce identical sequences.
type GaussianGenerator struct {
	src *rand.Rand
}

// NewGaussianGenerator constructs a Generator seeded deterministically.
func NewGaussianGenerator(seed uint64) *GaussianGenerator {
	return &GaussianGenerator{src: rand.New(rand.NewSource(seed))}
}

// Normal draws n independent samples from N(mu, sigma^2).
func (g *GaussianGenerator) Normal(mu, sigma float64, n int) []float64 {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: g.src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}
