package sampler

import (
	"fmt"
	"math"
)

// gp is a Gaussian-process surrogate with a squared-exponential kernel
// over normalized parameter vectors. Fitted once per proposal; the
// observation counts involved stay small enough that a dense Cholesky
// factorization per fit is cheap.
type gp struct {
	x           [][]float64
	lengthScale float64
	noise       float64
	chol        [][]float64 // lower-triangular factor of K + noise*I
	alpha       []float64   // (K + noise*I)^-1 y
}

func fitGP(x [][]float64, y []float64, lengthScale, noise float64) (*gp, error) {
	n := len(x)
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			v := sqExpKernel(x[i], x[j], lengthScale)
			k[i][j] = v
			k[j][i] = v
		}
		k[i][i] += noise
	}

	chol, err := cholesky(k)
	if err != nil {
		return nil, err
	}

	alpha := cholSolve(chol, y)
	return &gp{x: x, lengthScale: lengthScale, noise: noise, chol: chol, alpha: alpha}, nil
}

// predict returns the posterior mean and variance at point p.
func (g *gp) predict(p []float64) (mean, variance float64) {
	n := len(g.x)
	kv := make([]float64, n)
	for i := range g.x {
		kv[i] = sqExpKernel(p, g.x[i], g.lengthScale)
	}

	for i := range kv {
		mean += kv[i] * g.alpha[i]
	}

	v := forwardSolve(g.chol, kv)
	variance = sqExpKernel(p, p, g.lengthScale) + g.noise
	for i := range v {
		variance -= v[i] * v[i]
	}
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mean, variance
}

func sqExpKernel(a, b []float64, lengthScale float64) float64 {
	var d2 float64
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-d2 / (2 * lengthScale * lengthScale))
}

// cholesky computes the lower-triangular factor L with A = L L^T.
func cholesky(a [][]float64) ([][]float64, error) {
	n := len(a)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, fmt.Errorf("kernel matrix not positive definite at %d", i)
				}
				l[i][j] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l, nil
}

// forwardSolve solves L v = b for v.
func forwardSolve(l [][]float64, b []float64) []float64 {
	n := len(b)
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= l[i][k] * v[k]
		}
		v[i] = sum / l[i][i]
	}
	return v
}

// cholSolve solves (L L^T) x = b via forward then backward substitution.
func cholSolve(l [][]float64, b []float64) []float64 {
	n := len(b)
	v := forwardSolve(l, b)
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := v[i]
		for k := i + 1; k < n; k++ {
			sum -= l[k][i] * x[k]
		}
		x[i] = sum / l[i][i]
	}
	return x
}

// expectedImprovement scores a candidate under the current best
// observed value (both in maximize orientation).
func expectedImprovement(mean, variance, best, xi float64) float64 {
	sigma := math.Sqrt(variance)
	if sigma < 1e-12 {
		return 0
	}
	z := (mean - best - xi) / sigma
	return (mean-best-xi)*stdNormCDF(z) + sigma*stdNormPDF(z)
}

func stdNormCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func stdNormPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}
