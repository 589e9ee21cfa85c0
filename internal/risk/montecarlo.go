package risk

import (
	"errors"
	"math"
	"math/rand"
)

var errNotPositiveDefinite = errors.New("risk: covariance matrix is not positive definite")

// covariance returns the column means and sample covariance of rows.
func covariance(rows [][]float64) (mean []float64, cov [][]float64) {
	if len(rows) == 0 {
		return nil, nil
	}
	k := len(rows[0])
	mean = make([]float64, k)
	for _, row := range rows {
		for i, v := range row {
			mean[i] += v
		}
	}
	n := float64(len(rows))
	for i := range mean {
		mean[i] /= n
	}

	cov = make([][]float64, k)
	for i := range cov {
		cov[i] = make([]float64, k)
	}
	if len(rows) < 2 {
		return mean, cov
	}
	for _, row := range rows {
		for i := 0; i < k; i++ {
			di := row[i] - mean[i]
			for j := i; j < k; j++ {
				cov[i][j] += di * (row[j] - mean[j])
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cov[i][j] /= n - 1
			cov[j][i] = cov[i][j]
		}
	}
	return mean, cov
}

// cholesky factors a symmetric positive definite matrix a into the lower
// triangular L with L·Lᵀ = a.
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
					return nil, errNotPositiveDefinite
				}
				l[i][i] = math.Sqrt(sum)
				continue
			}
			l[i][j] = sum / l[j][j]
		}
	}
	return l, nil
}

// diagonal is the fallback factor when cholesky fails: correlations are
// dropped and each product keeps its own standard deviation.
func diagonal(cov [][]float64) [][]float64 {
	l := make([][]float64, len(cov))
	for i := range cov {
		l[i] = make([]float64, len(cov))
		l[i][i] = math.Sqrt(math.Max(cov[i][i], 0))
	}
	return l
}

// simulate draws correlated one-day returns x = μ + L·z, one row per draw.
func simulate(mean []float64, l [][]float64, sims int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	k := len(mean)
	z := make([]float64, k)
	out := make([][]float64, sims)
	for s := 0; s < sims; s++ {
		for i := range z {
			z[i] = rng.NormFloat64()
		}
		x := make([]float64, k)
		for i := 0; i < k; i++ {
			x[i] = mean[i]
			for j := 0; j <= i; j++ {
				x[i] += l[i][j] * z[j]
			}
		}
		out[s] = x
	}
	return out
}
