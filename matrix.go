package vigil

import "math"

// tikhonovEpsilon is the diagonal regularization added to covariance
// matrices before inversion.
const tikhonovEpsilon = 1e-6

// covarianceMatrix computes the sample covariance matrix (divisor n-1) of
// row-major observations. Each row is one observation of dim features.
func covarianceMatrix(rows [][]float64, means []float64) [][]float64 {
	n := len(rows)
	dim := len(means)
	cov := make([][]float64, dim)
	for i := range cov {
		cov[i] = make([]float64, dim)
	}
	if n < 2 {
		return cov
	}
	for _, row := range rows {
		for i := 0; i < dim; i++ {
			di := row[i] - means[i]
			for j := i; j < dim; j++ {
				cov[i][j] += di * (row[j] - means[j])
			}
		}
	}
	inv := 1.0 / float64(n-1)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			cov[i][j] *= inv
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

// regularize adds epsilon to the diagonal in place and returns the matrix.
func regularize(m [][]float64, epsilon float64) [][]float64 {
	for i := range m {
		m[i][i] += epsilon
	}
	return m
}

// invertMatrix inverts a square matrix. It first attempts the Moore-Penrose
// pseudo-inverse through the normal equations; when that degenerates it
// falls back to Gauss-Jordan with partial pivoting and a diagonal bump on
// near-singular pivots. The result never contains NaN or Inf.
func invertMatrix(m [][]float64) [][]float64 {
	if inv, ok := pseudoInverse(m); ok {
		return inv
	}
	return gaussJordanInverse(m)
}

// pseudoInverse computes (AᵀA + εI)⁻¹Aᵀ, which for a symmetric
// positive-semidefinite A approximates the Moore-Penrose pseudo-inverse.
func pseudoInverse(a [][]float64) ([][]float64, bool) {
	n := len(a)
	if n == 0 {
		return nil, false
	}

	// AᵀA; A is symmetric here so this is A².
	ata := make([][]float64, n)
	for i := range ata {
		ata[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += a[k][i] * a[k][j]
			}
			ata[i][j] = sum
		}
	}
	regularize(ata, tikhonovEpsilon)

	inv, ok := gaussJordanStrict(ata)
	if !ok {
		return nil, false
	}

	// (AᵀA + εI)⁻¹ Aᵀ
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += inv[i][k] * a[j][k]
			}
			out[i][j] = sum
		}
	}
	if !matrixFinite(out) {
		return nil, false
	}
	return out, true
}

// gaussJordanStrict inverts via Gauss-Jordan with partial pivoting and
// fails on a near-singular pivot.
func gaussJordanStrict(m [][]float64) ([][]float64, bool) {
	return gaussJordan(m, false)
}

// gaussJordanInverse inverts via Gauss-Jordan with partial pivoting,
// bumping near-singular pivots so the inversion always completes.
func gaussJordanInverse(m [][]float64) [][]float64 {
	inv, _ := gaussJordan(m, true)
	return inv
}

func gaussJordan(m [][]float64, bumpPivots bool) ([][]float64, bool) {
	n := len(m)
	const pivotFloor = 1e-12

	// Augment [m | I] in a working copy.
	work := make([][]float64, n)
	for i := range work {
		work[i] = make([]float64, 2*n)
		copy(work[i], m[i])
		work[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		// Partial pivoting: pick the row with the largest magnitude.
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(work[r][col]) > math.Abs(work[pivot][col]) {
				pivot = r
			}
		}
		work[col], work[pivot] = work[pivot], work[col]

		p := work[col][col]
		if math.Abs(p) < pivotFloor {
			if !bumpPivots {
				return nil, false
			}
			p += tikhonovEpsilon
			if p == 0 {
				p = tikhonovEpsilon
			}
			work[col][col] = p
		}

		invP := 1.0 / p
		for j := 0; j < 2*n; j++ {
			work[col][j] *= invP
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := work[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*n; j++ {
				work[r][j] -= factor * work[col][j]
			}
		}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		copy(out[i], work[i][n:])
		for j := range out[i] {
			if math.IsNaN(out[i][j]) || math.IsInf(out[i][j], 0) {
				out[i][j] = 0
			}
		}
	}
	return out, true
}

func matrixFinite(m [][]float64) bool {
	for _, row := range m {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// mahalanobis computes D = sqrt(max(0, (x-mu)ᵀ Σ⁻¹ (x-mu))).
func mahalanobis(x, mu []float64, invCov [][]float64) float64 {
	dim := len(x)
	diff := make([]float64, dim)
	for i := range diff {
		diff[i] = x[i] - mu[i]
	}
	d2 := 0.0
	for i := 0; i < dim; i++ {
		s := 0.0
		for j := 0; j < dim; j++ {
			s += invCov[i][j] * diff[j]
		}
		d2 += diff[i] * s
	}
	if d2 < 0 || math.IsNaN(d2) {
		d2 = 0
	}
	return math.Sqrt(d2)
}
