package weightinit

// solveLinearSystem solves a*x = b for a small dense system using Gaussian
// elimination with partial pivoting. It reports ok=false (instead of
// returning a garbage answer) when a pivot becomes too small relative to the
// matrix scale, which the initializers that call this use to trigger their
// documented fallback behavior (fall back if the system is
// numerically singular").
func solveLinearSystem(a [][]float64, b []float64) (x []float64, ok bool) {
	n := len(a)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, n+1)
		copy(aug[i], a[i])
		aug[i][n] = b[i]
	}

	var scale float64
	for i := range a {
		for _, v := range a[i] {
			if v < 0 {
				v = -v
			}
			if v > scale {
				scale = v
			}
		}
	}
	if scale == 0 {
		scale = 1
	}
	const relTol = 1e-9

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if absf(aug[r][col]) > absf(aug[pivot][col]) {
				pivot = r
			}
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		if absf(aug[col][col]) < relTol*scale {
			return nil, false
		}
		pv := aug[col][col]
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col] / pv
			if factor == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}
	x = make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = aug[i][n] / aug[i][i]
	}
	return x, true
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
