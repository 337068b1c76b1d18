package analysis

import "math"

// DTWDistance calculates the Dynamic Time Warping distance between two traces.
// Returns infinity if either trace is empty.
// The distance is normalized by the longer trace length.
func DTWDistance(a, b []float64) float64 {
	n := len(a)
	m := len(b)

	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// (n+1) x (m+1) cost matrix initialized to infinity
	dtw := make([][]float64, n+1)
	for i := range dtw {
		dtw[i] = make([]float64, m+1)
		for j := range dtw[i] {
			dtw[i][j] = math.Inf(1)
		}
	}
	dtw[0][0] = 0

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := math.Abs(a[i-1] - b[j-1])
			dtw[i][j] = cost + min(dtw[i-1][j], dtw[i][j-1], dtw[i-1][j-1])
		}
	}

	return dtw[n][m] / float64(max(n, m))
}

// normalizeTrace maps joint angles onto [0,1] by the full 180 degree range, so
// reps with a shorter range of motion stay distinguishable.
func normalizeTrace(angles []float64) []float64 {
	out := make([]float64, len(angles))
	for i, a := range angles {
		out[i] = a / 180
	}
	return out
}
