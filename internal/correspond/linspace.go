package correspond

import "math"

// Linspace returns steps indices evenly spaced over [0, n-1], each rounded to
// the nearest integer. Indices repeat when steps exceeds n. It returns nil
// when n or steps is not positive.
func Linspace(n, steps int) []int {
	if n <= 0 || steps <= 0 {
		return nil
	}
	out := make([]int, steps)
	if steps == 1 {
		return out
	}
	last := float64(n - 1)
	for i := range out {
		out[i] = int(math.Round(float64(i) * last / float64(steps-1)))
	}
	return out
}
