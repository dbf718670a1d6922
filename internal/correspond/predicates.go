package correspond

import "math"

// ValidFunc decides whether a reference-grid location carries provenance.
type ValidFunc func(row, col float64) bool

// MatchFunc decides whether a distance between a source coordinate and a
// rounded destination grid value counts as a match.
type MatchFunc func(dist float64) bool

// ValidSource treats a location as valid when the mean of its two grid
// values is non-zero. Fill pixels are (0, 0), so the genuine pixel (0, 0) is
// indistinguishable from background and is never a source.
func ValidSource(row, col float64) bool {
	return (row+col)/2 != 0
}

// ExactMatch accepts only a zero distance.
func ExactMatch(dist float64) bool {
	return dist == 0
}

// WithinTolerance returns a MatchFunc accepting distances up to tol.
func WithinTolerance(tol float64) MatchFunc {
	return func(dist float64) bool {
		return dist <= tol
	}
}

// Round is the rounding applied to transformed grid values before
// comparison (half to even).
func Round(v float64) float64 {
	return math.RoundToEven(v)
}
