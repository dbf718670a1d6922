// Package correspond recovers pixel correspondences by comparing a reference
// coordinate grid with its geometrically transformed copy.
package correspond

import (
	"errors"
	"fmt"
	"math"

	"synthcorr/internal/grid"
	"synthcorr/internal/tensor"
	"synthcorr/pkg/geometry"

	"golang.org/x/sync/errgroup"
)

// DefaultOversample is the number of source candidates examined per
// requested correspondence.
const DefaultOversample = 5

// MaxCandidates bounds Oversample*K, the number of source pixels compared
// against the whole transformed grid.
const MaxCandidates = 1 << 22

// ErrTooManyCandidates is returned when Oversample*K exceeds MaxCandidates.
var ErrTooManyCandidates = errors.New("too many correspondence candidates")

// Matcher extracts K correspondences per image pair.
type Matcher struct {
	K          int
	Oversample int

	IsValid ValidFunc
	IsMatch MatchFunc

	// Workers bounds the number of images matched concurrently; values
	// below 2 match sequentially.
	Workers int
}

// NewMatcher returns a Matcher with the exact-match predicates.
func NewMatcher(k int) *Matcher {
	return &Matcher{
		K:          k,
		Oversample: DefaultOversample,
		IsValid:    ValidSource,
		IsMatch:    ExactMatch,
	}
}

// Match compares reference grid a with transformed grid b (both 2×H×W).
// Degenerate inputs yield an empty Set with Reason set, never an error.
func (m *Matcher) Match(a, b tensor.Image) (Set, error) {
	if err := checkGrids(a, b); err != nil {
		return Set{}, err
	}
	if m.K < 1 {
		return Set{}, fmt.Errorf("correspondence count must be positive, got %d", m.K)
	}
	isValid, isMatch := m.IsValid, m.IsMatch
	if isValid == nil {
		isValid = ValidSource
	}
	if isMatch == nil {
		isMatch = ExactMatch
	}
	over := m.Oversample
	if over < 1 {
		over = DefaultOversample
	}
	if m.K > MaxCandidates/over {
		return Set{}, fmt.Errorf("%w: %d x %d exceeds %d", ErrTooManyCandidates, over, m.K, MaxCandidates)
	}

	h, w := a.Dims()

	var valid []geometry.Pixel
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if isValid(a.At(0, r, c), a.At(1, r, c)) {
				valid = append(valid, geometry.Pixel{Row: r, Col: c})
			}
		}
	}
	if len(valid) == 0 {
		return Set{Reason: ReasonNoValidPixels}, nil
	}

	// Round the transformed grid once.
	rows := make([]float64, h*w)
	cols := make([]float64, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			rows[r*w+c] = Round(b.At(0, r, c))
			cols[r*w+c] = Round(b.At(1, r, c))
		}
	}

	var src, dst []geometry.Pixel
	for _, idx := range Linspace(len(valid), over*m.K) {
		s := valid[idx]
		u, v := float64(s.Row), float64(s.Col)
		for i := range rows {
			if isMatch(math.Hypot(rows[i]-u, cols[i]-v)) {
				src = append(src, s)
				dst = append(dst, geometry.Pixel{Row: i / w, Col: i % w})
			}
		}
	}

	set := Set{Candidates: len(valid), Matches: len(src)}
	if len(src) == 0 {
		set.Reason = ReasonNoMatches
		return set, nil
	}

	keep := Linspace(len(src), m.K)
	set.Source = make([]geometry.Pixel, len(keep))
	set.Destination = make([]geometry.Pixel, len(keep))
	for i, j := range keep {
		set.Source[i] = src[j]
		set.Destination[i] = dst[j]
	}
	return set, nil
}

// MatchBatch matches every image pair independently.
func (m *Matcher) MatchBatch(a, b tensor.Batch) ([]Set, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("%w: %d reference grids, %d transformed grids", tensor.ErrShapeMismatch, a.Len(), b.Len())
	}
	sets := make([]Set, a.Len())

	if m.Workers < 2 {
		for i := range sets {
			s, err := m.Match(a.Images[i], b.Images[i])
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			sets[i] = s
		}
		return sets, nil
	}

	var g errgroup.Group
	g.SetLimit(m.Workers)
	for i := range sets {
		i := i
		g.Go(func() error {
			s, err := m.Match(a.Images[i], b.Images[i])
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			sets[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

func checkGrids(a, b tensor.Image) error {
	if a.Channels() != grid.Channels || b.Channels() != grid.Channels {
		return fmt.Errorf("%w: grids need %d channels, got %d and %d",
			tensor.ErrChannelCount, grid.Channels, a.Channels(), b.Channels())
	}
	ah, aw := a.Dims()
	bh, bw := b.Dims()
	if ah == 0 || aw == 0 {
		return fmt.Errorf("match: %w", tensor.ErrEmptySpatial)
	}
	if ah != bh || aw != bw {
		return fmt.Errorf("%w: grids are %dx%d and %dx%d", tensor.ErrShapeMismatch, ah, aw, bh, bw)
	}
	return nil
}
