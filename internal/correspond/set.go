package correspond

import (
	"errors"
	"fmt"

	"synthcorr/pkg/geometry"

	"github.com/emirpasic/gods/sets/hashset"
)

// ErrIncompleteSet is returned by Stack when a set does not hold exactly k pairs.
var ErrIncompleteSet = errors.New("correspondence set is incomplete")

// Reason explains why a Set is empty.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoValidPixels
	ReasonNoMatches
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoValidPixels:
		return "no_valid_pixels"
	case ReasonNoMatches:
		return "no_matches"
	default:
		return "unknown"
	}
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*r = ReasonNone
	case "no_valid_pixels":
		*r = ReasonNoValidPixels
	case "no_matches":
		*r = ReasonNoMatches
	default:
		return fmt.Errorf("unknown reason %q", text)
	}
	return nil
}

// Set holds index-aligned correspondences for one image: Destination[i] is
// where the pixel at Source[i] landed.
type Set struct {
	Source      []geometry.Pixel `json:"source" cbor:"source"`
	Destination []geometry.Pixel `json:"destination" cbor:"destination"`

	// Reason is set when the set is empty.
	Reason Reason `json:"reason" cbor:"reason"`

	// Candidates is the number of valid source pixels, Matches the number of
	// exact matches found before the final subsampling.
	Candidates int `json:"candidates" cbor:"candidates"`
	Matches    int `json:"matches" cbor:"matches"`
}

// Len returns the number of pairs.
func (s Set) Len() int {
	return len(s.Source)
}

// Empty reports whether the set holds no pairs.
func (s Set) Empty() bool {
	return len(s.Source) == 0
}

type pair struct {
	src, dst geometry.Pixel
}

// Distinct returns the number of unique (source, destination) pairs.
func (s Set) Distinct() int {
	seen := hashset.New()
	for i := range s.Source {
		seen.Add(pair{src: s.Source[i], dst: s.Destination[i]})
	}
	return seen.Size()
}

// FitError fits an affine transform to the pairs and returns the mean
// residual in pixels. It is zero for pure affine augmentations that kept
// every pair intact.
func (s Set) FitError() (float64, error) {
	src := make([]geometry.Point2D, len(s.Source))
	dst := make([]geometry.Point2D, len(s.Destination))
	for i := range s.Source {
		src[i] = s.Source[i].ToPoint()
		dst[i] = s.Destination[i].ToPoint()
	}
	t, err := geometry.FitAffine(src, dst)
	if err != nil {
		return 0, err
	}
	return geometry.AlignmentError(src, dst, t), nil
}

// Stack flattens the sets into two N×k×2 row-major arrays of (row, col).
func Stack(sets []Set, k int) (src, dst []float64, err error) {
	src = make([]float64, 0, len(sets)*k*2)
	dst = make([]float64, 0, len(sets)*k*2)
	for i, s := range sets {
		if s.Len() != k || len(s.Destination) != k {
			return nil, nil, fmt.Errorf("%w: image %d has %d pairs, want %d (%s)", ErrIncompleteSet, i, s.Len(), k, s.Reason)
		}
		for j := 0; j < k; j++ {
			src = append(src, float64(s.Source[j].Row), float64(s.Source[j].Col))
			dst = append(dst, float64(s.Destination[j].Row), float64(s.Destination[j].Col))
		}
	}
	return src, dst, nil
}
