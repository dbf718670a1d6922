// Package augment applies random geometric transforms to multi-channel images.
//
// A Transform is sampled once and applied identically to every channel, so
// coordinate-grid channels stacked onto an image record where each source
// pixel landed.
package augment

import (
	"fmt"
	"math"
	"math/rand"

	"synthcorr/internal/tensor"
	"synthcorr/pkg/geometry"
)

// Transform is one sampled geometric transform.
type Transform struct {
	Kind Kind `json:"kind"`

	// Forward maps source (x = col, y = row) to destination coordinates.
	Forward geometry.Homography `json:"forward"`

	// Affine parameters, zero for other kinds.
	Degrees float64          `json:"degrees"`
	Shift   geometry.Point2D `json:"shift"`

	// Destination of the four image corners for perspective transforms,
	// clockwise from top-left.
	Corners [4]geometry.Point2D `json:"corners"`
}

// Identity returns the transform that leaves every pixel in place.
func Identity() Transform {
	return Transform{Kind: KindIdentity, Forward: geometry.IdentityHomography()}
}

// Fixed wraps a caller-supplied forward homography.
func Fixed(forward geometry.Homography) Transform {
	return Transform{Kind: KindFixed, Forward: forward}
}

// Translate returns a fixed shift by dr rows and dc columns.
func Translate(dr, dc float64) Transform {
	t := Fixed(geometry.Translation(dc, dr).Homography())
	t.Shift = geometry.NewPoint2D(dc, dr)
	return t
}

// Apply warps every image of the batch through t using w.
func (t Transform) Apply(batch tensor.Batch, w Warper) (tensor.Batch, error) {
	if _, err := batch.Shape(); err != nil {
		return tensor.Batch{}, err
	}
	if w == nil {
		w = DefaultWarper()
	}
	out := make([]tensor.Image, batch.Len())
	for i, im := range batch.Images {
		warped, err := w.Warp(im, t.Forward)
		if err != nil {
			return tensor.Batch{}, fmt.Errorf("warp image %d (%s): %w", i, t.Kind, err)
		}
		out[i] = warped
	}
	return tensor.Batch{Images: out}, nil
}

// Sampler draws transforms of one kind for an h×w image.
type Sampler interface {
	Kind() Kind
	Sample(rng *rand.Rand, h, w int) (Transform, error)
}

// AffineSampler draws a rotation about the image centre followed by a
// whole-pixel translation.
type AffineSampler struct {
	MaxDegrees   float64 // angle drawn uniformly from [-MaxDegrees, MaxDegrees]
	MaxTranslate float64 // fraction of each spatial dimension
}

func (AffineSampler) Kind() Kind { return KindAffine }

func (s AffineSampler) Sample(rng *rand.Rand, h, w int) (Transform, error) {
	if h <= 0 || w <= 0 {
		return Transform{}, fmt.Errorf("affine sample %dx%d: %w", h, w, tensor.ErrEmptySpatial)
	}
	deg := uniform(rng, -s.MaxDegrees, s.MaxDegrees)
	maxDX := s.MaxTranslate * float64(w)
	maxDY := s.MaxTranslate * float64(h)
	shift := geometry.NewPoint2D(
		math.RoundToEven(uniform(rng, -maxDX, maxDX)),
		math.RoundToEven(uniform(rng, -maxDY, maxDY)),
	)

	center := geometry.NewPoint2D(float64(w-1)/2, float64(h-1)/2)
	// Positive angles turn counter-clockwise on screen; rows grow downwards.
	rot := geometry.RotationAbout(-deg*math.Pi/180, center)
	fwd := geometry.Translation(shift.X, shift.Y).Compose(rot)

	return Transform{
		Kind:    KindAffine,
		Forward: fwd.Homography(),
		Degrees: deg,
		Shift:   shift,
	}, nil
}

// PerspectiveSampler moves each image corner inwards by a random amount of up
// to DistortionScale times half the image size and warps accordingly.
type PerspectiveSampler struct {
	DistortionScale float64
}

func (PerspectiveSampler) Kind() Kind { return KindPerspective }

func (s PerspectiveSampler) Sample(rng *rand.Rand, h, w int) (Transform, error) {
	if h <= 0 || w <= 0 {
		return Transform{}, fmt.Errorf("perspective sample %dx%d: %w", h, w, tensor.ErrEmptySpatial)
	}
	dx := int(s.DistortionScale * float64(w/2))
	dy := int(s.DistortionScale * float64(h/2))

	start := Corners(h, w)
	if !geometry.Quad(start).Convex() {
		// a single row or column has no area to distort
		return Transform{Kind: KindPerspective, Forward: geometry.IdentityHomography(), Corners: start}, nil
	}
	end := [4]geometry.Point2D{
		{X: float64(randInt(rng, 0, dx+1)), Y: float64(randInt(rng, 0, dy+1))},
		{X: float64(randInt(rng, w-dx-1, w)), Y: float64(randInt(rng, 0, dy+1))},
		{X: float64(randInt(rng, w-dx-1, w)), Y: float64(randInt(rng, h-dy-1, h))},
		{X: float64(randInt(rng, 0, dx+1)), Y: float64(randInt(rng, h-dy-1, h))},
	}

	fwd, err := geometry.HomographyFromCorners(start, end)
	if err != nil {
		return Transform{}, fmt.Errorf("perspective sample: %w", err)
	}
	return Transform{Kind: KindPerspective, Forward: fwd, Corners: end}, nil
}

// Corners returns the pixel centres of the four image corners, clockwise from
// top-left.
func Corners(h, w int) [4]geometry.Point2D {
	return [4]geometry.Point2D{
		{X: 0, Y: 0},
		{X: float64(w - 1), Y: 0},
		{X: float64(w - 1), Y: float64(h - 1)},
		{X: 0, Y: float64(h - 1)},
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// randInt returns an integer in [lo, hi).
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo)
}
