package augment

import (
	"fmt"
	"math"

	"synthcorr/internal/tensor"
	"synthcorr/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// Fill is written to destination pixels that no source pixel maps onto.
// Coordinate grids use it as the "no provenance" marker.
const Fill = 0.0

// Warper resamples all channels of an image through a forward homography.
// The output has the same channel count and spatial size as the input.
type Warper interface {
	Warp(src tensor.Image, forward geometry.Homography) (tensor.Image, error)
}

var defaultWarper Warper = NearestWarper{}

// DefaultWarper returns the warper used when none is configured.
func DefaultWarper() Warper {
	return defaultWarper
}

// NearestWarper maps each destination pixel back through the inverse
// transform and copies the nearest source pixel. Nearest-neighbour sampling
// keeps coordinate-grid values integral.
type NearestWarper struct{}

func (NearestWarper) Warp(src tensor.Image, forward geometry.Homography) (tensor.Image, error) {
	h, w := src.Dims()
	if h == 0 || w == 0 {
		return tensor.Image{}, fmt.Errorf("warp: %w", tensor.ErrEmptySpatial)
	}
	inv, err := forward.Inverse()
	if err != nil {
		return tensor.Image{}, fmt.Errorf("warp: %w", err)
	}

	// Resolve the source location of every destination pixel once; -1 marks fill.
	index := make([]int, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			index[r*w+c] = -1
			p, ok := inv.Apply(geometry.NewPoint2D(float64(c), float64(r)))
			if !ok {
				continue
			}
			sr := math.RoundToEven(p.Y)
			sc := math.RoundToEven(p.X)
			if sr < 0 || sc < 0 || sr > float64(h-1) || sc > float64(w-1) {
				continue
			}
			index[r*w+c] = int(sr)*w + int(sc)
		}
	}

	planes := make([]*mat.Dense, len(src.Planes))
	for ch, plane := range src.Planes {
		in := plane.RawMatrix()
		out := make([]float64, h*w)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				i := index[r*w+c]
				if i < 0 {
					out[r*w+c] = Fill
					continue
				}
				out[r*w+c] = in.Data[(i/w)*in.Stride+i%w]
			}
		}
		planes[ch] = mat.NewDense(h, w, out)
	}
	return tensor.Image{Planes: planes}, nil
}
