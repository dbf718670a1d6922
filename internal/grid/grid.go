// Package grid appends pixel-coordinate channels to images and splits them off
// again, so a geometric transform applied to the stacked tensor can be traced
// back to source pixels.
package grid

import (
	"fmt"

	"synthcorr/internal/tensor"

	"gonum.org/v1/gonum/mat"
)

// Channels is the number of coordinate channels appended by Encode.
const Channels = 2

// Coordinates returns a 2×H×W grid: channel 0 holds the row index and
// channel 1 the column index of every pixel.
func Coordinates(h, w int) (tensor.Image, error) {
	if h <= 0 || w <= 0 {
		return tensor.Image{}, fmt.Errorf("coordinate grid %dx%d: %w", h, w, tensor.ErrEmptySpatial)
	}
	rows := mat.NewDense(h, w, nil)
	cols := mat.NewDense(h, w, nil)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			rows.Set(r, c, float64(r))
			cols.Set(r, c, float64(c))
		}
	}
	return tensor.Image{Planes: []*mat.Dense{rows, cols}}, nil
}

// Encode appends the same coordinate grid to every image of the batch,
// producing N×(C+2)×H×W.
func Encode(batch tensor.Batch) (tensor.Batch, error) {
	s, err := batch.Shape()
	if err != nil {
		return tensor.Batch{}, fmt.Errorf("encode: %w", err)
	}
	if s.N == 0 {
		return tensor.Batch{}, nil
	}

	coords, err := Coordinates(s.H, s.W)
	if err != nil {
		return tensor.Batch{}, fmt.Errorf("encode: %w", err)
	}

	out := make([]tensor.Image, s.N)
	for i, im := range batch.Images {
		out[i] = im.Concat(coords)
	}
	return tensor.Batch{Images: out}, nil
}

// Decode splits an augmented batch into its first imageChannels channels and
// the trailing coordinate grid. Both results are independent copies.
func Decode(augmented tensor.Batch, imageChannels int) (images, grids tensor.Batch, err error) {
	s, err := augmented.Shape()
	if err != nil {
		return tensor.Batch{}, tensor.Batch{}, fmt.Errorf("decode: %w", err)
	}
	if s.N == 0 {
		return tensor.Batch{}, tensor.Batch{}, nil
	}
	if imageChannels < 0 || s.C < imageChannels+Channels {
		return tensor.Batch{}, tensor.Batch{}, fmt.Errorf("decode: %w: have %d, need %d image + %d grid",
			tensor.ErrChannelCount, s.C, imageChannels, Channels)
	}

	images.Images = make([]tensor.Image, s.N)
	grids.Images = make([]tensor.Image, s.N)
	for i, im := range augmented.Images {
		images.Images[i] = im.Slice(0, imageChannels)
		grids.Images[i] = im.Slice(s.C-Channels, s.C)
	}
	return images, grids, nil
}
