//go:build opencv

package augment

import (
	"fmt"
	"image"
	"image/color"

	"synthcorr/internal/tensor"
	"synthcorr/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

func init() {
	defaultWarper = OpenCVWarper{}
}

// OpenCVWarper resamples planes with cv::warpPerspective using
// nearest-neighbour interpolation and a constant Fill border.
type OpenCVWarper struct{}

func (OpenCVWarper) Warp(src tensor.Image, forward geometry.Homography) (tensor.Image, error) {
	h, w := src.Dims()
	if h == 0 || w == 0 {
		return tensor.Image{}, fmt.Errorf("warp: %w", tensor.ErrEmptySpatial)
	}

	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, forward[r*3+c])
		}
	}

	planes := make([]*mat.Dense, len(src.Planes))
	for ch, plane := range src.Planes {
		out, err := warpPlane(plane, m, h, w)
		if err != nil {
			return tensor.Image{}, fmt.Errorf("warp channel %d: %w", ch, err)
		}
		planes[ch] = out
	}
	return tensor.Image{Planes: planes}, nil
}

func warpPlane(plane *mat.Dense, m gocv.Mat, h, w int) (*mat.Dense, error) {
	in := gocv.NewMatWithSize(h, w, gocv.MatTypeCV64F)
	defer in.Close()
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			in.SetDoubleAt(r, c, plane.At(r, c))
		}
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpPerspectiveWithParams(in, &dst, m, image.Point{X: w, Y: h},
		gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{R: 0, G: 0, B: 0, A: 0})
	if dst.Empty() {
		return nil, fmt.Errorf("opencv returned an empty matrix")
	}

	out := mat.NewDense(h, w, nil)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			out.Set(r, c, dst.GetDoubleAt(r, c))
		}
	}
	return out, nil
}
