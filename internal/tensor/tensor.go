// Package tensor holds N×C×H×W image batches as per-channel gonum matrices.
package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptySpatial is returned when H or W is zero.
	ErrEmptySpatial = errors.New("spatial dimensions must be non-zero")
	// ErrChannelCount is returned when an image has too few channels.
	ErrChannelCount = errors.New("not enough channels")
	// ErrShapeMismatch is returned when images in a batch disagree on shape.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Shape describes a batch as N×C×H×W.
type Shape struct {
	N, C, H, W int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", s.N, s.C, s.H, s.W)
}

// Image is one C×H×W image. Each plane has H rows and W columns.
type Image struct {
	Planes []*mat.Dense
}

// NewImage allocates a zero-valued image.
func NewImage(c, h, w int) (Image, error) {
	if h <= 0 || w <= 0 {
		return Image{}, fmt.Errorf("%w: got %dx%d", ErrEmptySpatial, h, w)
	}
	planes := make([]*mat.Dense, c)
	for i := range planes {
		planes[i] = mat.NewDense(h, w, nil)
	}
	return Image{Planes: planes}, nil
}

// Channels returns the number of channels.
func (im Image) Channels() int {
	return len(im.Planes)
}

// Dims returns the spatial size (rows, columns).
func (im Image) Dims() (h, w int) {
	if len(im.Planes) == 0 {
		return 0, 0
	}
	return im.Planes[0].Dims()
}

// At returns the value of channel ch at (row, col).
func (im Image) At(ch, row, col int) float64 {
	return im.Planes[ch].At(row, col)
}

// Clone returns a deep copy.
func (im Image) Clone() Image {
	planes := make([]*mat.Dense, len(im.Planes))
	for i, p := range im.Planes {
		planes[i] = mat.DenseCopyOf(p)
	}
	return Image{Planes: planes}
}

// Slice returns a deep copy of channels [from, to).
func (im Image) Slice(from, to int) Image {
	return Image{Planes: cloneAll(im.Planes[from:to])}
}

// Concat returns a deep copy holding the channels of im followed by those of other.
func (im Image) Concat(other Image) Image {
	planes := make([]*mat.Dense, 0, len(im.Planes)+len(other.Planes))
	planes = append(planes, cloneAll(im.Planes)...)
	planes = append(planes, cloneAll(other.Planes)...)
	return Image{Planes: planes}
}

func cloneAll(src []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(src))
	for i, p := range src {
		out[i] = mat.DenseCopyOf(p)
	}
	return out
}

// Batch is an ordered collection of images sharing C, H and W.
type Batch struct {
	Images []Image
}

// NewBatch validates that all images share a shape and wraps them.
func NewBatch(images ...Image) (Batch, error) {
	b := Batch{Images: images}
	if _, err := b.Shape(); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Len returns N.
func (b Batch) Len() int {
	return len(b.Images)
}

// Shape validates the batch and returns its shape.
func (b Batch) Shape() (Shape, error) {
	if len(b.Images) == 0 {
		return Shape{}, nil
	}
	first := b.Images[0]
	h, w := first.Dims()
	if h == 0 || w == 0 {
		return Shape{}, fmt.Errorf("%w: image 0 is %dx%d", ErrEmptySpatial, h, w)
	}
	s := Shape{N: len(b.Images), C: first.Channels(), H: h, W: w}
	for i, im := range b.Images {
		if im.Channels() != s.C {
			return Shape{}, fmt.Errorf("%w: image %d has %d channels, want %d", ErrShapeMismatch, i, im.Channels(), s.C)
		}
		for ch, p := range im.Planes {
			ph, pw := p.Dims()
			if ph != s.H || pw != s.W {
				return Shape{}, fmt.Errorf("%w: image %d channel %d is %dx%d, want %dx%d",
					ErrShapeMismatch, i, ch, ph, pw, s.H, s.W)
			}
		}
	}
	return s, nil
}

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	images := make([]Image, len(b.Images))
	for i, im := range b.Images {
		images[i] = im.Clone()
	}
	return Batch{Images: images}
}

// FromFlat builds a batch from row-major N×C×H×W data.
func FromFlat(data []float64, s Shape) (Batch, error) {
	if s.H <= 0 || s.W <= 0 {
		return Batch{}, fmt.Errorf("%w: got %dx%d", ErrEmptySpatial, s.H, s.W)
	}
	if want := s.N * s.C * s.H * s.W; len(data) != want {
		return Batch{}, fmt.Errorf("%w: data length %d, want %d for %s", ErrShapeMismatch, len(data), want, s)
	}

	plane := s.H * s.W
	images := make([]Image, s.N)
	for n := range images {
		planes := make([]*mat.Dense, s.C)
		for c := range planes {
			off := (n*s.C + c) * plane
			buf := make([]float64, plane)
			copy(buf, data[off:off+plane])
			planes[c] = mat.NewDense(s.H, s.W, buf)
		}
		images[n] = Image{Planes: planes}
	}
	return Batch{Images: images}, nil
}

// Flat returns the batch as row-major N×C×H×W data.
func (b Batch) Flat() ([]float64, Shape, error) {
	s, err := b.Shape()
	if err != nil {
		return nil, Shape{}, err
	}
	out := make([]float64, 0, s.N*s.C*s.H*s.W)
	for _, im := range b.Images {
		for _, p := range im.Planes {
			for r := 0; r < s.H; r++ {
				out = append(out, p.RawRowView(r)...)
			}
		}
	}
	return out, s, nil
}
