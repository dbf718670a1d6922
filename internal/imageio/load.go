// Package imageio converts between image files and tensor batches.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"synthcorr/internal/tensor"

	"github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/mat"
)

// Channels is the channel count of decoded images (R, G, B).
const Channels = 3

// pnmOptions lets the decoder pick the narrowest netpbm variant that fits.
var pnmOptions = &netpbm.DecodeOptions{Target: netpbm.PNM}

var netpbmExts = map[string]bool{
	".pbm": true,
	".pgm": true,
	".ppm": true,
	".pnm": true,
	".pam": true,
}

// ErrTooLarge is returned by DecodeBounded for images with a side above the
// limit.
var ErrTooLarge = errors.New("image exceeds the size limit")

func isNetpbm(data []byte) bool {
	return len(data) > 1 && data[0] == 'P' && data[1] >= '1' && data[1] <= '7'
}

// DecodeBounded is Decode for untrusted input. Compressed formats are
// rejected from their header before any pixels are decoded.
func DecodeBounded(r io.Reader, maxSide int) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if !isNetpbm(data) {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err == nil && (cfg.Width > maxSide || cfg.Height > maxSide) {
			return nil, fmt.Errorf("%dx%d, limit %d: %w", cfg.Width, cfg.Height, maxSide, ErrTooLarge)
		}
	}
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() > maxSide || b.Dy() > maxSide {
		return nil, fmt.Errorf("%dx%d, limit %d: %w", b.Dx(), b.Dy(), maxSide, ErrTooLarge)
	}
	return img, nil
}

// Decode reads one image, trying the netpbm family before the registered
// image formats.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if isNetpbm(data) {
		img, err := netpbm.Decode(bytes.NewReader(data), pnmOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to decode netpbm image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// LoadFile decodes the image at path.
func LoadFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	if netpbmExts[strings.ToLower(filepath.Ext(path))] {
		img, err := netpbm.Decode(file, pnmOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return img, nil
	}
	img, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadBatch decodes paths into one batch. Images are resized to h×w; when h
// or w is zero the size of the first image is used.
func LoadBatch(paths []string, h, w int) (tensor.Batch, error) {
	images := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := LoadFile(p)
		if err != nil {
			return tensor.Batch{}, err
		}
		images = append(images, img)
	}
	return FromImages(images, h, w)
}

// FromImages converts decoded images into a batch of h×w RGB tensors with
// values in [0, 1].
func FromImages(images []image.Image, h, w int) (tensor.Batch, error) {
	if len(images) == 0 {
		return tensor.Batch{}, nil
	}
	if h == 0 || w == 0 {
		b := images[0].Bounds()
		h, w = b.Dy(), b.Dx()
	}
	if h <= 0 || w <= 0 {
		return tensor.Batch{}, fmt.Errorf("image size %dx%d: %w", h, w, tensor.ErrEmptySpatial)
	}

	out := make([]tensor.Image, len(images))
	for i, img := range images {
		out[i] = ToTensor(Resize(img, h, w))
	}
	return tensor.NewBatch(out...)
}

// Resize scales img to exactly h×w with bilinear filtering. Images already at
// that size are only converted to RGBA.
func Resize(img image.Image, h, w int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// ToTensor splits an RGBA image into three planes scaled to [0, 1].
func ToTensor(img *image.RGBA) tensor.Image {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	planes := []*mat.Dense{mat.NewDense(h, w, nil), mat.NewDense(h, w, nil), mat.NewDense(h, w, nil)}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			px := img.RGBAAt(b.Min.X+c, b.Min.Y+r)
			planes[0].Set(r, c, float64(px.R)/255)
			planes[1].Set(r, c, float64(px.G)/255)
			planes[2].Set(r, c, float64(px.B)/255)
		}
	}
	return tensor.Image{Planes: planes}
}

// ToImage renders a tensor image. One channel renders as gray, three or more
// as RGB from the first three channels. Values are clamped to [0, 1].
func ToImage(im tensor.Image) *image.RGBA {
	h, w := im.Dims()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			var px color.RGBA
			switch {
			case im.Channels() >= 3:
				px = color.RGBA{R: to8(im.At(0, r, c)), G: to8(im.At(1, r, c)), B: to8(im.At(2, r, c)), A: 255}
			case im.Channels() >= 1:
				v := to8(im.At(0, r, c))
				px = color.RGBA{R: v, G: v, B: v, A: 255}
			}
			out.SetRGBA(c, r, px)
		}
	}
	return out
}

func to8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
