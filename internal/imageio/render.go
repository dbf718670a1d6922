package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"synthcorr/internal/correspond"
	"synthcorr/pkg/colorutil"
	"synthcorr/pkg/geometry"
)

// Palette returns the colour used for match index i.
func Palette(i int) color.RGBA {
	return colorutil.Palette(i)
}

// DrawMarker draws a small cross centred on p, clipped to the image.
func DrawMarker(img *image.RGBA, p geometry.Pixel, col color.RGBA, radius int) {
	b := img.Bounds()
	for d := -radius; d <= radius; d++ {
		for _, pt := range []image.Point{
			{X: b.Min.X + p.Col + d, Y: b.Min.Y + p.Row},
			{X: b.Min.X + p.Col, Y: b.Min.Y + p.Row + d},
		} {
			if pt.In(b) {
				img.SetRGBA(pt.X, pt.Y, col)
			}
		}
	}
}

// DrawMatches marks Source[i] on ref and Destination[i] on aug with the same
// colour.
func DrawMatches(ref, aug *image.RGBA, set correspond.Set) {
	for i := range set.Source {
		col := Palette(i)
		DrawMarker(ref, set.Source[i], col, 2)
		DrawMarker(aug, set.Destination[i], col, 2)
	}
}

// SideBySide places a and b next to each other with a gap of gap pixels.
func SideBySide(a, b image.Image, gap int) *image.RGBA {
	ab, bb := a.Bounds(), b.Bounds()
	h := ab.Dy()
	if bb.Dy() > h {
		h = bb.Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, ab.Dx()+gap+bb.Dx(), h))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: colorutil.DarkGray}, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(0, 0, ab.Dx(), ab.Dy()), a, ab.Min, draw.Src)
	draw.Draw(out, image.Rect(ab.Dx()+gap, 0, ab.Dx()+gap+bb.Dx(), bb.Dy()), b, bb.Min, draw.Src)
	return out
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
