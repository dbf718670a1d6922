// Package colorutil provides shared colour helpers for drawing overlays.
package colorutil

import (
	"image/color"
	"math"
)

// Overlay colours.
var (
	Black    = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	DarkGray = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// HSVToRGB converts hue in degrees [0, 360) and saturation, value in [0, 1]
// to an opaque RGBA colour.
func HSVToRGB(h, s, v float64) color.RGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{R: to8(r + m), G: to8(g + m), B: to8(b + m), A: 255}
}

func to8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// Palette returns a distinct colour for index i. Golden-angle hue steps keep
// neighbouring indices apart.
func Palette(i int) color.RGBA {
	return HSVToRGB(float64(i)*137.508, 0.85, 1)
}
