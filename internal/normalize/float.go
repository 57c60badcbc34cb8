package normalize

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// FloatImage holds RGB samples in [0,1], three per pixel.
// Renderers that work in floating point hand these to the normalizer
// directly, which rejects NaN and infinite samples.
type FloatImage struct {
	Pix    []float32
	Stride int
	Rect   image.Rectangle
}

// NewFloatImage allocates a zeroed FloatImage.
func NewFloatImage(r image.Rectangle) *FloatImage {
	return &FloatImage{
		Pix:    make([]float32, 3*r.Dx()*r.Dy()),
		Stride: 3 * r.Dx(),
		Rect:   r,
	}
}

func (p *FloatImage) ColorModel() color.Model { return color.RGBA64Model }

func (p *FloatImage) Bounds() image.Rectangle { return p.Rect }

func (p *FloatImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// SetRGB stores one pixel.
func (p *FloatImage) SetRGB(x, y int, r, g, b float32) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
}

func (p *FloatImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA64{}
	}
	i := p.PixOffset(x, y)
	return color.RGBA64{
		R: toUint16(p.Pix[i]),
		G: toUint16(p.Pix[i+1]),
		B: toUint16(p.Pix[i+2]),
		A: 0xffff,
	}
}

// Validate reports the first non-finite sample.
func (p *FloatImage) Validate() error {
	if len(p.Pix) < 3*p.Rect.Dx()*p.Rect.Dy() {
		return fmt.Errorf("float image: %d samples for %v", len(p.Pix), p.Rect)
	}
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		for x := p.Rect.Min.X; x < p.Rect.Max.X; x++ {
			i := p.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(p.Pix[i+c])
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("non-finite sample %v at (%d,%d)", v, x, y)
				}
			}
		}
	}
	return nil
}

func toUint16(v float32) uint16 {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 0xffff
	default:
		return uint16(math.Round(float64(v) * 0xffff))
	}
}
