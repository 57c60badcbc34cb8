package image

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"math"
	"strconv"
	"strings"

	"frameart/internal/domain"
	"frameart/internal/normalize"
)

// SyntheticGenerator paints a deterministic landscape from the prompt text.
// It needs no credentials and is used for local runs and tests.
type SyntheticGenerator struct {
	Width  int
	Height int
}

const (
	syntheticModel         = "synthetic-landscape"
	syntheticDefaultWidth  = 1536
	syntheticDefaultHeight = 1024
)

func NewSyntheticGenerator() *SyntheticGenerator {
	return &SyntheticGenerator{Width: syntheticDefaultWidth, Height: syntheticDefaultHeight}
}

func (s *SyntheticGenerator) Generate(ctx context.Context, req GenerateRequest) (domain.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawImage{}, failure(ProviderSynthetic, err)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return domain.RawImage{}, failure(ProviderSynthetic, fmt.Errorf("prompt is required"))
	}
	width, height := s.Width, s.Height
	if width <= 0 || height <= 0 {
		width, height = syntheticDefaultWidth, syntheticDefaultHeight
	}
	img := renderLandscape(width, height, deterministicSeed(prompt, req.AspectRatio))
	return domain.RawImage{
		Pixels:   img,
		Width:    width,
		Height:   height,
		Provider: ProviderSynthetic,
		Model:    syntheticModel,
	}, nil
}

func (s *SyntheticGenerator) String() string { return syntheticModel }

var _ Generator = (*SyntheticGenerator)(nil)

// renderLandscape draws a sky gradient, a sun and two ridge lines in float
// precision so the normalizer sees smooth ramps.
func renderLandscape(width, height int, seed string) *normalize.FloatImage {
	img := normalize.NewFloatImage(stdimage.Rect(0, 0, width, height))
	top := colorFromSeed(seed, 0)
	horizon := colorFromSeed(seed, 1)
	far := scale(colorFromSeed(seed, 2), 0.55)
	near := scale(colorFromSeed(seed, 3), 0.25)

	sunX := float64(width) * (0.2 + 0.6*fraction(seed, 4))
	sunY := float64(height) * (0.25 + 0.2*fraction(seed, 5))
	sunR := float64(height) * 0.07
	phase := fraction(seed, 6) * 2 * math.Pi

	for y := 0; y < height; y++ {
		t := float64(y) / float64(height-1)
		sky := lerp(top, horizon, t)
		for x := 0; x < width; x++ {
			px := sky
			dx, dy := float64(x)-sunX, float64(y)-sunY
			if d := math.Hypot(dx, dy); d < sunR*3 {
				glow := math.Max(0, 1-d/(sunR*3))
				if d < sunR {
					glow = 1
				}
				px = lerp(px, [3]float64{1, 0.93, 0.78}, glow*glow)
			}
			u := float64(x) / float64(width)
			ridgeFar := float64(height) * (0.62 + 0.06*math.Sin(u*5*math.Pi+phase) + 0.02*math.Sin(u*17*math.Pi))
			ridgeNear := float64(height) * (0.78 + 0.05*math.Sin(u*3*math.Pi-phase) + 0.015*math.Sin(u*23*math.Pi+phase))
			switch {
			case float64(y) >= ridgeNear:
				px = near
			case float64(y) >= ridgeFar:
				px = lerp(far, near, (float64(y)-ridgeFar)/(ridgeNear-ridgeFar+1)*0.4)
			}
			img.SetRGB(x, y, float32(px[0]), float32(px[1]), float32(px[2]))
		}
	}
	return img
}

func lerp(a, b [3]float64, t float64) [3]float64 {
	t = math.Min(1, math.Max(0, t))
	return [3]float64{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

func scale(c [3]float64, f float64) [3]float64 {
	return [3]float64{c[0] * f, c[1] * f, c[2] * f}
}

func colorFromSeed(seed string, shift int) [3]float64 {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return [3]float64{
		float64(parseHexByte(segment[0:2])) / 255,
		float64(parseHexByte(segment[2:4])) / 255,
		float64(parseHexByte(segment[4:6])) / 255,
	}
}

func fraction(seed string, shift int) float64 {
	doubled := seed + seed
	start := (shift * 2) % len(seed)
	return float64(parseHexByte(doubled[start:start+2])) / 255
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:32]
}
