package video

import (
	"image"
	"math/rand"
	"time"
)

// Params describes one Ken Burns move. Pan values are fractions of the
// largest possible crop offset on each axis.
type Params struct {
	Seconds   int
	FPS       int
	ZoomStart float64
	ZoomEnd   float64
	PanStart  [2]float64
	PanEnd    [2]float64
}

var durationChoices = []int{15, 20, 25}

const (
	defaultFPS  = 30
	minZoomEnd  = 1.06
	maxZoomEnd  = 1.18
	maxPanStart = 0.25
	minPanEnd   = 0.75
)

// RandomParams draws a gentle zoom-in with a diagonal pan. Half of the moves
// run the pan backwards.
func RandomParams(rng *rand.Rand) Params {
	p := Params{
		Seconds:   durationChoices[rng.Intn(len(durationChoices))],
		FPS:       defaultFPS,
		ZoomStart: 1.0,
		ZoomEnd:   minZoomEnd + rng.Float64()*(maxZoomEnd-minZoomEnd),
		PanStart:  [2]float64{rng.Float64() * maxPanStart, rng.Float64() * maxPanStart},
		PanEnd:    [2]float64{minPanEnd + rng.Float64()*(1-minPanEnd), minPanEnd + rng.Float64()*(1-minPanEnd)},
	}
	if rng.Float64() < 0.5 {
		p.PanStart, p.PanEnd = p.PanEnd, p.PanStart
	}
	return p
}

// Duration is the playback length of the move.
func (p Params) Duration() time.Duration {
	return time.Duration(p.Seconds) * time.Second
}

// FrameCount is the number of frames the move renders.
func (p Params) FrameCount() int {
	return p.Seconds * p.FPS
}

// CropAt returns the source rectangle shown by frame i of a width x height
// base image.
func (p Params) CropAt(i, width, height int) image.Rectangle {
	n := p.FrameCount()
	t := 0.0
	if n > 1 {
		t = float64(i) / float64(n-1)
	}
	scale := p.ZoomStart + (p.ZoomEnd-p.ZoomStart)*t
	if scale < 1 {
		scale = 1
	}
	panX := p.PanStart[0] + (p.PanEnd[0]-p.PanStart[0])*t
	panY := p.PanStart[1] + (p.PanEnd[1]-p.PanStart[1])*t

	cropW := int(float64(width) / scale)
	cropH := int(float64(height) / scale)
	x0 := int(float64(width-cropW) * panX)
	y0 := int(float64(height-cropH) * panY)
	return image.Rect(x0, y0, x0+cropW, y0+cropH)
}
