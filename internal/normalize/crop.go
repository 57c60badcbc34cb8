package normalize

import "image"

// CenterCrop returns the largest rectangle inside bounds with the aspect
// ratio width:height, centered. The excess on the longer axis is split with
// floor division, so an odd excess leaves the extra pixel on the far side.
// A source too thin for the ratio keeps at least one row or column; the
// resampler upscales it. Only an empty bounds yields an empty result.
func CenterCrop(bounds image.Rectangle, width, height int) image.Rectangle {
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 || width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	cropW, cropH := srcW, srcH
	switch lhs, rhs := int64(srcW)*int64(height), int64(srcH)*int64(width); {
	case lhs > rhs:
		cropW = int(int64(srcH) * int64(width) / int64(height))
	case lhs < rhs:
		cropH = int(int64(srcW) * int64(height) / int64(width))
	}
	cropW, cropH = max(cropW, 1), max(cropH, 1)
	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	return image.Rect(x0, y0, x0+cropW, y0+cropH)
}
