// Package normalize converts raw generated images into device-compliant
// stills: exact target size, centered crop, embedded sRGB profile, JPEG.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"

	"frameart/internal/domain"
)

// DefaultQuality keeps large flat skies free of visible banding.
const DefaultQuality = 95

type Options struct {
	Quality int
	Now     func() time.Time
}

// Normalizer is stateless apart from its options and safe for concurrent use.
type Normalizer struct {
	quality int
	now     func() time.Time
}

func New(opts Options) *Normalizer {
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Normalizer{quality: quality, now: now}
}

// Normalize decodes raw and produces a compliant still of exactly
// width x height. The returned asset has no sequence number yet; the output
// sink assigns it. Output bytes depend only on the input and the target size.
func (n *Normalizer) Normalize(raw domain.RawImage, width, height int) (domain.CompliantAsset, error) {
	if width <= 0 || height <= 0 {
		return domain.CompliantAsset{}, fmt.Errorf("normalize: invalid target %dx%d", width, height)
	}
	src, err := Decode(raw)
	if err != nil {
		return domain.CompliantAsset{}, err
	}
	return n.NormalizeImage(src, width, height)
}

// NormalizeImage is Normalize for already decoded pixels.
func (n *Normalizer) NormalizeImage(src image.Image, width, height int) (domain.CompliantAsset, error) {
	if fi, ok := src.(*FloatImage); ok {
		if err := fi.Validate(); err != nil {
			return domain.CompliantAsset{}, fmt.Errorf("%w: %w", domain.ErrInvalidRawImage, err)
		}
	}
	b := src.Bounds()
	if b.Empty() {
		return domain.CompliantAsset{}, fmt.Errorf("%w: zero area %dx%d", domain.ErrInvalidRawImage, b.Dx(), b.Dy())
	}
	crop := CenterCrop(b, width, height)

	dst := Resample(src, crop, width, height)
	data, err := n.encode(dst)
	if err != nil {
		return domain.CompliantAsset{}, err
	}
	sum := sha256.Sum256(data)
	return domain.CompliantAsset{
		Hash:         hex.EncodeToString(sum[:]),
		Width:        width,
		Height:       height,
		ColorProfile: domain.ColorProfileSRGB,
		Format:       domain.FormatJPEG,
		Data:         data,
		CreatedAt:    n.now(),
	}, nil
}

// Resample scales the crop region of src to exactly width x height with a
// Catmull-Rom kernel. The kernel widens on downscale, so it also filters
// aliasing; there is no dithering, so the result is deterministic.
func Resample(src image.Image, crop image.Rectangle, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

func (n *Normalizer) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, fmt.Errorf("normalize: encode jpeg: %w", err)
	}
	data, err := EmbedICC(buf.Bytes(), SRGBProfile)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return data, nil
}
