package normalize

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/kolesa-team/go-webp/decoder"

	"frameart/internal/domain"
)

// maxSourcePixels rejects decompression bombs before the full decode.
const maxSourcePixels = 100 << 20

// Decode turns the encoded bytes of a raw image into pixels. Pre-decoded
// pixels on the RawImage take precedence over Data.
func Decode(raw domain.RawImage) (image.Image, error) {
	if raw.Pixels != nil {
		return raw.Pixels, nil
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidRawImage)
	}
	if isWEBP(raw.Data) {
		return decodeWEBP(raw.Data)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode config: %w", domain.ErrInvalidRawImage, err)
	}
	if err := checkArea(cfg.Width, cfg.Height, format); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidRawImage, format, err)
	}
	return img, nil
}

// decodeWEBP reads the bitstream header first so the size limit applies
// before libwebp allocates the canvas.
func decodeWEBP(data []byte) (image.Image, error) {
	dec, err := decoder.NewDecoder(bytes.NewReader(data), &decoder.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: decode webp: %w", domain.ErrInvalidRawImage, err)
	}
	f := dec.GetFeatures()
	if err := checkArea(f.Width, f.Height, "webp"); err != nil {
		return nil, err
	}
	img, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: decode webp: %w", domain.ErrInvalidRawImage, err)
	}
	return img, nil
}

func checkArea(w, h int, format string) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: zero area %dx%d", domain.ErrInvalidRawImage, w, h)
	}
	if int64(w)*int64(h) > maxSourcePixels {
		return fmt.Errorf("%w: %dx%d %s exceeds pixel limit", domain.ErrInvalidRawImage, w, h, format)
	}
	return nil
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
