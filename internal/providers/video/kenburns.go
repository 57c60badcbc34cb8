package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"frameart/internal/domain"
	"frameart/internal/infra"
	"frameart/internal/normalize"
)

// FormatMP4 is the container written by KenBurns.
const FormatMP4 = "video/mp4"

// Renderer turns a compliant still into a derived artifact. Errors wrap
// domain.ErrRenderFailed.
type Renderer interface {
	Render(ctx context.Context, asset domain.CompliantAsset) (domain.DerivedArtifact, error)
}

type Options struct {
	FFmpegPath string
	// Seconds pins the duration; zero draws it from 15, 20 or 25.
	Seconds int
	Width   int
	Height  int
	TempDir string
	Rand    *rand.Rand
	Now     func() time.Time
	Logger  *infra.Logger
}

// KenBurns renders a slow zoom and pan over the still and encodes it as
// H.264 through an ffmpeg subprocess.
type KenBurns struct {
	ffmpeg  string
	seconds int
	width   int
	height  int
	tempDir string
	now     func() time.Time
	logger  *infra.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewKenBurns(opts Options) *KenBurns {
	ffmpeg := strings.TrimSpace(opts.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = domain.TargetWidth, domain.TargetHeight
	}
	// yuv420p needs even dimensions.
	width, height = width&^1, height&^1
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &KenBurns{
		ffmpeg:  ffmpeg,
		seconds: opts.Seconds,
		width:   width,
		height:  height,
		tempDir: opts.TempDir,
		now:     now,
		logger:  logger,
		rng:     rng,
	}
}

// NextParams draws the parameters for the next render.
func (k *KenBurns) NextParams() Params {
	k.mu.Lock()
	p := RandomParams(k.rng)
	k.mu.Unlock()
	if k.seconds > 0 {
		p.Seconds = k.seconds
	}
	return p
}

func (k *KenBurns) Render(ctx context.Context, asset domain.CompliantAsset) (domain.DerivedArtifact, error) {
	if len(asset.Data) == 0 {
		return domain.DerivedArtifact{}, fmt.Errorf("%w: still %s has no data", domain.ErrRenderFailed, asset.ID())
	}
	src, err := jpeg.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return domain.DerivedArtifact{}, fmt.Errorf("%w: decode still: %w", domain.ErrRenderFailed, err)
	}
	base := k.fill(src)
	params := k.NextParams()

	start := time.Now()
	data, err := k.encode(ctx, base, params)
	if err != nil {
		return domain.DerivedArtifact{}, fmt.Errorf("%w: %w", domain.ErrRenderFailed, err)
	}
	k.logger.Info().
		Str("source", asset.ID().String()).
		Int("seconds", params.Seconds).
		Float64("zoom_end", params.ZoomEnd).
		Dur("took", time.Since(start)).
		Int("bytes", len(data)).
		Msg("video: rendered ken burns")

	return domain.DerivedArtifact{
		Source:    asset.ID(),
		Kind:      domain.AssetKindVideo,
		Format:    FormatMP4,
		Data:      data,
		Length:    params.Duration(),
		CreatedAt: k.now(),
	}, nil
}

// fill covers the output frame with src and crops the centre.
func (k *KenBurns) fill(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds() == image.Rect(0, 0, k.width, k.height) {
		return rgba
	}
	return normalize.Resample(src, normalize.CenterCrop(src.Bounds(), k.width, k.height), k.width, k.height)
}

func (k *KenBurns) encode(ctx context.Context, base *image.RGBA, p Params) ([]byte, error) {
	out := filepath.Join(k.tempDirOrDefault(), "kenburns-"+uuid.NewString()+".mp4")
	defer os.Remove(out)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", k.width, k.height),
		"-r", strconv.Itoa(p.FPS),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out,
	}
	cmd := exec.CommandContext(ctx, k.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	writeErr := k.writeFrames(stdin, base, p)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	if err := errors.Join(writeErr, closeErr); err != nil {
		return nil, fmt.Errorf("stream frames: %w", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("ffmpeg produced an empty file")
	}
	return data, nil
}

func (k *KenBurns) writeFrames(w io.Writer, base *image.RGBA, p Params) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	frame := image.NewRGBA(image.Rect(0, 0, k.width, k.height))
	buf := make([]byte, 3*k.width*k.height)
	for i := 0; i < p.FrameCount(); i++ {
		crop := p.CropAt(i, k.width, k.height)
		draw.ApproxBiLinear.Scale(frame, frame.Bounds(), base, crop, draw.Src, nil)
		packRGB24(buf, frame)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// packRGB24 drops the alpha channel of src into dst.
func packRGB24(dst []byte, src *image.RGBA) {
	b := src.Bounds()
	j := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := src.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			dst[j] = src.Pix[off]
			dst[j+1] = src.Pix[off+1]
			dst[j+2] = src.Pix[off+2]
			j += 3
			off += 4
		}
	}
}

func (k *KenBurns) tempDirOrDefault() string {
	if k.tempDir != "" {
		return k.tempDir
	}
	return os.TempDir()
}

var _ Renderer = (*KenBurns)(nil)
