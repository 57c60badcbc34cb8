package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"frameart/internal/composer"
	"frameart/internal/domain"
	"frameart/internal/infra"
	"frameart/internal/normalize"
	"frameart/internal/providers/image"
	"frameart/internal/storage"
)

type promptComposer interface {
	Compose(ctx context.Context, req domain.GenerationRequest) (composer.Composition, error)
}

type gallery struct {
	composer   promptComposer
	generators map[string]image.Generator
	models     []string
	normalizer *normalize.Normalizer
	out        *storage.FileStore
	theme      string
	rng        *rand.Rand
	logger     *infra.Logger
}

type summary struct {
	Written []string
	Failed  int
}

// run generates count stills. A failed image is logged and the batch moves
// on; the caller decides whether to run again.
func (g *gallery) run(ctx context.Context, count int) summary {
	var sum summary
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			g.log().Warn().Int("remaining", count-i).Msg("gallery: interrupted")
			break
		}
		key, err := g.one(ctx, i+1, count)
		if err != nil {
			sum.Failed++
			g.log().Error().Err(err).Int("index", i+1).Msg("gallery: image failed")
			continue
		}
		sum.Written = append(sum.Written, key)
	}
	return sum
}

func (g *gallery) one(ctx context.Context, index, count int) (string, error) {
	model := g.models[g.rng.Intn(len(g.models))]
	gen, ok := g.generators[model]
	if !ok {
		return "", fmt.Errorf("no generator for model %q", model)
	}

	comp, err := g.composer.Compose(ctx, domain.GenerationRequest{Mode: domain.ModeCreative, Theme: g.theme})
	if err != nil {
		return "", err
	}
	g.log().Info().
		Str("progress", fmt.Sprintf("%d/%d", index, count)).
		Str("model", model).
		Str("style", comp.Style).
		Str("composition", comp.Composition).
		Int("quirk", comp.Quirk).
		Str("prompt", truncate(comp.Text, 120)).
		Msg("gallery: generating")

	raw, err := gen.Generate(ctx, image.GenerateRequest{Prompt: comp.Text, AspectRatio: domain.TargetAspect})
	if err != nil {
		return "", err
	}
	asset, err := g.normalizer.Normalize(raw, domain.TargetWidth, domain.TargetHeight)
	if err != nil {
		return "", err
	}
	_, key, err := g.out.WriteNext(ctx, ".", "jpg", asset.Data)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	g.log().Info().Str("key", key).Str("hash", asset.Hash).Msg("gallery: saved")
	return key, nil
}

// log falls back to a no-op logger when none was configured.
func (g *gallery) log() *infra.Logger {
	if g.logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return g.logger
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
