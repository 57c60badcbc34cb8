package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"frameart/internal/domain"
	"frameart/internal/infra"
	"frameart/internal/normalize"
	"frameart/internal/storage"
)

var sourceExts = map[string]bool{
	".png":  true,
	".webp": true,
	".jpg":  true,
	".jpeg": true,
}

type upscaler struct {
	normalizer *normalize.Normalizer
	workers    int
	logger     *infra.Logger
}

type result struct {
	Output    string
	Converted []string
	Failed    []string
}

// run converts every source image in dir. One bad file does not stop the
// others; it is reported in Failed.
func (u *upscaler) run(ctx context.Context, dir, out string) (result, error) {
	sources, err := listSources(dir)
	if err != nil {
		return result{}, err
	}
	if len(sources) == 0 {
		return result{}, fmt.Errorf("no PNG, WebP or JPEG files in %s", dir)
	}
	if out == "" {
		out = filepath.Join(dir, "4k")
	}
	store, err := storage.NewFileStore(out)
	if err != nil {
		return result{}, err
	}

	res := result{Output: out}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	workers := u.workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, name := range sources {
		name := name
		g.Go(func() error {
			key, err := u.convert(gctx, store, filepath.Join(dir, name))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				u.log().Error().Err(err).Str("file", name).Msg("upscale: failed")
				res.Failed = append(res.Failed, name)
				return nil
			}
			u.log().Info().Str("file", name).Str("key", key).Msg("upscale: saved")
			res.Converted = append(res.Converted, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	sort.Strings(res.Converted)
	sort.Strings(res.Failed)
	return res, nil
}

func (u *upscaler) convert(ctx context.Context, store *storage.FileStore, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	asset, err := u.normalizer.Normalize(domain.RawImage{Data: data}, domain.TargetWidth, domain.TargetHeight)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return store.Write(ctx, stem+".jpg", asset.Data)
}

func (u *upscaler) log() *infra.Logger {
	if u.logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return u.logger
}

func listSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sourceExts[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
