// Command upscale turns the PNG, WebP and JPEG files of a directory into
// frame-ready 3840x2160 sRGB JPEGs under <dir>/4k.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"frameart/internal/infra"
	"frameart/internal/normalize"
)

func main() {
	_ = godotenv.Load()

	var (
		dirFlag     string
		outFlag     string
		workersFlag int
		qualityFlag int
	)
	flag.StringVar(&dirFlag, "dir", "./gallery", "directory with source images")
	flag.StringVar(&outFlag, "out", "", "output directory (default <dir>/4k)")
	flag.IntVar(&workersFlag, "workers", runtime.NumCPU(), "images processed at once")
	flag.IntVar(&qualityFlag, "quality", normalize.DefaultQuality, "JPEG quality")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "upscale").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := &upscaler{
		normalizer: normalize.New(normalize.Options{Quality: qualityFlag}),
		workers:    workersFlag,
		logger:     &logger,
	}
	res, err := u.run(ctx, dirFlag, outFlag)
	if err != nil {
		exitWithError(err)
	}
	logger.Info().
		Int("converted", len(res.Converted)).
		Int("failed", len(res.Failed)).
		Str("output", res.Output).
		Msg("upscale: done")
	if len(res.Failed) > 0 {
		os.Exit(1)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
