// Command gallery generates a batch of creative stills into a directory as
// NNN.jpg, continuing after the highest number already there.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"frameart/internal/bootstrap"
	"frameart/internal/composer"
	"frameart/internal/config"
	"frameart/internal/history"
	"frameart/internal/infra"
	"frameart/internal/normalize"
	"frameart/internal/storage"
)

func main() {
	_ = godotenv.Load()

	var (
		catalogFlag string
		countFlag   int
		outputFlag  string
		themeFlag   string
		modelsFlag  string
	)
	flag.StringVar(&catalogFlag, "catalog", os.Getenv("CATALOG_PATH"), "YAML or JSON catalog with theme, styles, compositions and models")
	flag.IntVar(&countFlag, "count", 0, "number of images to generate (default from catalog)")
	flag.StringVar(&outputFlag, "output", "", "output directory (default from catalog)")
	flag.StringVar(&themeFlag, "theme", "", "creative theme (default from catalog)")
	flag.StringVar(&modelsFlag, "models", "", "comma separated image models to sample from")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "gallery").Logger()

	catalog, err := config.LoadCatalog(catalogFlag)
	if err != nil {
		exitWithError(err)
	}
	if countFlag > 0 {
		catalog.Count = countFlag
	}
	if s := strings.TrimSpace(outputFlag); s != "" {
		catalog.Output = s
	}
	if s := strings.TrimSpace(themeFlag); s != "" {
		catalog.Theme = s
	}
	if s := strings.TrimSpace(modelsFlag); s != "" {
		catalog.Models = strings.Split(s, ",")
	}
	if err := catalog.Validate(); err != nil {
		exitWithError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bootstrap.HTTPClient(cfg)
	writer, err := bootstrap.PromptWriter(cfg, client, &logger)
	if err != nil {
		exitWithError(fmt.Errorf("prompt writer: %w", err))
	}
	generators, err := bootstrap.ImageGenerators(cfg, catalog.Models, client, &logger)
	if err != nil {
		exitWithError(fmt.Errorf("image generators: %w", err))
	}
	out, err := storage.NewFileStore(catalog.Output)
	if err != nil {
		exitWithError(err)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	comp, err := composer.New(composer.Options{
		History:      history.New(history.Options{Size: cfg.HistorySize}),
		Writer:       writer,
		Styles:       catalog.Styles,
		Compositions: catalog.Compositions,
		Rand:         rng,
		Logger:       &logger,
	})
	if err != nil {
		exitWithError(err)
	}

	g := &gallery{
		composer:   comp,
		generators: generators,
		models:     catalog.Models,
		normalizer: normalize.New(normalize.Options{}),
		out:        out,
		theme:      catalog.Theme,
		rng:        rng,
		logger:     &logger,
	}
	sum := g.run(ctx, catalog.Count)
	logger.Info().
		Int("written", len(sum.Written)).
		Int("failed", sum.Failed).
		Str("output", out.BasePath()).
		Msg("gallery: done")
	if len(sum.Written) == 0 && catalog.Count > 0 {
		os.Exit(1)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
